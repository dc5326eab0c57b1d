package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// IngestHandler describes the component that turns HTTP calls from the phone
// bridge into session writes. It allows injecting fake handlers during tests.
type IngestHandler interface {
	StartSession(c fiber.Ctx, route *DeviceRoute) error
	RecordRow(c fiber.Ctx, name string) error
	StopSession(c fiber.Ctx, name string) error
	UpdateLocation(c fiber.Ctx) error
}

// AppOptions controls how the Fiber application should behave on a specific port.
type AppOptions struct {
	Logger     *logrus.Logger
	Registry   *DeviceRegistry
	Ingest     IngestHandler
	ListenPort int
}

const contextKeyRequestID = "_gaslog_request_id"

// NewApp builds a Fiber application with request-id middleware, device
// lookup and structured error responses for the ingest routes.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("device registry is required")
	}
	if opts.Ingest == nil {
		return nil, errors.New("ingest handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	app.Post("/devices/:device/sessions", func(c fiber.Ctx) error {
		deviceID := strings.TrimSpace(c.Params("device"))
		route, ok := opts.Registry.Lookup(deviceID)
		if !ok {
			return renderDeviceUnmapped(c, opts.Logger, deviceID, opts.ListenPort)
		}
		return opts.Ingest.StartSession(c, route)
	})
	app.Post("/sessions/:name/rows", func(c fiber.Ctx) error {
		return opts.Ingest.RecordRow(c, c.Params("name"))
	})
	app.Delete("/sessions/:name", func(c fiber.Ctx) error {
		return opts.Ingest.StopSession(c, c.Params("name"))
	})
	app.Put("/location", func(c fiber.Ctx) error {
		return opts.Ingest.UpdateLocation(c)
	})

	return app, nil
}

// requestContextMiddleware 为每个请求生成请求 ID 并写入响应头。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

func renderDeviceUnmapped(c fiber.Ctx, logger *logrus.Logger, deviceID string, port int) error {
	logger.WithFields(logrus.Fields{
		"action":     "device_lookup",
		"device_id":  deviceID,
		"port":       port,
		"request_id": RequestID(c),
	}).Warn("device unmapped")

	if deviceID != "" {
		c.Set("X-Gaslog-Device", deviceID)
	}

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "device_unmapped",
	})
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
