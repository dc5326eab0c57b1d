package routes

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/gaslog/gaslog/internal/cache"
	"github.com/gaslog/gaslog/internal/server"
	"github.com/gaslog/gaslog/internal/session"
)

// FileStore 是文件路由依赖的缓存能力，*cache.Cache 满足该接口。
type FileStore interface {
	ListActive() []cache.Handle
	MarkUploaded(name string) error
}

// FileRouteOptions 控制导出行为。
type FileRouteOptions struct {
	Logger *logrus.Logger
	// CompressByDefault 在请求未显式指定 compress 参数时启用 zstd。
	CompressByDefault bool
}

// RegisterFileRoutes 暴露 /-/files 接口：列出、预览、导出以及上传完成后的删除。
func RegisterFileRoutes(app *fiber.App, store FileStore, opts FileRouteOptions) {
	if app == nil || store == nil {
		return
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	app.Get("/-/files", func(c fiber.Ctx) error {
		summaries, err := session.Summaries(store)
		if err != nil {
			logger.WithError(err).WithField("request_id", server.RequestID(c)).Error("list files failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "list_failed"})
		}
		return c.JSON(fiber.Map{"files": summaries})
	})

	app.Get("/-/files/:name", func(c fiber.Ctx) error {
		handle, ok := findActive(store, c.Params("name"))
		if !ok {
			return renderFileNotFound(c)
		}
		limit, err := parseLines(c.Query("lines"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_lines"})
		}
		summary, err := session.Summarize(handle)
		if err != nil {
			return renderReadError(c, logger, handle.Filename, err)
		}
		lines, err := session.Preview(handle.Path, limit)
		if err != nil {
			return renderReadError(c, logger, handle.Filename, err)
		}
		return c.JSON(fiber.Map{"file": summary, "lines": lines})
	})

	app.Get("/-/files/:name/export", func(c fiber.Ctx) error {
		handle, ok := findActive(store, c.Params("name"))
		if !ok {
			return renderFileNotFound(c)
		}
		compress, err := parseCompress(c.Query("compress"), opts.CompressByDefault)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_compress"})
		}

		contentType := handle.MIME
		if compress {
			contentType = "application/zstd"
		}
		c.Set(fiber.HeaderContentType, contentType)
		c.Set(fiber.HeaderContentDisposition,
			fmt.Sprintf(`attachment; filename="%s"`, session.ExportName(handle.Filename, compress)))

		if _, err := session.Export(c.Response().BodyWriter(), handle.Path, compress); err != nil {
			c.Response().ResetBody()
			return renderReadError(c, logger, handle.Filename, err)
		}
		return nil
	})

	app.Delete("/-/files/:name", func(c fiber.Ctx) error {
		name := c.Params("name")
		err := store.MarkUploaded(name)
		switch {
		case err == nil:
			logger.WithFields(logrus.Fields{
				"action":     "mark_uploaded",
				"file":       cache.SanitizeName(name),
				"request_id": server.RequestID(c),
			}).Info("file released after upload")
			return c.SendStatus(fiber.StatusNoContent)
		case errors.Is(err, cache.ErrNotFound):
			return renderFileNotFound(c)
		case cache.IsNameError(err):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_name"})
		default:
			logger.WithError(err).WithField("file", name).Error("mark uploaded failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "remove_failed"})
		}
	})
}

func findActive(store FileStore, name string) (cache.Handle, bool) {
	clean := cache.SanitizeName(name)
	for _, h := range store.ListActive() {
		if h.Filename == clean {
			return h, true
		}
	}
	return cache.Handle{}, false
}

func parseLines(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid lines %q", raw)
	}
	return n, nil
}

func parseCompress(raw string, fallback bool) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return fallback, nil
	case "zstd":
		return true, nil
	case "none":
		return false, nil
	default:
		return false, fmt.Errorf("unsupported compression %q", raw)
	}
}

func renderFileNotFound(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "file_not_found"})
}

func renderReadError(c fiber.Ctx, logger *logrus.Logger, name string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return renderFileNotFound(c)
	}
	logger.WithError(err).WithFields(logrus.Fields{
		"file":       name,
		"request_id": server.RequestID(c),
	}).Error("read file failed")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "read_failed"})
}
