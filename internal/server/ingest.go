package server

import (
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/gaslog/gaslog/internal/logging"
	"github.com/gaslog/gaslog/internal/session"
)

// SessionIngest 维护进行中的会话，并把 HTTP 请求转换为会话写入。
type SessionIngest struct {
	recorder  *session.Recorder
	locations *session.LatestLocation
	logger    *logrus.Logger

	mu     sync.Mutex
	active map[string]*session.Session
}

// NewSessionIngest 构造 IngestHandler 的默认实现。
func NewSessionIngest(recorder *session.Recorder, locations *session.LatestLocation, logger *logrus.Logger) *SessionIngest {
	return &SessionIngest{
		recorder:  recorder,
		locations: locations,
		logger:    logger,
		active:    make(map[string]*session.Session),
	}
}

type sessionPayload struct {
	Name      string    `json:"name"`
	Session   int       `json:"session"`
	Device    string    `json:"device"`
	StartedAt time.Time `json:"started_at"`
	Rows      int       `json:"rows"`
}

func encodeSession(s *session.Session) sessionPayload {
	return sessionPayload{
		Name:      s.Name,
		Session:   s.Number,
		Device:    s.Device.Name,
		StartedAt: s.StartedAt,
		Rows:      s.Rows(),
	}
}

// StartSession 为设备开启新会话并返回会话文件名。
func (h *SessionIngest) StartSession(c fiber.Ctx, route *DeviceRoute) error {
	device := session.Device{Name: route.Config.Name, ID: route.Config.ID}
	sess, err := h.recorder.Start(device, route.CacheTTL)
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"action":     "session_start",
			"device":     device.Name,
			"request_id": RequestID(c),
		}).Error("session start failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "session_start_failed"})
	}

	h.mu.Lock()
	h.active[sess.Name] = sess
	h.mu.Unlock()

	return c.Status(fiber.StatusCreated).JSON(encodeSession(sess))
}

// RecordRow 解析 JSON 读数并追加到会话文件。
func (h *SessionIngest) RecordRow(c fiber.Ctx, name string) error {
	sess, ok := h.lookup(name)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session_unknown"})
	}

	var reading session.Reading
	if err := json.Unmarshal(c.Body(), &reading); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_row"})
	}

	if err := sess.Record(reading); err != nil {
		if errors.Is(err, session.ErrFieldCount) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_row"})
		}
		h.logger.WithError(err).
			WithFields(logging.SessionFields(sess.Device.Name, sess.Device.ID, sess.Name, sess.Number)).
			WithField("request_id", RequestID(c)).
			Error("session record failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "record_failed"})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"rows": sess.Rows()})
}

// StopSession 结束会话；文件保留在缓存中等待导出或过期。
func (h *SessionIngest) StopSession(c fiber.Ctx, name string) error {
	h.mu.Lock()
	sess, ok := h.active[name]
	delete(h.active, name)
	h.mu.Unlock()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session_unknown"})
	}

	h.logger.WithFields(logging.SessionFields(sess.Device.Name, sess.Device.ID, sess.Name, sess.Number)).
		WithFields(logrus.Fields{"action": "session_stop", "rows": sess.Rows()}).
		Info("session stopped")
	return c.SendStatus(fiber.StatusNoContent)
}

// UpdateLocation 记录手机最近一次定位结果。
func (h *SessionIngest) UpdateLocation(c fiber.Ctx) error {
	var loc session.Location
	if err := json.Unmarshal(c.Body(), &loc); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_location"})
	}
	loc.Latitude = strings.TrimSpace(loc.Latitude)
	loc.Longitude = strings.TrimSpace(loc.Longitude)
	if loc.Latitude == "" || loc.Longitude == "" || strings.ContainsAny(loc.Latitude+loc.Longitude, ",\r\n") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_location"})
	}

	h.locations.Update(loc)
	return c.SendStatus(fiber.StatusNoContent)
}

// Active 返回进行中的会话文件名，用于诊断。
func (h *SessionIngest) Active() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.active))
	for name := range h.active {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (h *SessionIngest) lookup(name string) (*session.Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sess, ok := h.active[name]
	return sess, ok
}
