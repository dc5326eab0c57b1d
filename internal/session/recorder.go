package session

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gaslog/gaslog/internal/cache"
	"github.com/gaslog/gaslog/internal/logging"
)

// Store 是记录器依赖的缓存写入能力，*cache.Cache 满足该接口。
type Store interface {
	NextSession() (int, error)
	EnsureHeader(name, header string, opts cache.WriteOptions) (string, error)
	AppendLine(name, line string, opts cache.WriteOptions) (string, error)
}

// Recorder 负责开启会话并把读数写入会话文件。
type Recorder struct {
	store     Store
	locations LocationProvider
	logger    logrus.FieldLogger
	now       func() time.Time
}

// NewRecorder 构造记录器；locations 可以为 nil，此时位置列留空。
func NewRecorder(store Store, locations LocationProvider, logger logrus.FieldLogger) *Recorder {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Recorder{
		store:     store,
		locations: locations,
		logger:    logger,
		now:       time.Now,
	}
}

// Session 是一次进行中的采集会话。
type Session struct {
	Name      string
	Path      string
	Number    int
	Device    Device
	StartedAt time.Time

	rec   *Recorder
	opts  cache.WriteOptions
	mu    sync.Mutex
	count int
}

// Start 领取新的会话编号，生成文件名并写入表头。ttl 为 0 时使用缓存默认值。
// 会话编号一经领取即不再复用，即使后续写表头失败。
// Meta 中的 session 以十进制字符串保存，快照重新加载后类型不变。
func (r *Recorder) Start(device Device, ttl time.Duration) (*Session, error) {
	number, err := r.store.NextSession()
	if err != nil {
		return nil, fmt.Errorf("allocate session number: %w", err)
	}

	started := r.now().UTC()
	name := FileName(device, number, started)
	opts := cache.WriteOptions{
		TTL:  ttl,
		MIME: cache.DefaultMIME,
		Meta: map[string]any{
			"device_name": device.Name,
			"device_id":   device.ID,
			"session":     strconv.Itoa(number),
		},
	}

	path, err := r.store.EnsureHeader(name, Header, opts)
	if err != nil {
		return nil, fmt.Errorf("create session file: %w", err)
	}

	r.logger.WithFields(logging.SessionFields(device.Name, device.ID, name, number)).
		WithField("action", "session_start").
		Info("session started")

	return &Session{
		Name:      name,
		Path:      path,
		Number:    number,
		Device:    device,
		StartedAt: started,
		rec:       r,
		opts:      opts,
	}, nil
}

// Record 以当前 UTC 时间和最新位置写入一行。
func (s *Session) Record(reading Reading) error {
	var loc Location
	if s.rec.locations != nil {
		loc, _ = s.rec.locations.Latest()
	}

	line, err := FormatRow(s.rec.now(), reading, loc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// 文件可能已被导出释放或淘汰，重新写入表头保证首行始终是 Header。
	if _, err := s.rec.store.EnsureHeader(s.Name, Header, s.opts); err != nil {
		return fmt.Errorf("restore session header: %w", err)
	}
	if _, err := s.rec.store.AppendLine(s.Name, line, s.opts); err != nil {
		return fmt.Errorf("append reading: %w", err)
	}
	s.count++
	return nil
}

// Rows 返回本进程内写入的行数。
func (s *Session) Rows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Consume 持续写入 readings，直到通道关闭或 ctx 结束；返回成功写入的行数。
// 写入失败会立即返回错误，是否重试由调用方决定。
func (s *Session) Consume(ctx context.Context, readings <-chan Reading) (int, error) {
	written := 0
	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		case reading, ok := <-readings:
			if !ok {
				return written, nil
			}
			if err := s.Record(reading); err != nil {
				s.rec.logger.WithError(err).
					WithFields(logging.SessionFields(s.Device.Name, s.Device.ID, s.Name, s.Number)).
					Warn("session_record_failed")
				return written, err
			}
			written++
		}
	}
}
