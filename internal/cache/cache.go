package cache

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Cache 是缓存目录的唯一所有者。每个公开方法都在同一把互斥锁内完成
// “读取 → 修改 → 保存”，因此可被多个 goroutine 安全调用。
type Cache struct {
	mu sync.Mutex

	dir      *directory
	index    *indexStore
	counter  *sessionCounter
	recovery *recoveryScanner

	defaultTTL time.Duration
	now        func() time.Time
	logger     logrus.FieldLogger
}

// Options 控制 Open 的可选行为。
type Options struct {
	DefaultTTL     time.Duration
	LenientCounter bool
	Logger         logrus.FieldLogger
	Clock          func() time.Time
}

// Option 是 Open 的函数式选项。
type Option func(*Options)

// WithDefaultTTL 设置 WriteOptions.TTL 为 0 时使用的 TTL。
func WithDefaultTTL(ttl time.Duration) Option {
	return func(o *Options) {
		if ttl > 0 {
			o.DefaultTTL = ttl
		}
	}
}

// WithLenientCounter 让无法解析的计数器回退到 0 而非报错。
func WithLenientCounter(lenient bool) Option {
	return func(o *Options) { o.LenientCounter = lenient }
}

// WithLogger 注入结构化日志。
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithClock 替换时钟，主要用于测试。
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Clock = now
		}
	}
}

func defaultOptions() *Options {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	return &Options{
		DefaultTTL: DefaultTTL,
		Logger:     discard,
		Clock:      time.Now,
	}
}

// Open 打开（或初始化）root 下的缓存：加载快照，失败时扫描目录重建，
// 初始化会话计数器，最后清理已过期条目。重复调用是幂等的。
func Open(root string, opts ...Option) (*Cache, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	dir, err := newDirectory(root)
	if err != nil {
		return nil, err
	}

	index := newIndexStore(dir)
	c := &Cache{
		dir:        dir,
		index:      index,
		counter:    &sessionCounter{dir: dir, lenient: options.LenientCounter, logger: options.Logger},
		recovery:   &recoveryScanner{dir: dir, index: index},
		defaultTTL: options.DefaultTTL,
		now:        options.Clock,
		logger:     options.Logger,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.loadIndex(); err != nil {
		return nil, err
	}
	if err := c.counter.ensureInitialized(); err != nil {
		return nil, err
	}
	purged, err := c.purgeExpiredLocked()
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"action":  "cache_open",
		"root":    dir.root,
		"entries": c.index.len(),
		"purged":  purged,
	}).Info("cache opened")
	return c, nil
}

func (c *Cache) loadIndex() error {
	now := c.now()
	if swept, err := c.dir.sweepTemp(); err != nil {
		c.logger.WithError(err).WithField("action", "temp_sweep").Warn("leftover temp files not removed")
	} else if swept > 0 {
		c.logger.WithFields(logrus.Fields{
			"action":  "temp_sweep",
			"removed": swept,
		}).Info("leftover temp files removed")
	}

	skipped, err := c.index.load()
	if err == nil {
		if len(skipped) > 0 {
			c.logger.WithFields(logrus.Fields{
				"action":  "index_load",
				"skipped": skipped,
			}).Warn("invalid index records dropped")
		}
		result, err := c.recovery.reconcile(now)
		if err != nil {
			return err
		}
		if len(skipped) > 0 && !result.changed() {
			if err := c.index.save(); err != nil {
				return err
			}
		}
		if result.changed() {
			c.logger.WithFields(logrus.Fields{
				"action":  "index_reconcile",
				"dropped": result.Dropped,
				"resized": result.Resized,
				"adopted": result.Adopted,
			}).Info("index reconciled with cache directory")
		}
		return nil
	}

	fields := logrus.Fields{"action": "index_rebuild"}
	if isMissing(err) {
		fields["reason"] = "missing"
	} else {
		fields["reason"] = "corrupt"
		c.logger.WithError(err).WithFields(fields).Warn("index snapshot unreadable")
	}

	count, err := c.recovery.rebuild(now)
	if err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	fields["entries"] = count
	c.logger.WithFields(fields).Info("index rebuilt from cache directory")
	return nil
}

// Root 返回缓存根目录的绝对路径。
func (c *Cache) Root() string {
	return c.dir.root
}

// NextSession 发放下一个会话编号。
func (c *Cache) NextSession() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counter.next()
}

// Path 返回清洗后文件名对应的绝对路径，不检查文件是否存在。
func (c *Cache) Path(name string) (string, error) {
	_, path, err := c.dir.resolve(name)
	return path, err
}

// Stat 返回条目的当前元数据。
func (c *Cache) Stat(name string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.index.get(SanitizeName(name))
	return e, ok
}

// TotalBytes 返回所有被跟踪条目的字节数之和。
func (c *Cache) TotalBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.totalBytes()
}

// ListActive 返回 ExpiresAt 严格晚于当前时间的条目，按文件名排序。只读，不会清理任何条目。
func (c *Cache) ListActive() []Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var out []Handle
	for _, e := range c.index.sorted() {
		if !e.Active(now) {
			continue
		}
		out = append(out, Handle{Entry: e, Path: c.dir.join(e.Filename)})
	}
	return out
}

// MarkUploaded 在文件被下游导出后删除文件与条目，与 TTL/容量策略无关。
func (c *Cache) MarkUploaded(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	clean, path, err := c.dir.resolve(name)
	if err != nil {
		return err
	}

	_, tracked := c.index.get(clean)
	_, exists, err := c.dir.size(path)
	if err != nil {
		return err
	}
	if !tracked && !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, clean)
	}

	if err := c.dir.remove(path); err != nil {
		return fmt.Errorf("remove %s: %w", clean, err)
	}
	if !tracked {
		return nil
	}
	c.index.delete(clean)
	return c.index.save()
}

// Close 持久化当前索引。Cache 在 Close 之后不应继续使用。
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index.save()
}

// IsNameError 判断错误是否源于非法或保留的文件名。
func IsNameError(err error) bool {
	return errors.Is(err, ErrInvalidName) || errors.Is(err, ErrReservedName)
}

func mimeOrDefault(mime string) string {
	if strings.TrimSpace(mime) == "" {
		return DefaultMIME
	}
	return mime
}

func cloneMeta(meta map[string]any) map[string]any {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

// sortForEviction 按 (ExpiresAt 升序, Filename 升序) 排列。
func sortForEviction(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int {
		if c := a.ExpiresAt.Compare(b.ExpiresAt); c != 0 {
			return c
		}
		return strings.Compare(a.Filename, b.Filename)
	})
}
