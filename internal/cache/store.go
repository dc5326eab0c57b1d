package cache

import (
	"errors"
	"time"
)

const (
	// IndexFileName 是索引快照文件名，位于缓存根目录。
	IndexFileName = ".cache-index.json"
	// CounterFileName 保存会话计数器的十进制文本。
	CounterFileName = ".cache-counter"

	// reservedPrefix 覆盖控制文件与写入过程中的临时文件。
	reservedPrefix = ".cache-"
	tempPrefix     = reservedPrefix + "tmp-"

	// DefaultTTL 用于未显式指定 TTL 的写入以及扫描恢复出的条目。
	DefaultTTL = 14 * 24 * time.Hour
	// DefaultMIME 是会话文件的默认内容类型。
	DefaultMIME = "text/csv"

	// MetaRecovered 标记由目录扫描合成的条目。
	MetaRecovered = "recovered"
)

// Entry 描述一个被跟踪的缓存文件。ExpiresAt 在创建时确定，后续追加不会刷新。
type Entry struct {
	Filename  string         `json:"filename"`
	ExpiresAt time.Time      `json:"expiresAt"`
	Bytes     int64          `json:"bytes"`
	MIME      string         `json:"mime"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// Expired 判断条目在 now 时刻是否已严格过期。
func (e Entry) Expired(now time.Time) bool {
	return e.ExpiresAt.Before(now)
}

// Active 判断条目在 now 时刻是否仍严格处于有效期内。
func (e Entry) Active(now time.Time) bool {
	return e.ExpiresAt.After(now)
}

// Recovered 表示条目是否由 RecoveryScanner 合成。
func (e Entry) Recovered() bool {
	v, ok := e.Meta[MetaRecovered].(bool)
	return ok && v
}

// Handle 组合条目与其绝对路径，供列表/预览/导出使用。
type Handle struct {
	Entry
	Path string `json:"path"`
}

// WriteOptions 控制首次创建条目时记录的属性。
type WriteOptions struct {
	// TTL 为 0 时使用缓存的默认 TTL。
	TTL  time.Duration
	MIME string
	Meta map[string]any
}

var (
	// ErrNotFound 表示既没有索引条目也没有对应文件。
	ErrNotFound = errors.New("cache: entry not found")
	// ErrInvalidName 表示文件名在清洗后为空或为 "."/".."。
	ErrInvalidName = errors.New("cache: invalid file name")
	// ErrReservedName 表示文件名与控制文件命名空间冲突。
	ErrReservedName = errors.New("cache: reserved file name")
	// ErrIndexCorrupt 表示索引快照无法解析，Open 会转入目录扫描恢复。
	ErrIndexCorrupt = errors.New("cache: index snapshot corrupt")
	// ErrCounterUnreadable 表示计数器文件内容无法解析。
	ErrCounterUnreadable = errors.New("cache: session counter unreadable")
)
