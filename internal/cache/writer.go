package cache

import (
	"fmt"
	"time"
)

const lineTerminator = "\n"

func (c *Cache) ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.defaultTTL
	}
	return ttl
}

// EnsureHeader 在文件不存在或为空时写入 header 行（覆盖写）并记录条目，
// ExpiresAt = now + TTL。文件已存在且非空时不做任何修改，因此可以重复调用。
func (c *Cache) EnsureHeader(name, header string, opts WriteOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	clean, path, err := c.dir.resolve(name)
	if err != nil {
		return "", err
	}

	size, exists, err := c.dir.size(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", clean, err)
	}
	if exists && size > 0 {
		return path, nil
	}

	written, err := c.dir.overwrite(path, []byte(header+lineTerminator))
	if err != nil {
		return "", fmt.Errorf("write header %s: %w", clean, err)
	}

	c.index.put(Entry{
		Filename:  clean,
		ExpiresAt: c.now().Add(c.ttlOrDefault(opts.TTL)),
		Bytes:     written,
		MIME:      mimeOrDefault(opts.MIME),
		Meta:      cloneMeta(opts.Meta),
	})
	if err := c.index.save(); err != nil {
		return "", err
	}
	return path, nil
}

// AppendLine 追加一行并刷新条目大小。已有条目的 ExpiresAt 保持不变；
// 仅在首次跟踪该文件时设置为 now + TTL。返回时索引已持久化。
func (c *Cache) AppendLine(name, line string, opts WriteOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	clean, path, err := c.dir.resolve(name)
	if err != nil {
		return "", err
	}

	size, err := c.dir.appendTo(path, []byte(line+lineTerminator))
	if err != nil {
		return "", fmt.Errorf("append %s: %w", clean, err)
	}

	entry, ok := c.index.get(clean)
	if ok {
		entry.Bytes = size
	} else {
		entry = Entry{
			Filename:  clean,
			ExpiresAt: c.now().Add(c.ttlOrDefault(opts.TTL)),
			Bytes:     size,
			MIME:      mimeOrDefault(opts.MIME),
			Meta:      cloneMeta(opts.Meta),
		}
	}
	c.index.put(entry)

	if err := c.index.save(); err != nil {
		return "", err
	}
	return path, nil
}
