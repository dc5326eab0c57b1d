package cache

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// PurgeExpired 删除所有 ExpiresAt 严格早于当前时间的条目及其文件，
// 批次结束后保存一次索引，返回删除数量。
func (c *Cache) PurgeExpired() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.purgeExpiredLocked()
}

func (c *Cache) purgeExpiredLocked() (int, error) {
	now := c.now()
	var victims []Entry
	for _, e := range c.index.sorted() {
		if e.Expired(now) {
			victims = append(victims, e)
		}
	}
	removed, err := c.evictLocked(victims, -1)
	if removed > 0 {
		c.logger.WithFields(logrus.Fields{
			"action":  "purge_expired",
			"removed": removed,
		}).Info("expired entries purged")
	}
	return removed, err
}

// EnforceMaxBytes 在总字节数超过 limit 时按 (ExpiresAt, Filename) 升序逐个删除，
// 直到总量不超过 limit。返回删除数量。
func (c *Cache) EnforceMaxBytes(limit int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limit < 0 {
		limit = 0
	}
	total := c.index.totalBytes()
	if total <= limit {
		return 0, nil
	}

	candidates := c.index.sorted()
	sortForEviction(candidates)

	removed, err := c.evictLocked(candidates, limit)
	c.logger.WithFields(logrus.Fields{
		"action":      "enforce_max_bytes",
		"limit":       limit,
		"total_bytes": total,
		"removed":     removed,
	}).Info("cache trimmed to size limit")
	return removed, err
}

// evictLocked 依次删除 victims 的文件与条目。limit >= 0 时在总量不超过 limit 后停止。
// 删除失败会中断批次，已完成的部分仍会持久化。
func (c *Cache) evictLocked(victims []Entry, limit int64) (int, error) {
	var (
		removed int
		failure error
	)
	for _, e := range victims {
		if limit >= 0 && c.index.totalBytes() <= limit {
			break
		}
		if err := c.dir.remove(c.dir.join(e.Filename)); err != nil {
			failure = fmt.Errorf("evict %s: %w", e.Filename, err)
			break
		}
		c.index.delete(e.Filename)
		removed++
	}

	if removed == 0 {
		return 0, failure
	}
	if err := c.index.save(); err != nil {
		return removed, errors.Join(failure, err)
	}
	return removed, failure
}
