// Package maintenance runs periodic cache housekeeping: expiry purges and
// size-limit eviction on a fixed interval.
package maintenance

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// Cache 是 Janitor 依赖的淘汰能力，*cache.Cache 满足该接口。
type Cache interface {
	PurgeExpired() (int, error)
	EnforceMaxBytes(limit int64) (int, error)
	TotalBytes() int64
}

// Result 汇总一次维护执行的结果。
type Result struct {
	Purged     int   `json:"purged"`
	Trimmed    int   `json:"trimmed"`
	TotalBytes int64 `json:"total_bytes"`
}

// Janitor 周期性执行过期清理与容量约束。
type Janitor struct {
	cache    Cache
	interval time.Duration
	maxBytes int64
	logger   logrus.FieldLogger
}

// New 构造 Janitor。maxBytes 为 0 表示不限制容量。
func New(cache Cache, interval time.Duration, maxBytes int64, logger logrus.FieldLogger) *Janitor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Janitor{
		cache:    cache,
		interval: interval,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// RunOnce 先清理过期条目，再在设置了上限时执行容量淘汰。
// 两个步骤相互独立，前一步失败不会阻止后一步。
func (j *Janitor) RunOnce() (Result, error) {
	var res Result
	purged, purgeErr := j.cache.PurgeExpired()
	res.Purged = purged

	var trimErr error
	if j.maxBytes > 0 {
		res.Trimmed, trimErr = j.cache.EnforceMaxBytes(j.maxBytes)
	}
	res.TotalBytes = j.cache.TotalBytes()

	err := errors.Join(purgeErr, trimErr)
	fields := logrus.Fields{
		"action":      "maintenance",
		"purged":      res.Purged,
		"trimmed":     res.Trimmed,
		"total_bytes": res.TotalBytes,
		"max_bytes":   j.maxBytes,
	}
	if err != nil {
		j.logger.WithFields(fields).WithError(err).Warn("maintenance finished with errors")
		return res, err
	}
	j.logger.WithFields(fields).Debug("maintenance finished")
	return res, nil
}

// Run 按 interval 循环执行 RunOnce，直到 ctx 结束。错误只记录日志。
func (j *Janitor) Run(ctx context.Context) error {
	if j.interval <= 0 {
		return errors.New("maintenance interval must be positive")
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, _ = j.RunOnce()
		}
	}
}
