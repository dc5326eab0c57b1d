package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// sessionCounter 是基于控制文件的单调递增计数器，已发放的值永不复用。
type sessionCounter struct {
	dir     *directory
	lenient bool
	logger  logrus.FieldLogger
}

// ensureInitialized 在计数器文件缺失时写入 "0"，已存在时不做任何修改。
func (c *sessionCounter) ensureInitialized() error {
	_, exists, err := c.dir.size(c.dir.join(CounterFileName))
	if err != nil {
		return fmt.Errorf("stat session counter: %w", err)
	}
	if exists {
		return nil
	}
	if err := c.dir.replace(CounterFileName, []byte("0")); err != nil {
		return fmt.Errorf("init session counter: %w", err)
	}
	return nil
}

// current 读取当前值。文件缺失视为 0；内容无法解析时按 lenient 决定回退还是报错。
func (c *sessionCounter) current() (int, error) {
	data, err := os.ReadFile(c.dir.join(CounterFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read session counter: %w", err)
	}

	raw := strings.TrimSpace(string(data))
	value, err := strconv.Atoi(raw)
	if err == nil && value >= 0 {
		return value, nil
	}

	if !c.lenient {
		return 0, fmt.Errorf("%w: %q", ErrCounterUnreadable, raw)
	}
	c.logger.WithFields(logrus.Fields{
		"action": "session_counter_reset",
		"raw":    raw,
	}).Warn("session counter unreadable, restarting at 0")
	return 0, nil
}

// next 写回 current+1 并在返回前强制落盘。
func (c *sessionCounter) next() (int, error) {
	value, err := c.current()
	if err != nil {
		return 0, err
	}
	value++
	if err := c.dir.replace(CounterFileName, []byte(strconv.Itoa(value))); err != nil {
		return 0, fmt.Errorf("write session counter: %w", err)
	}
	return value, nil
}
