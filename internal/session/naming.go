package session

import (
	"fmt"
	"strings"
	"time"
)

const (
	filePrefix = "survey_"
	fileExt    = ".csv"

	// TimestampLayout 是文件名中使用的紧凑 UTC 时间格式。
	TimestampLayout = "20060102T150405Z"
)

// Device 描述一台采集设备，ID 通常是 MAC 地址或十六进制序列号。
type Device struct {
	Name string
	ID   string
}

// FileName 按 survey_<slug>_<hex6>_session_<NNN>_<UTC>.csv 生成会话文件名。
func FileName(device Device, counter int, started time.Time) string {
	return fmt.Sprintf("%s%s_%s_session_%03d_%s%s",
		filePrefix,
		Slug(device.Name),
		HexSuffix(device.ID),
		counter,
		started.UTC().Format(TimestampLayout),
		fileExt,
	)
}

// Slug 将设备名转换为小写，并把连续的非 [a-z0-9] 字符折叠为单个 '_'。
func Slug(name string) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	if b.Len() == 0 {
		return "device"
	}
	return b.String()
}

// HexSuffix 取设备 ID 中十六进制字符的最后六位（小写）。
func HexSuffix(id string) string {
	var digits []byte
	for i := 0; i < len(id); i++ {
		ch := id[i]
		switch {
		case ch >= '0' && ch <= '9', ch >= 'a' && ch <= 'f':
			digits = append(digits, ch)
		case ch >= 'A' && ch <= 'F':
			digits = append(digits, ch+('a'-'A'))
		}
	}
	if len(digits) == 0 {
		return "000000"
	}
	if len(digits) > 6 {
		digits = digits[len(digits)-6:]
	}
	return string(digits)
}

// IsSessionFile 判断文件名是否遵循会话命名约定。
func IsSessionFile(name string) bool {
	return strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileExt) &&
		strings.Contains(name, "_session_")
}
