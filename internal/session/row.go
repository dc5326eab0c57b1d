package session

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Header 是每个会话文件的第一行。
const Header = "GPS UTC,Error Code,Methane (ppm),Ethane (ppm),Phone Latitude,Phone Longitude"

// FieldCount 是每一行的固定字段数。
const FieldCount = 6

// RowTimeLayout 是第一列 GPS UTC 的时间格式。
const RowTimeLayout = "2006-01-02T15:04:05Z"

// ErrFieldCount 表示某个字段包含分隔符或换行，写入后字段数将不再是 6。
var ErrFieldCount = errors.New("session: row must have exactly 6 fields")

// Reading 是上游流式数据源产出的一条读数，数值保持原始字符串。
type Reading struct {
	ErrorCode string `json:"error_code"`
	Methane   string `json:"methane"`
	Ethane    string `json:"ethane"`
}

// Location 是最近一次已知的手机位置。
type Location struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

// FormatRow 按表头顺序拼接一行，不做引号转义。
func FormatRow(at time.Time, reading Reading, loc Location) (string, error) {
	fields := []string{
		at.UTC().Format(RowTimeLayout),
		reading.ErrorCode,
		reading.Methane,
		reading.Ethane,
		loc.Latitude,
		loc.Longitude,
	}
	for i, f := range fields {
		if strings.ContainsAny(f, ",\r\n") {
			return "", fmt.Errorf("%w: field %d contains a delimiter", ErrFieldCount, i+1)
		}
	}
	return strings.Join(fields, ","), nil
}
