package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"336h" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// GlobalConfig 描述全局运行时行为：监听端口、日志与缓存目录策略。
type GlobalConfig struct {
	ListenPort          int      `mapstructure:"ListenPort"`
	LogLevel            string   `mapstructure:"LogLevel"`
	LogFormat           string   `mapstructure:"LogFormat"`
	LogFilePath         string   `mapstructure:"LogFilePath"`
	LogMaxSize          int      `mapstructure:"LogMaxSize"`
	LogMaxBackups       int      `mapstructure:"LogMaxBackups"`
	LogCompress         bool     `mapstructure:"LogCompress"`
	StoragePath         string   `mapstructure:"StoragePath"`
	CacheTTL            Duration `mapstructure:"CacheTTL"`
	MaxCacheBytes       int64    `mapstructure:"MaxCacheBytes"`
	MaintenanceInterval Duration `mapstructure:"MaintenanceInterval"`
	LenientCounter      bool     `mapstructure:"LenientCounter"`
	ExportCompression   bool     `mapstructure:"ExportCompression"`
}

// DeviceConfig 声明一台允许上报读数的采集设备。
type DeviceConfig struct {
	Name     string   `mapstructure:"Name"`
	ID       string   `mapstructure:"ID"`
	CacheTTL Duration `mapstructure:"CacheTTL"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global  GlobalConfig   `mapstructure:",squash"`
	Devices []DeviceConfig `mapstructure:"Device"`
}

// DeviceSummaries 返回 name:id 形式的设备摘要，供启动日志使用。
func DeviceSummaries(devices []DeviceConfig) []string {
	if len(devices) == 0 {
		return nil
	}
	result := make([]string, len(devices))
	for i, d := range devices {
		result[i] = fmt.Sprintf("%s:%s", d.Name, d.ID)
	}
	return result
}

// EffectiveCacheTTL 返回特定设备生效的 TTL，未覆盖时回退至全局值。
func (c *Config) EffectiveCacheTTL(d DeviceConfig) time.Duration {
	if d.CacheTTL.DurationValue() > 0 {
		return d.CacheTTL.DurationValue()
	}
	return c.Global.CacheTTL.DurationValue()
}
