package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	defaultCacheTTL            = 14 * 24 * time.Hour
	defaultMaintenanceInterval = 10 * time.Minute
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	if err := rejectDeviceLevelStorage(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	for i := range cfg.Devices {
		applyDeviceDefaults(&cfg.Devices[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5080)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFormat", "json")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./sessions")
	v.SetDefault("CacheTTL", "336h")
	v.SetDefault("MaxCacheBytes", 512*1024*1024)
	v.SetDefault("MaintenanceInterval", "10m")
	v.SetDefault("LenientCounter", false)
	v.SetDefault("ExportCompression", false)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5080
	}
	if g.CacheTTL.DurationValue() == 0 {
		g.CacheTTL = Duration(defaultCacheTTL)
	}
	if g.MaintenanceInterval.DurationValue() == 0 {
		g.MaintenanceInterval = Duration(defaultMaintenanceInterval)
	}
}

func applyDeviceDefaults(d *DeviceConfig) {
	d.Name = strings.TrimSpace(d.Name)
	d.ID = strings.TrimSpace(d.ID)
	if d.CacheTTL.DurationValue() < 0 {
		d.CacheTTL = Duration(0)
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}

// rejectDeviceLevelStorage 拒绝设备级 StoragePath：一个进程只拥有一个缓存目录。
func rejectDeviceLevelStorage(v *viper.Viper) error {
	raw := v.Get("Device")
	devices, ok := raw.([]interface{})
	if !ok {
		return nil
	}

	for idx, entry := range devices {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		if _, exists := m["StoragePath"]; exists {
			name := fmt.Sprintf("#%d", idx)
			if rawName, ok := m["Name"].(string); ok && rawName != "" {
				name = rawName
			}
			return newFieldError(deviceField(name, "StoragePath"), "不支持设备级缓存目录，请使用全局 StoragePath")
		}
	}

	return nil
}
