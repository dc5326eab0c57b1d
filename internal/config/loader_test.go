package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadFailsWithMissingFields(t *testing.T) {
	if _, err := Load(testConfigPath(t, "missing.toml")); err == nil {
		t.Fatalf("缺失字段的配置应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"
StoragePath = "./data"
CacheTTL = "boom"

[[Device]]
Name = "probe"
ID = "01"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadAcceptsSecondsDuration(t *testing.T) {
	cfg := `
StoragePath = "./data"
CacheTTL = 3600
MaintenanceInterval = "30s"

[[Device]]
Name = "probe"
ID = "01"
CacheTTL = "90"
`
	loaded, err := Load(writeTempConfig(t, cfg))
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if loaded.Global.CacheTTL.DurationValue() != time.Hour {
		t.Fatalf("整数秒应被解析为 1h，得到 %v", loaded.Global.CacheTTL.DurationValue())
	}
	if loaded.Devices[0].CacheTTL.DurationValue() != 90*time.Second {
		t.Fatalf("字符串秒应被解析，得到 %v", loaded.Devices[0].CacheTTL.DurationValue())
	}
}

func TestLoadRejectsDeviceStoragePath(t *testing.T) {
	cfg := `
StoragePath = "./data"

[[Device]]
Name = "probe"
ID = "01"
StoragePath = "/elsewhere"
`
	_, err := Load(writeTempConfig(t, cfg))
	var fieldErr FieldError
	if !errors.As(err, &fieldErr) || fieldErr.Field != "Device[probe].StoragePath" {
		t.Fatalf("expected Device[probe].StoragePath error, got %v", err)
	}
}
