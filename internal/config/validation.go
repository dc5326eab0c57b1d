package config

import (
	"errors"
	"strings"
)

var supportedLogFormats = map[string]struct{}{
	"json": {},
	"text": {},
}

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if strings.TrimSpace(g.StoragePath) == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.CacheTTL.DurationValue() <= 0 {
		return newFieldError("Global.CacheTTL", "必须大于 0")
	}
	if g.MaxCacheBytes < 0 {
		return newFieldError("Global.MaxCacheBytes", "不能为负数（0 表示不限制）")
	}
	if g.MaintenanceInterval.DurationValue() <= 0 {
		return newFieldError("Global.MaintenanceInterval", "必须大于 0")
	}
	if g.LogFormat != "" {
		if _, ok := supportedLogFormats[strings.ToLower(g.LogFormat)]; !ok {
			return newFieldError("Global.LogFormat", "仅支持 json/text")
		}
	}

	if len(c.Devices) == 0 {
		return errors.New("至少需要配置一个 Device")
	}

	seenNames := map[string]struct{}{}
	seenIDs := map[string]struct{}{}
	for i := range c.Devices {
		device := &c.Devices[i]
		if device.Name == "" {
			return newFieldError("Device[].Name", "不能为空")
		}
		if _, exists := seenNames[device.Name]; exists {
			return newFieldError(deviceField(device.Name, "Name"), "重复")
		}
		seenNames[device.Name] = struct{}{}

		if device.ID == "" {
			return newFieldError(deviceField(device.Name, "ID"), "不能为空")
		}
		if strings.ContainsAny(device.ID, " /\\") {
			return newFieldError(deviceField(device.Name, "ID"), "不允许包含空格或路径分隔符")
		}
		key := NormalizeDeviceID(device.ID)
		if _, exists := seenIDs[key]; exists {
			return newFieldError(deviceField(device.Name, "ID"), "重复")
		}
		seenIDs[key] = struct{}{}
	}

	return nil
}

// NormalizeDeviceID 统一设备 ID 的大小写与分隔符，便于查找与去重。
func NormalizeDeviceID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	return strings.NewReplacer(":", "", "-", "").Replace(id)
}
