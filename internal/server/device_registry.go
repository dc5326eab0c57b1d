package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/gaslog/gaslog/internal/config"
)

// DeviceRoute 将设备配置与派生属性（归一化 ID、生效 TTL）聚合在一起，
// 供会话处理直接复用，避免重复解析配置。
type DeviceRoute struct {
	// Config 是 config.toml 中声明的设备字段副本。
	Config config.DeviceConfig
	// Key 是归一化后的设备 ID，作为查找键。
	Key string
	// CacheTTL 是对该设备生效的会话文件 TTL。
	CacheTTL time.Duration
}

// DeviceRegistry 提供设备 ID 到 DeviceRoute 的查询能力。
type DeviceRegistry struct {
	routes  map[string]*DeviceRoute
	ordered []*DeviceRoute
}

// NewDeviceRegistry 根据配置构建设备映射。调用方应在启动阶段创建一次并复用。
func NewDeviceRegistry(cfg *config.Config) (*DeviceRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	registry := &DeviceRegistry{
		routes: make(map[string]*DeviceRoute, len(cfg.Devices)),
	}

	for _, device := range cfg.Devices {
		key := config.NormalizeDeviceID(device.ID)
		if key == "" {
			return nil, fmt.Errorf("invalid id for device %s", device.Name)
		}
		if _, exists := registry.routes[key]; exists {
			return nil, fmt.Errorf("duplicate device id detected for %s", device.ID)
		}

		route := &DeviceRoute{
			Config:   device,
			Key:      key,
			CacheTTL: cfg.EffectiveCacheTTL(device),
		}
		registry.routes[key] = route
		registry.ordered = append(registry.ordered, route)
	}

	return registry, nil
}

// Lookup 根据设备 ID 查找路由，ID 的大小写与 ':'/'-' 分隔符不敏感。
func (r *DeviceRegistry) Lookup(id string) (*DeviceRoute, bool) {
	if r == nil {
		return nil, false
	}
	key := config.NormalizeDeviceID(id)
	if key == "" {
		return nil, false
	}
	route, ok := r.routes[key]
	return route, ok
}

// List 返回当前注册的设备列表（按配置定义的顺序），用于诊断输出。
func (r *DeviceRegistry) List() []DeviceRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}

	result := make([]DeviceRoute, len(r.ordered))
	for i, route := range r.ordered {
		result[i] = *route
	}
	return result
}
