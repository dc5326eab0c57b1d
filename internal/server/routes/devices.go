package routes

import (
	"sort"

	"github.com/gofiber/fiber/v3"

	"github.com/gaslog/gaslog/internal/server"
)

// ActiveSessions 返回进行中的会话文件名，*server.SessionIngest 的 Active 方法满足该签名。
type ActiveSessions func() []string

// RegisterDeviceRoutes 暴露 /-/devices 诊断接口，列出已配置设备与进行中的会话。
func RegisterDeviceRoutes(app *fiber.App, registry *server.DeviceRegistry, active ActiveSessions) {
	if app == nil || registry == nil {
		return
	}

	app.Get("/-/devices", func(c fiber.Ctx) error {
		payload := fiber.Map{
			"devices": encodeDevices(registry.List()),
		}
		if active != nil {
			payload["active_sessions"] = active()
		}
		return c.JSON(payload)
	})
}

type devicePayload struct {
	Name       string `json:"name"`
	ID         string `json:"id"`
	Key        string `json:"key"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

func encodeDevices(routes []server.DeviceRoute) []devicePayload {
	if len(routes) == 0 {
		return nil
	}
	sort.Slice(routes, func(i, j int) bool {
		return routes[i].Config.Name < routes[j].Config.Name
	})
	result := make([]devicePayload, 0, len(routes))
	for _, route := range routes {
		result = append(result, devicePayload{
			Name:       route.Config.Name,
			ID:         route.Config.ID,
			Key:        route.Key,
			TTLSeconds: int64(route.CacheTTL.Seconds()),
		})
	}
	return result
}
