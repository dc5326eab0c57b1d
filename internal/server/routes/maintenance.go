package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/gaslog/gaslog/internal/maintenance"
)

// RegisterMaintenanceRoutes 暴露 /-/maintenance/run，允许运维手动触发一次清理。
func RegisterMaintenanceRoutes(app *fiber.App, janitor *maintenance.Janitor) {
	if app == nil || janitor == nil {
		return
	}

	app.Post("/-/maintenance/run", func(c fiber.Ctx) error {
		res, err := janitor.RunOnce()
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":  "maintenance_failed",
				"detail": err.Error(),
				"result": res,
			})
		}
		return c.JSON(res)
	})
}
