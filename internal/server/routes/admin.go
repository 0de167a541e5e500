package routes

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v3"

	"github.com/asset-gate/asset-gate/internal/cache"
	"github.com/asset-gate/asset-gate/internal/controller"
)

// LifecycleController 描述 admin 路由依赖的控制器能力，便于测试注入。
type LifecycleController interface {
	HandleMessage(ctx context.Context, cmd controller.Command) controller.Reply
	Phase() controller.Phase
	ServingGeneration() string
}

// RegisterAdminRoutes 暴露 /-/message 带外消息通道与 /-/status 诊断接口。
func RegisterAdminRoutes(app *fiber.App, ctrl LifecycleController, store cache.Store) {
	if app == nil || ctrl == nil {
		return
	}

	app.Post("/-/message", func(c fiber.Ctx) error {
		var cmd controller.Command
		if err := json.Unmarshal(c.Body(), &cmd); err != nil || cmd.Type == "" {
			return c.Status(fiber.StatusBadRequest).JSON(controller.Reply{
				Success: false,
				Error:   "invalid message payload",
			})
		}

		ctx := c.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		reply := ctrl.HandleMessage(ctx, cmd)
		return c.JSON(reply)
	})

	app.Get("/-/status", func(c fiber.Ctx) error {
		ctx := c.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		payload := fiber.Map{
			"phase":      string(ctrl.Phase()),
			"generation": ctrl.ServingGeneration(),
		}
		if store != nil {
			if names, err := store.Partitions(ctx); err == nil {
				payload["partitions"] = names
			}
		}
		return c.JSON(payload)
	})
}
