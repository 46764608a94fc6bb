// handlers/quest_routes.go
package handlers

import (
	"quest-reward-system/middleware"
	"quest-reward-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupQuestRoutes(app *fiber.App, questService *services.QuestService) {
	securedGroup := app.Group("/s", middleware.UserContextMiddleware())

	securedGroup.Get("/quests", questService.ListQuests)
	securedGroup.Get("/campaigns/:id/status", questService.GetCampaignStatus)

	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware())

	adminOnly := func(handler fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if !middleware.HasRole(c, "admin") {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin role required"})
			}
			return handler(c)
		}
	}

	adminGroup.Post("/quests", adminOnly(questService.CreateQuest))
	adminGroup.Post("/campaigns", adminOnly(questService.CreateCampaign))
	adminGroup.Patch("/campaigns/:id/contract", adminOnly(questService.UpdateCampaignContract))
}
