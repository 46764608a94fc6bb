// handlers/engagement_routes.go
package handlers

import (
	"errors"
	"strconv"

	"quest-reward-system/middleware"
	"quest-reward-system/models"
	"quest-reward-system/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// SetupEngagementRoutes wires the completion, moderation and progress surface.
// The gateway forwards authenticated user context via X-User-ID/X-User-Roles.
func SetupEngagementRoutes(app *fiber.App, recorder *services.RecorderService, moderation *services.ModerationService, rewards *services.RewardService) {
	securedGroup := app.Group("/s", middleware.UserContextMiddleware())

	// Auto-verifiable quest completion. Duplicate attempts come back as
	// applied=false with HTTP 200 — retries must look like success.
	securedGroup.Post("/quests/:id/complete", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		result, err := recorder.RecordCompletion(c.Context(), userID, c.Params("id"))
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(result)
	})

	securedGroup.Post("/quests/:id/start", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		rec, err := recorder.StartTimedQuest(c.Context(), userID, c.Params("id"))
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(fiber.Map{
			"quest_id": rec.QuestID,
			"timer_at": rec.TimerAt,
			"done":     rec.Done,
		})
	})

	securedGroup.Post("/quests/:id/submit", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		var req struct {
			EvidenceLink string `json:"evidence_link" validate:"required,url"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		sub, err := moderation.SubmitEvidence(c.Context(), userID, c.Params("id"), req.EvidenceLink)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(sub)
	})

	securedGroup.Get("/user/progress", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var user models.User
		if err := recorder.DB.Where("external_user_id = ?", userID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "DB error fetching progress",
				"cause": err.Error(),
			})
		}

		badges, err := rewards.Badges(c.Context(), userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to fetch badges",
				"cause": err.Error(),
			})
		}
		badgeLevels := make([]int, 0, len(badges))
		for _, b := range badges {
			badgeLevels = append(badgeLevels, b.Level)
		}

		return c.JSON(fiber.Map{
			"id":               user.ID,
			"xp":               user.XP,
			"level":            services.LevelFor(user.XP),
			"trust_earned":     user.TrustEarned,
			"quests_completed": user.QuestsCompleted,
			"tasks_completed":  user.TasksCompleted,
			"badges":           badgeLevels,
		})
	})

	// Moderator endpoints
	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware())

	adminGroup.Get("/submissions/pending", func(c *fiber.Ctx) error {
		if !middleware.HasRole(c, "moderator") {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "moderator role required"})
		}
		limit, _ := strconv.Atoi(c.Query("limit", "50"))
		subs, err := moderation.PendingSubmissions(c.Context(), limit)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to fetch pending submissions",
				"cause": err.Error(),
			})
		}
		return c.JSON(subs)
	})

	adminGroup.Post("/submissions/:id/review", func(c *fiber.Ctx) error {
		if !middleware.HasRole(c, "moderator") {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "moderator role required"})
		}
		moderatorID := c.Locals("user_id").(string)

		var req struct {
			Decision models.ReviewDecision `json:"decision" validate:"required,oneof=accept reject"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if req.Decision != models.DecisionAccept && req.Decision != models.DecisionReject {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "decision must be accept or reject"})
		}

		if err := moderation.Review(c.Context(), c.Params("id"), req.Decision, moderatorID); err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(fiber.Map{"message": "review recorded", "decision": req.Decision})
	})

	// Service-to-service: the chain executor confirms an NFT badge mint.
	// Covered by the global gateway token, not user context.
	app.Post("/badges/confirm", func(c *fiber.Ctx) error {
		var req struct {
			UserID string `json:"user_id" validate:"required"`
			Level  int    `json:"level" validate:"required,min=1,max=10"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "cause": err.Error()})
		}
		if req.UserID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id is required"})
		}
		if err := rewards.ConfirmBadgeMint(c.Context(), req.UserID, req.Level); err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(fiber.Map{"message": "badge mint confirmed", "level": req.Level})
	})
}

// errorResponse maps the core error taxonomy onto HTTP statuses.
func errorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, models.ErrAlreadyCompleted):
		// Idempotent no-op — clients treat this as success.
		return c.JSON(fiber.Map{"applied": false, "reason": services.ReasonAlreadyCompleted})
	case errors.Is(err, models.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, models.ErrNotReady):
		return c.Status(fiber.StatusTooEarly).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, models.ErrClaimGatewayUnavailable):
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
