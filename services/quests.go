// services/quests.go
package services

import (
	"errors"
	"log"

	"quest-reward-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// QuestService owns the admin-facing quest/campaign catalog. Definitions are
// immutable to the completion core; only these admin handlers create them.
type QuestService struct {
	DB *gorm.DB
}

func NewQuestService(db *gorm.DB) *QuestService {
	return &QuestService{DB: db}
}

// CreateQuest creates a quest definition (Admin only)
func (s *QuestService) CreateQuest(c *fiber.Ctx) error {
	var req struct {
		Title          string               `json:"title" validate:"required"`
		Description    string               `json:"description"`
		Category       models.QuestCategory `json:"category" validate:"required,oneof=social on_chain daily weekly timed"`
		Kind           models.TaskKind      `json:"kind"`
		TargetURL      string               `json:"target_url"`
		XPReward       int64                `json:"xp_reward" validate:"required,min=1"`
		TrustReward    int64                `json:"trust_reward"`
		RequiresReview bool                 `json:"requires_review"`
		TimerSeconds   int64                `json:"timer_seconds"`
		CampaignID     *string              `json:"campaign_id"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Title == "" || req.XPReward < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title and a positive xp_reward are required"})
	}
	if req.Category == models.CategoryTimed && req.TimerSeconds < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "timer_seconds is required for timed quests"})
	}

	// The kind is resolved once here and carried onto submissions and
	// completion records downstream.
	kind := req.Kind
	if kind == "" {
		if req.CampaignID != nil {
			kind = models.TaskCampaignQuest
		} else {
			kind = models.TaskEcosystemQuest
		}
	}
	if !kind.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown quest kind"})
	}
	if req.CampaignID != nil && kind != models.TaskCampaignQuest {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "campaign quests must use kind campaign_quest"})
	}

	if req.CampaignID != nil {
		var campaign models.Campaign
		if err := s.DB.First(&campaign, "id = ?", *req.CampaignID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Campaign not found"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}
	}

	quest := &models.Quest{
		ID:             uuid.NewString(),
		Title:          req.Title,
		Slug:           slug.Make(req.Title),
		Description:    req.Description,
		Category:       req.Category,
		Kind:           kind,
		TargetURL:      req.TargetURL,
		XPReward:       req.XPReward,
		TrustReward:    req.TrustReward,
		RequiresReview: req.RequiresReview,
		TimerSeconds:   req.TimerSeconds,
		CampaignID:     req.CampaignID,
	}

	if err := s.DB.Create(quest).Error; err != nil {
		log.Printf("DB Error creating quest: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create quest"})
	}

	return c.Status(fiber.StatusCreated).JSON(quest)
}

// CreateCampaign creates a campaign shell (Admin only). The contract address
// may be attached later via UpdateCampaignContract.
func (s *QuestService) CreateCampaign(c *fiber.Ctx) error {
	var req struct {
		Name            string `json:"name" validate:"required"`
		NoOfQuests      int64  `json:"no_of_quests" validate:"required,min=1"`
		ContractAddress string `json:"contract_address"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Name == "" || req.NoOfQuests < 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name and a positive no_of_quests are required"})
	}

	campaign := &models.Campaign{
		ID:              uuid.NewString(),
		Name:            req.Name,
		Slug:            slug.Make(req.Name),
		NoOfQuests:      req.NoOfQuests,
		ContractAddress: req.ContractAddress,
	}

	if err := s.DB.Create(campaign).Error; err != nil {
		log.Printf("DB Error creating campaign: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create campaign"})
	}

	return c.Status(fiber.StatusCreated).JSON(campaign)
}

// UpdateCampaignContract attaches the deployed claim contract (Admin only).
// Deferred claims for the campaign are picked up by the reconciliation sweep.
func (s *QuestService) UpdateCampaignContract(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid campaign ID"})
	}

	var req struct {
		ContractAddress string `json:"contract_address" validate:"required"`
	}
	if err := c.BodyParser(&req); err != nil || req.ContractAddress == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "contract_address is required"})
	}

	var campaign models.Campaign
	if err := s.DB.First(&campaign, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Campaign not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	campaign.ContractAddress = req.ContractAddress
	if err := s.DB.Save(&campaign).Error; err != nil {
		log.Printf("DB Error updating campaign contract: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update campaign"})
	}

	return c.JSON(campaign)
}

// ListQuests returns the quest catalog, optionally filtered by campaign.
func (s *QuestService) ListQuests(c *fiber.Ctx) error {
	query := s.DB.Order("created_at DESC")
	if campaignID := c.Query("campaign_id"); campaignID != "" {
		query = query.Where("campaign_id = ?", campaignID)
	}
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}

	var quests []models.Quest
	if err := query.Find(&quests).Error; err != nil {
		log.Printf("DB Error fetching quests: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch quests"})
	}
	return c.JSON(quests)
}

// GetCampaignStatus returns the authenticated user's completion standing for
// a campaign, including the claim bookkeeping once fully completed.
func (s *QuestService) GetCampaignStatus(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	campaignID := c.Params("id")

	var campaign models.Campaign
	if err := s.DB.First(&campaign, "id = ?", campaignID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Campaign not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var done int64
	if err := s.DB.Model(&models.CompletionRecord{}).
		Where("user_id = ? AND campaign_id = ? AND done = ?", userID, campaignID, true).
		Count(&done).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	response := fiber.Map{
		"campaign_id":     campaign.ID,
		"name":            campaign.Name,
		"no_of_quests":    campaign.NoOfQuests,
		"quests_done":     done,
		"fully_completed": false,
	}

	var completed models.CampaignCompleted
	err := s.DB.Where("user_id = ? AND campaign_id = ?", userID, campaignID).First(&completed).Error
	if err == nil {
		response["fully_completed"] = true
		response["claim_status"] = completed.ClaimStatus
		response["claim_attempts"] = completed.ClaimAttempts
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	return c.JSON(response)
}
