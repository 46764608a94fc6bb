// services/aggregator.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"quest-reward-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AggregatorService watches per-user completion of a campaign's quests and,
// on full completion, gates the single claim-eligibility call to the chain
// executor behind a CampaignCompleted row.
type AggregatorService struct {
	DB      *gorm.DB
	Gateway ClaimGateway
}

func NewAggregatorService(db *gorm.DB, gateway ClaimGateway) *AggregatorService {
	return &AggregatorService{DB: db, Gateway: gateway}
}

// OnQuestCompleted re-evaluates full completion of (user, campaign). Invoked
// after every successful campaign-quest completion. The upsert-if-absent on
// CampaignCompleted is the re-entrancy guard: concurrent last-quest
// completions race to create the row and only the creator calls allowClaim.
//
// Gateway trouble never propagates — full completion is a user-side fact, so
// the row is created first and a failed or impossible claim call is flagged
// for the reconciliation sweep.
func (s *AggregatorService) OnQuestCompleted(ctx context.Context, userID, campaignID string) error {
	var campaign models.Campaign
	if err := s.DB.WithContext(ctx).Where("id = ?", campaignID).First(&campaign).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("campaign %s: %w", campaignID, models.ErrNotFound)
		}
		return err
	}

	var done int64
	if err := s.DB.WithContext(ctx).Model(&models.CompletionRecord{}).
		Where("user_id = ? AND campaign_id = ? AND done = ?", userID, campaignID, true).
		Count(&done).Error; err != nil {
		return err
	}
	if done < campaign.NoOfQuests {
		return nil
	}

	completed := models.CampaignCompleted{
		ID:          uuid.NewString(),
		UserID:      userID,
		CampaignID:  campaignID,
		ClaimStatus: models.ClaimDeferred,
	}
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&completed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Another writer already recorded full completion — nothing to do.
		return nil
	}
	log.Printf("🏁 [AGGREGATOR] campaign completed: user=%s campaign=%s (%d/%d quests)",
		userID, campaignID, done, campaign.NoOfQuests)

	if campaign.ContractAddress == "" {
		s.flagClaim(ctx, &completed, models.ClaimDeferred, models.ErrClaimGatewayUnavailable.Error(), false)
		return nil
	}

	if err := s.Gateway.AllowClaim(ctx, userID, campaign.ContractAddress); err != nil {
		log.Printf("❌ [AGGREGATOR] allowClaim failed for user=%s campaign=%s: %v", userID, campaignID, err)
		s.flagClaim(ctx, &completed, models.ClaimFailed, err.Error(), true)
		return nil
	}
	s.flagClaim(ctx, &completed, models.ClaimGranted, "", true)
	return nil
}

// RetryClaim re-attempts the gateway call for a deferred or failed row. Used
// only by the reconciliation sweep — it never re-runs completion logic, so
// retrying cannot double-accrue rewards.
func (s *AggregatorService) RetryClaim(ctx context.Context, completed *models.CampaignCompleted) error {
	if completed.ClaimStatus == models.ClaimGranted {
		return nil
	}

	var campaign models.Campaign
	if err := s.DB.WithContext(ctx).Where("id = ?", completed.CampaignID).First(&campaign).Error; err != nil {
		return err
	}
	if campaign.ContractAddress == "" {
		// Still no deployed contract; keep the row deferred.
		return models.ErrClaimGatewayUnavailable
	}

	if err := s.Gateway.AllowClaim(ctx, completed.UserID, campaign.ContractAddress); err != nil {
		s.flagClaim(ctx, completed, models.ClaimFailed, err.Error(), true)
		return fmt.Errorf("%w: %v", models.ErrClaimGatewayUnavailable, err)
	}
	s.flagClaim(ctx, completed, models.ClaimGranted, "", true)
	return nil
}

func (s *AggregatorService) flagClaim(ctx context.Context, completed *models.CampaignCompleted, status models.ClaimStatus, claimErr string, attempted bool) {
	completed.ClaimStatus = status
	completed.LastClaimError = claimErr
	if attempted {
		completed.ClaimAttempts++
	}
	updates := map[string]any{
		"claim_status":     status,
		"claim_attempts":   completed.ClaimAttempts,
		"last_claim_error": claimErr,
		"updated_at":       time.Now(),
	}
	if err := s.DB.WithContext(ctx).Model(&models.CampaignCompleted{}).
		Where("id = ?", completed.ID).
		Updates(updates).Error; err != nil {
		log.Printf("❌ [AGGREGATOR] failed to flag claim state for %s: %v", completed.ID, err)
	}
}

// PendingClaims returns rows whose gateway call still needs reconciliation.
func (s *AggregatorService) PendingClaims(ctx context.Context, limit int) ([]models.CampaignCompleted, error) {
	if limit < 1 {
		limit = 100
	}
	var rows []models.CampaignCompleted
	err := s.DB.WithContext(ctx).
		Where("claim_status IN ?", []models.ClaimStatus{models.ClaimDeferred, models.ClaimFailed}).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
