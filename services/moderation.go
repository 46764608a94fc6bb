// services/moderation.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"quest-reward-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ModerationService runs the bounded submission lifecycle for evidence-based
// quests: pending → done (terminal) or pending → retry → pending. The
// submission and its completion record are two projections of that one state
// machine and are always updated inside a single transaction.
type ModerationService struct {
	DB       *gorm.DB
	Recorder *RecorderService
}

func NewModerationService(db *gorm.DB, recorder *RecorderService) *ModerationService {
	return &ModerationService{DB: db, Recorder: recorder}
}

// SubmitEvidence records a user's evidence link for an evidence-based quest.
// A rejected submission is reset to pending with the new link; a quest whose
// completion record is already done reports AlreadyCompleted.
func (s *ModerationService) SubmitEvidence(ctx context.Context, userID, questID, evidenceLink string) (*models.Submission, error) {
	quest, err := s.Recorder.questByID(ctx, questID)
	if err != nil {
		return nil, err
	}
	if !quest.RequiresReview {
		return nil, fmt.Errorf("quest %s is auto-verified: %w", questID, models.ErrConflict)
	}
	if _, err := s.Recorder.userByExternalID(ctx, userID); err != nil {
		return nil, err
	}
	if evidenceLink == "" {
		return nil, fmt.Errorf("evidence link is required: %w", models.ErrConflict)
	}

	var sub models.Submission
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec models.CompletionRecord
		recErr := tx.Where("user_id = ? AND quest_id = ?", userID, quest.ID).First(&rec).Error
		switch {
		case recErr == nil:
			if rec.Done {
				return fmt.Errorf("quest %s: %w", questID, models.ErrAlreadyCompleted)
			}
			if rec.Status == models.StatusRetry {
				// Re-submission resets the projection alongside the submission.
				if err := tx.Model(&rec).Update("status", models.StatusPending).Error; err != nil {
					return err
				}
			}
		case errors.Is(recErr, gorm.ErrRecordNotFound):
			rec = models.CompletionRecord{
				ID:         uuid.NewString(),
				UserID:     userID,
				QuestID:    quest.ID,
				Kind:       quest.Kind,
				CampaignID: quest.CampaignID,
				Status:     models.StatusPending,
			}
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
		default:
			return recErr
		}

		subErr := tx.Where("user_id = ? AND quest_id = ?", userID, quest.ID).First(&sub).Error
		switch {
		case subErr == nil:
			if sub.Status == models.StatusDone {
				return fmt.Errorf("submission %s: %w", sub.ID, models.ErrAlreadyCompleted)
			}
			sub.Status = models.StatusPending
			sub.EvidenceLink = evidenceLink
			sub.ValidatedBy = nil
			return tx.Save(&sub).Error
		case errors.Is(subErr, gorm.ErrRecordNotFound):
			sub = models.Submission{
				ID:           uuid.NewString(),
				UserID:       userID,
				QuestID:      quest.ID,
				Kind:         quest.Kind,
				EvidenceLink: evidenceLink,
				Status:       models.StatusPending,
			}
			return tx.Create(&sub).Error
		default:
			return subErr
		}
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Review applies a moderator's verdict to a pending submission. Only pending
// submissions are actionable; the linked completion record must itself still
// be in {pending, retry} — both are checked before anything is mutated, so a
// submission and its record can never be accepted twice.
func (s *ModerationService) Review(ctx context.Context, submissionID string, decision models.ReviewDecision, moderatorID string) error {
	if _, err := s.Recorder.userByExternalID(ctx, moderatorID); err != nil {
		return err
	}

	var (
		quest     *models.Quest
		accepted  bool
		userID    string
		mintLevel int
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub models.Submission
		if err := tx.Where("id = ?", submissionID).First(&sub).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("submission %s: %w", submissionID, models.ErrNotFound)
			}
			return err
		}
		if sub.Status != models.StatusPending {
			return fmt.Errorf("submission %s is %s: %w", submissionID, sub.Status, models.ErrConflict)
		}

		var rec models.CompletionRecord
		if err := tx.Where("user_id = ? AND quest_id = ?", sub.UserID, sub.QuestID).First(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("completion record for submission %s: %w", submissionID, models.ErrNotFound)
			}
			return err
		}
		if rec.Done || rec.Status == models.StatusDone {
			return fmt.Errorf("completion record %s already done: %w", rec.ID, models.ErrConflict)
		}

		switch decision {
		case models.DecisionAccept:
			var err error
			quest, err = s.Recorder.questByID(ctx, sub.QuestID)
			if err != nil {
				return err
			}
			won, err := markDone(tx, quest, sub.UserID)
			if err != nil {
				return err
			}
			if !won {
				return fmt.Errorf("completion record %s raced to done: %w", rec.ID, models.ErrConflict)
			}
			mintLevel, err = s.Recorder.applyReward(tx, quest, sub.UserID)
			if err != nil {
				return err
			}
			sub.Status = models.StatusDone
			sub.ValidatedBy = &moderatorID
			accepted = true
			userID = sub.UserID
			return tx.Save(&sub).Error

		case models.DecisionReject:
			sub.Status = models.StatusRetry
			sub.ValidatedBy = &moderatorID
			if err := tx.Save(&sub).Error; err != nil {
				return err
			}
			return tx.Model(&models.CompletionRecord{}).
				Where("id = ? AND done = ?", rec.ID, false).
				Update("status", models.StatusRetry).Error

		default:
			return fmt.Errorf("unknown review decision %q: %w", decision, models.ErrConflict)
		}
	})
	if err != nil {
		return err
	}

	if accepted {
		log.Printf("✅ [MODERATION] submission %s accepted by %s", submissionID, moderatorID)
		s.Recorder.afterCompletion(ctx, quest, userID, mintLevel)
	} else {
		log.Printf("↩️ [MODERATION] submission %s sent back for retry by %s", submissionID, moderatorID)
	}
	return nil
}

// PendingSubmissions returns the moderation queue, oldest first.
func (s *ModerationService) PendingSubmissions(ctx context.Context, limit int) ([]models.Submission, error) {
	if limit < 1 || limit > 100 {
		limit = 50
	}
	var subs []models.Submission
	err := s.DB.WithContext(ctx).
		Where("status = ?", models.StatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}
