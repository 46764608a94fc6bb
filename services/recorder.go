// services/recorder.go
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

// CompletionResult reports whether a completion attempt mutated state.
// Applied=false with ReasonAlreadyCompleted is a success from the client's
// point of view: duplicate attempts must not look like errors.
type CompletionResult struct {
	Applied bool   `json:"applied"`
	Reason  string `json:"reason,omitempty"`
}

const ReasonAlreadyCompleted = "already_completed"

// RecorderService enforces at-most-once completion of a (user, quest) pair
// and owns the single reward-accrual code path shared by auto-verified and
// moderated completions.
type RecorderService struct {
	DB         *gorm.DB
	Rewards    *RewardService
	Aggregator *AggregatorService
}

func NewRecorderService(db *gorm.DB, rewards *RewardService, aggregator *AggregatorService) *RecorderService {
	return &RecorderService{DB: db, Rewards: rewards, Aggregator: aggregator}
}

// RecordCompletion completes an auto-verifiable quest for a user. Quests that
// require evidence review are rejected with Conflict; the moderation engine is
// their only entry point.
func (s *RecorderService) RecordCompletion(ctx context.Context, userID, questID string) (CompletionResult, error) {
	quest, err := s.questByID(ctx, questID)
	if err != nil {
		return CompletionResult{}, err
	}
	if quest.RequiresReview {
		return CompletionResult{}, fmt.Errorf("quest %s is evidence-based: %w", questID, models.ErrConflict)
	}
	if _, err := s.userByExternalID(ctx, userID); err != nil {
		return CompletionResult{}, err
	}

	if quest.Category == models.CategoryTimed {
		var rec models.CompletionRecord
		err := s.DB.WithContext(ctx).
			Where("user_id = ? AND quest_id = ?", userID, quest.ID).
			First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Never started — the time gate is unmet by definition.
			return CompletionResult{}, fmt.Errorf("quest %s was not started: %w", questID, models.ErrNotReady)
		}
		if err != nil {
			return CompletionResult{}, err
		}
		if rec.Done {
			return CompletionResult{Applied: false, Reason: ReasonAlreadyCompleted}, nil
		}
		if rec.TimerAt == nil || time.Now().Before(*rec.TimerAt) {
			return CompletionResult{}, fmt.Errorf("quest %s timer pending: %w", questID, models.ErrNotReady)
		}
	}

	var mintLevel int
	applied := false
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		won, err := markDone(tx, quest, userID)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}
		applied = true
		mintLevel, err = s.applyReward(tx, quest, userID)
		return err
	})
	if err != nil {
		return CompletionResult{}, err
	}
	if !applied {
		return CompletionResult{Applied: false, Reason: ReasonAlreadyCompleted}, nil
	}

	s.afterCompletion(ctx, quest, userID, mintLevel)
	return CompletionResult{Applied: true}, nil
}

// StartTimedQuest arms the timer for a timed ecosystem quest. Starting is
// idempotent: a second start returns the existing record without resetting
// the timer.
func (s *RecorderService) StartTimedQuest(ctx context.Context, userID, questID string) (*models.CompletionRecord, error) {
	quest, err := s.questByID(ctx, questID)
	if err != nil {
		return nil, err
	}
	if quest.Category != models.CategoryTimed {
		return nil, fmt.Errorf("quest %s is not a timed quest: %w", questID, models.ErrConflict)
	}
	if _, err := s.userByExternalID(ctx, userID); err != nil {
		return nil, err
	}

	timerAt := time.Now().Add(time.Duration(quest.TimerSeconds) * time.Second)
	rec := models.CompletionRecord{
		ID:         uuid.NewString(),
		UserID:     userID,
		QuestID:    quest.ID,
		Kind:       quest.Kind,
		CampaignID: quest.CampaignID,
		Status:     models.StatusPending,
		TimerAt:    &timerAt,
	}
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		var existing models.CompletionRecord
		if err := s.DB.WithContext(ctx).
			Where("user_id = ? AND quest_id = ?", userID, quest.ID).
			First(&existing).Error; err != nil {
			return nil, err
		}
		return &existing, nil
	}
	return &rec, nil
}

// ExpireRecurring hard-deletes recurring completion records whose expiry has
// passed, making those quests completable again. This is the one sanctioned
// path to re-completion. Returns the number of records removed.
func (s *RecorderService) ExpireRecurring(ctx context.Context) (int64, error) {
	res := s.DB.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", time.Now()).
		Delete(&models.CompletionRecord{})
	return res.RowsAffected, res.Error
}

// markDone flips the completion record for (user, quest) to done. The atomic
// upsert-if-absent on the unique (user_id, quest_id) index is the sole point
// of mutual exclusion between concurrent completion attempts; when the row
// already exists (evidence or timed flows), the conditional done=false→true
// update plays the same role. Exactly one caller observes won=true.
func markDone(tx *gorm.DB, quest *models.Quest, userID string) (bool, error) {
	rec := models.CompletionRecord{
		ID:         uuid.NewString(),
		UserID:     userID,
		QuestID:    quest.ID,
		Kind:       quest.Kind,
		CampaignID: quest.CampaignID,
		Done:       true,
		Status:     models.StatusDone,
	}
	if window, ok := recurrenceWindow(quest.Category); ok {
		exp := time.Now().Add(window)
		rec.ExpiresAt = &exp
	}

	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	updates := map[string]any{
		"done":   true,
		"status": models.StatusDone,
	}
	if rec.ExpiresAt != nil {
		updates["expires_at"] = *rec.ExpiresAt
	}
	upd := tx.Model(&models.CompletionRecord{}).
		Where("user_id = ? AND quest_id = ? AND done = ?", userID, quest.ID, false).
		Updates(updates)
	if upd.Error != nil {
		return false, upd.Error
	}
	return upd.RowsAffected == 1, nil
}

// applyReward mutates the user aggregate inside the caller's transaction and
// evaluates mint eligibility. Callers must hold the markDone win before
// invoking it — this is the only reward-accrual path in the service.
//
// Accrual uses relative SQL increments, not a read-modify-write: two users
// completing different quests insert different completion rows, so markDone
// does not serialize them, and a snapshot-based Save would let the second
// committer overwrite the first's XP. The increment re-evaluates against the
// committed row under the row lock, and the re-read below feeds the level
// check the accrued total.
func (s *RecorderService) applyReward(tx *gorm.DB, quest *models.Quest, userID string) (int, error) {
	var user models.User
	if err := tx.Where("external_user_id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
		}
		return 0, err
	}

	counter := "quests_completed"
	if quest.Kind == models.TaskCampaignQuest {
		counter = "tasks_completed"
	}
	res := tx.Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"xp":           gorm.Expr("xp + ?", quest.XPReward),
			"trust_earned": gorm.Expr("trust_earned + ?", quest.TrustReward),
			counter:        gorm.Expr(counter + " + 1"),
		})
	if res.Error != nil {
		return 0, res.Error
	}

	if err := tx.Where("id = ?", user.ID).First(&user).Error; err != nil {
		return 0, err
	}
	return s.Rewards.evaluateLevel(tx, &user)
}

// afterCompletion runs the post-commit side of a won completion: the mint
// hook and the campaign aggregation. Both are fire-and-record — neither can
// roll back the committed completion.
func (s *RecorderService) afterCompletion(ctx context.Context, quest *models.Quest, userID string, mintLevel int) {
	s.Rewards.RequestMint(ctx, userID, mintLevel)
	if quest.CampaignID != nil {
		if err := s.Aggregator.OnQuestCompleted(ctx, userID, *quest.CampaignID); err != nil {
			log.Printf("❌ [RECORDER] campaign aggregation failed for user=%s campaign=%s: %v",
				userID, *quest.CampaignID, err)
		}
	}
}

func recurrenceWindow(category models.QuestCategory) (time.Duration, bool) {
	switch category {
	case models.CategoryDaily:
		return 24 * time.Hour, true
	case models.CategoryWeekly:
		return 7 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

func (s *RecorderService) questByID(ctx context.Context, questID string) (*models.Quest, error) {
	var quest models.Quest
	if err := s.DB.WithContext(ctx).Where("id = ?", questID).First(&quest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("quest %s: %w", questID, models.ErrNotFound)
		}
		return nil, err
	}
	return &quest, nil
}

func (s *RecorderService) userByExternalID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).Where("external_user_id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}
