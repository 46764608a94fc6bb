// services/rewards.go
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

// Level thresholds: minimum XP for each level, pre-sorted ascending. Roughly
// 1000-XP steps widening at higher tiers.
type levelThreshold struct {
	Floor int64
	Level int
}

var levelThresholds = []levelThreshold{
	{1000, 1},
	{3000, 2},
	{6000, 3},
	{10000, 4},
	{15000, 5},
	{21000, 6},
	{28000, 7},
	{36000, 8},
	{45000, 9},
	{55000, 10},
}

// LevelFor maps accumulated XP to a level between 0 and 10. XP below the
// level-1 floor is level 0 (unleveled): it triggers no badge mint, so a fresh
// user is distinguishable from one who actually earned the first tier.
func LevelFor(xp int64) int {
	level := 0
	for _, t := range levelThresholds {
		if xp < t.Floor {
			break
		}
		level = t.Level
	}
	return level
}

type RewardService struct {
	DB      *gorm.DB
	Gateway ClaimGateway
}

func NewRewardService(db *gorm.DB, gateway ClaimGateway) *RewardService {
	return &RewardService{DB: db, Gateway: gateway}
}

// evaluateLevel decides, inside the caller's transaction, whether the user's
// current level needs a badge mint. The badge row is created unconfirmed via
// upsert-if-absent — the unique (user, level) index guarantees at most one
// mint request per level, even for concurrent completions. Returns the level
// to mint, or 0 if nothing is owed.
//
// The row is flipped to confirmed only by ConfirmBadgeMint; a level is never
// marked minted on speculation.
func (s *RewardService) evaluateLevel(tx *gorm.DB, user *models.User) (int, error) {
	level := LevelFor(user.XP)
	if level < 1 {
		return 0, nil
	}

	badge := models.LevelBadge{
		ID:     uuid.NewString(),
		UserID: user.ExternalUserID,
		Level:  level,
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&badge)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		// Mint already requested or confirmed for this level.
		return 0, nil
	}
	return level, nil
}

// RequestMint fires the executor's mint hook for a level won inside a prior
// transaction. Failures are logged and left to the reconciliation sweep (the
// unconfirmed badge row is the retry marker); they never fail the completion.
func (s *RewardService) RequestMint(ctx context.Context, userID string, level int) {
	if level < 1 {
		return
	}
	if err := s.Gateway.AllowMint(ctx, level, userID); err != nil {
		log.Printf("❌ [REWARDS] allowMint failed for user=%s level=%d: %v", userID, level, err)
		return
	}
	log.Printf("🎖️ [REWARDS] mint eligibility granted: user=%s level=%d", userID, level)
}

// ConfirmBadgeMint records the external executor's confirmation that the NFT
// badge for (user, level) was actually issued. Confirmation is authoritative:
// if the request row was lost, a confirmed row is created anyway — but only
// for a known user, so an executor typo cannot orphan a badge row.
func (s *RewardService) ConfirmBadgeMint(ctx context.Context, userID string, level int) error {
	if level < 1 || level > levelThresholds[len(levelThresholds)-1].Level {
		return models.ErrNotFound
	}
	now := time.Now()
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("external_user_id = ?", userID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
			}
			return err
		}

		var badge models.LevelBadge
		err := tx.Where("user_id = ? AND level = ?", userID, level).First(&badge).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			badge = models.LevelBadge{
				ID:        uuid.NewString(),
				UserID:    userID,
				Level:     level,
				Confirmed: true,
				MintedAt:  &now,
			}
			return tx.Create(&badge).Error
		}
		if err != nil {
			return err
		}
		if badge.Confirmed {
			return nil // confirmation retries are harmless
		}
		badge.Confirmed = true
		badge.MintedAt = &now
		return tx.Save(&badge).Error
	})
}

// Badges returns the user's badge levels (confirmed mints only).
func (s *RewardService) Badges(ctx context.Context, userID string) ([]models.LevelBadge, error) {
	var badges []models.LevelBadge
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND confirmed = ?", userID, true).
		Order("level ASC").
		Find(&badges).Error
	return badges, err
}
