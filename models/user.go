package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the per-user gamification aggregate (denormalized for performance).
// The auth subsystem owns identity; this service only mutates the reward
// fields. XP and TrustEarned are monotonically non-decreasing.
type User struct {
	ID             string `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"` // auth service's UUID
	Username       string `gorm:"index" json:"username"`

	XP          int64 `json:"xp" gorm:"default:0"`
	TrustEarned int64 `json:"trust_earned" gorm:"default:0"` // accrued token amount

	QuestsCompleted int64 `json:"quests_completed" gorm:"default:0"` // ecosystem-wide quests
	TasksCompleted  int64 `json:"tasks_completed" gorm:"default:0"`  // campaign tasks

	Timestamps
}

// LevelBadge marks one NFT badge per (user, level). A row is created when a
// mint is requested and confirmed only by the external mint confirmation —
// the unique index is the mint-idempotency guard, never level computation.
type LevelBadge struct {
	ID          string     `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string     `gorm:"not null;uniqueIndex:idx_level_badge_user_level" json:"user_id"` // external user ID
	Level       int        `gorm:"not null;uniqueIndex:idx_level_badge_user_level" json:"level"`
	Confirmed   bool       `gorm:"default:false;index" json:"confirmed"`
	RequestedAt time.Time  `gorm:"autoCreateTime" json:"requested_at"`
	MintedAt    *time.Time `json:"minted_at,omitempty"`
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
