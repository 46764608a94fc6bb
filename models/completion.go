package models

import "time"

// CompletionRecord is the authoritative at-most-once marker for
// "(user, quest) is satisfied". The unique (user_id, quest_id) index is the
// sole point of mutual exclusion for concurrent completion attempts: reward
// accrual proceeds only for the writer that wins the upsert-if-absent.
//
// No soft delete here: the expiry sweep hard-deletes recurring records so the
// unique index can accept the next day's completion.
type CompletionRecord struct {
	ID      string   `gorm:"primaryKey;type:uuid" json:"id"`
	UserID  string   `gorm:"not null;uniqueIndex:idx_completion_user_quest" json:"user_id"` // external user ID
	QuestID string   `gorm:"type:uuid;not null;uniqueIndex:idx_completion_user_quest" json:"quest_id"`
	Kind    TaskKind `gorm:"type:varchar(32);not null;index" json:"kind"`

	// CampaignID is denormalized from the quest so the aggregator can count
	// done campaign completions without a join.
	CampaignID *string `gorm:"type:uuid;index" json:"campaign_id,omitempty"`

	Done   bool             `gorm:"not null;default:false" json:"done"`
	Status SubmissionStatus `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`

	// ExpiresAt is set only for recurring quest categories; the sweep removes
	// the record after expiry so the quest becomes completable again.
	ExpiresAt *time.Time `gorm:"index" json:"expires_at,omitempty"`

	// TimerAt is set by the start action on timed quests: completion is
	// rejected with NotReady before this instant.
	TimerAt *time.Time `json:"timer_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// ClaimStatus tracks the outcome of the claim-gateway call attached to a
// CampaignCompleted row. Deferred and failed rows are retried by the
// reconciliation sweep, never by re-running completion logic.
type ClaimStatus string

const (
	ClaimGranted  ClaimStatus = "granted"
	ClaimDeferred ClaimStatus = "deferred"
	ClaimFailed   ClaimStatus = "failed"
)

// CampaignCompleted exists exactly once per (user, campaign), created when the
// user's done campaign-quest completions reach the campaign's declared quest
// count. Creation gates the single allowClaim call to the chain executor.
type CampaignCompleted struct {
	ID         string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID     string `gorm:"not null;uniqueIndex:idx_campaign_completed_user" json:"user_id"` // external user ID
	CampaignID string `gorm:"type:uuid;not null;uniqueIndex:idx_campaign_completed_user" json:"campaign_id"`

	ClaimStatus    ClaimStatus `gorm:"type:varchar(16);not null;default:'deferred';index" json:"claim_status"`
	ClaimAttempts  int         `gorm:"default:0" json:"claim_attempts"`
	LastClaimError string      `gorm:"type:text" json:"last_claim_error,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
