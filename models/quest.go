package models

// TaskKind selects which completion-record semantics apply to a quest. It is
// resolved once when the quest is created and copied onto submissions and
// completion records, never re-derived at review time.
type TaskKind string

const (
	TaskQuest          TaskKind = "quest"
	TaskCampaignQuest  TaskKind = "campaign_quest"
	TaskMiniQuest      TaskKind = "mini_quest"
	TaskEcosystemQuest TaskKind = "ecosystem_quest"
)

// Valid reports whether k is one of the defined kinds.
func (k TaskKind) Valid() bool {
	switch k {
	case TaskQuest, TaskCampaignQuest, TaskMiniQuest, TaskEcosystemQuest:
		return true
	}
	return false
}

// QuestCategory tags quest behavior. Daily/weekly quests are recurring: their
// completion records expire and the quest becomes completable again. Timed
// quests require a start action and a waiting period before completion.
type QuestCategory string

const (
	CategorySocial  QuestCategory = "social"
	CategoryOnChain QuestCategory = "on_chain"
	CategoryDaily   QuestCategory = "daily"
	CategoryWeekly  QuestCategory = "weekly"
	CategoryTimed   QuestCategory = "timed"
)

// Recurring reports whether completions of this category reset on a schedule.
func (c QuestCategory) Recurring() bool {
	return c == CategoryDaily || c == CategoryWeekly
}

// Quest is an immutable task definition. Created by project/admin actors and
// read-only to the completion core.
type Quest struct {
	ID          string        `gorm:"primaryKey;type:uuid" json:"id"`
	Title       string        `gorm:"not null" json:"title"`
	Slug        string        `gorm:"uniqueIndex;not null" json:"slug"`
	Description string        `gorm:"type:text" json:"description"`
	Category    QuestCategory `gorm:"type:varchar(32);not null;index" json:"category"`
	Kind        TaskKind      `gorm:"type:varchar(32);not null" json:"kind"`
	TargetURL   string        `gorm:"type:text" json:"target_url,omitempty"`

	XPReward    int64 `gorm:"not null" json:"xp_reward"`
	TrustReward int64 `gorm:"default:0" json:"trust_reward"`

	// RequiresReview routes completion through evidence submission and human
	// moderation instead of the auto-complete path.
	RequiresReview bool `gorm:"default:false" json:"requires_review"`

	// TimerSeconds applies to timed quests: minimum delay between the start
	// action and a successful completion.
	TimerSeconds int64 `gorm:"default:0" json:"timer_seconds,omitempty"`

	// CampaignID is nil for ecosystem-wide quests.
	CampaignID *string `gorm:"type:uuid;index" json:"campaign_id,omitempty"`

	Timestamps
}

// Campaign groups quests behind a single on-chain claim. NoOfQuests is the
// declared size the aggregator compares against; ContractAddress may be empty
// until the claim contract is deployed.
type Campaign struct {
	ID              string `gorm:"primaryKey;type:uuid" json:"id"`
	Name            string `gorm:"not null" json:"name"`
	Slug            string `gorm:"uniqueIndex;not null" json:"slug"`
	NoOfQuests      int64  `gorm:"not null" json:"no_of_quests"`
	ContractAddress string `gorm:"size:128" json:"contract_address,omitempty"`

	Timestamps
}
