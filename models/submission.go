package models

// SubmissionStatus is the shared moderation lifecycle for a submission and the
// status projection on its completion record. Transitions: pending→done,
// pending→retry, retry→pending (on re-submission). done is terminal.
type SubmissionStatus string

const (
	StatusPending SubmissionStatus = "pending"
	StatusDone    SubmissionStatus = "done"
	StatusRetry   SubmissionStatus = "retry"
)

// ReviewDecision is a moderator's verdict on a pending submission.
type ReviewDecision string

const (
	DecisionAccept ReviewDecision = "accept"
	DecisionReject ReviewDecision = "reject"
)

// Submission is one user's evidence for one evidence-based quest. At most one
// live submission exists per (user, quest); re-submission after a rejection
// reuses the row and resets it to pending.
type Submission struct {
	ID      string   `gorm:"primaryKey;type:uuid" json:"id"`
	UserID  string   `gorm:"not null;uniqueIndex:idx_submission_user_quest" json:"user_id"` // external user ID
	QuestID string   `gorm:"type:uuid;not null;uniqueIndex:idx_submission_user_quest" json:"quest_id"`
	Kind    TaskKind `gorm:"type:varchar(32);not null" json:"kind"`

	EvidenceLink string           `gorm:"type:text;not null" json:"evidence_link"`
	Status       SubmissionStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`

	// ValidatedBy is the moderator's external user ID, nil until reviewed.
	ValidatedBy *string `json:"validated_by,omitempty"`

	Timestamps
}
