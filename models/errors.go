package models

import "errors"

// Core error taxonomy. Services return these (possibly wrapped) and callers
// match with errors.Is; handlers map them to HTTP statuses at the edge.
var (
	// ErrNotFound: unknown user/quest/submission. Nothing was mutated.
	ErrNotFound = errors.New("not found")

	// ErrConflict: submission or completion record is not in an actionable
	// state. Nothing was mutated; the caller must resync before retrying.
	ErrConflict = errors.New("not in an actionable state")

	// ErrAlreadyCompleted: idempotent no-op, not a client error. Duplicate
	// completion attempts must look successful to flaky clients.
	ErrAlreadyCompleted = errors.New("already completed")

	// ErrNotReady: the quest timer has not elapsed yet. Safe to retry later.
	ErrNotReady = errors.New("timer has not elapsed")

	// ErrClaimGatewayUnavailable: the completion was recorded but the external
	// claim trigger was deferred for the reconciliation sweep.
	ErrClaimGatewayUnavailable = errors.New("claim gateway unavailable")
)
