package workers

import (
	"context"
	"log"
	"time"

	"quest-reward-system/models"
	"quest-reward-system/services"

	"gorm.io/gorm"
)

// ClaimReconciler retries the external chain-executor calls that were
// deferred or failed at completion time: campaign claim grants and level
// badge mints. It only re-runs the gateway half — completion and reward
// accrual are already committed, so sweeping can never double-pay.
type ClaimReconciler struct {
	DB         *gorm.DB
	Aggregator *services.AggregatorService
	Rewards    *services.RewardService
}

func NewClaimReconciler(db *gorm.DB, aggregator *services.AggregatorService, rewards *services.RewardService) *ClaimReconciler {
	return &ClaimReconciler{DB: db, Aggregator: aggregator, Rewards: rewards}
}

// Run polls until the context is cancelled.
func (r *ClaimReconciler) Run(ctx context.Context, interval time.Duration) {
	log.Println("Starting claim reconciliation sweep...")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Claim reconciliation stopped.")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep performs one reconciliation pass.
func (r *ClaimReconciler) Sweep(ctx context.Context) {
	r.sweepClaims(ctx)
	r.sweepMints(ctx)
}

func (r *ClaimReconciler) sweepClaims(ctx context.Context) {
	pending, err := r.Aggregator.PendingClaims(ctx, 100)
	if err != nil {
		log.Printf("❌ [RECONCILER] failed to list pending claims: %v", err)
		return
	}
	if len(pending) == 0 {
		return
	}
	log.Printf("📥 [RECONCILER] retrying %d pending campaign claim(s)", len(pending))

	for i := range pending {
		row := &pending[i]
		if err := r.Aggregator.RetryClaim(ctx, row); err != nil {
			// Deferred rows with no deployed contract stay deferred; real
			// gateway failures were flagged on the row already.
			log.Printf("⏳ [RECONCILER] claim still pending for user=%s campaign=%s: %v",
				row.UserID, row.CampaignID, err)
			continue
		}
		log.Printf("✅ [RECONCILER] claim granted for user=%s campaign=%s", row.UserID, row.CampaignID)
	}
}

// sweepMints re-fires allowMint for badge rows that were requested but never
// confirmed. The executor treats mint grants as idempotent, so re-firing a
// grant whose confirmation is merely slow is harmless.
func (r *ClaimReconciler) sweepMints(ctx context.Context) {
	cutoff := time.Now().Add(-10 * time.Minute)

	var stale []models.LevelBadge
	if err := r.DB.WithContext(ctx).
		Where("confirmed = ? AND requested_at < ?", false, cutoff).
		Order("requested_at ASC").
		Limit(100).
		Find(&stale).Error; err != nil {
		log.Printf("❌ [RECONCILER] failed to list unconfirmed badges: %v", err)
		return
	}
	if len(stale) == 0 {
		return
	}
	log.Printf("📥 [RECONCILER] re-firing %d unconfirmed mint grant(s)", len(stale))

	for _, badge := range stale {
		r.Rewards.RequestMint(ctx, badge.UserID, badge.Level)
	}
}
