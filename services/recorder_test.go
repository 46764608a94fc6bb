package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"quest-reward-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCompletionAppliesReward(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	seedUser(t, stack.db, "alice")
	quest := seedQuest(t, stack.db, models.Quest{Title: "Follow us", XPReward: 1200, TrustReward: 5})

	result, err := stack.recorder.RecordCompletion(ctx, "alice", quest.ID)
	require.NoError(t, err)
	assert.True(t, result.Applied)

	var user models.User
	require.NoError(t, stack.db.Where("external_user_id = ?", "alice").First(&user).Error)
	assert.Equal(t, int64(1200), user.XP)
	assert.Equal(t, int64(5), user.TrustEarned)
	assert.Equal(t, int64(1), user.QuestsCompleted)
	assert.Equal(t, int64(0), user.TasksCompleted)

	// 1200 XP lands in the 1000–3000 tier: exactly one mint for level 1.
	assert.Equal(t, 1, stack.gateway.mintCount())
	assert.Equal(t, []string{"alice|1"}, stack.gateway.mintCalls)
}

func TestRecordCompletionIsIdempotent(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	seedUser(t, stack.db, "alice")
	quest := seedQuest(t, stack.db, models.Quest{Title: "Join discord", XPReward: 300})

	first, err := stack.recorder.RecordCompletion(ctx, "alice", quest.ID)
	require.NoError(t, err)
	assert.True(t, first.Applied)

	second, err := stack.recorder.RecordCompletion(ctx, "alice", quest.ID)
	require.NoError(t, err) // a duplicate must look like success, not an error
	assert.False(t, second.Applied)
	assert.Equal(t, ReasonAlreadyCompleted, second.Reason)

	var user models.User
	require.NoError(t, stack.db.Where("external_user_id = ?", "alice").First(&user).Error)
	assert.Equal(t, int64(300), user.XP)

	var records int64
	stack.db.Model(&models.CompletionRecord{}).
		Where("user_id = ? AND quest_id = ?", "alice", quest.ID).
		Count(&records)
	assert.Equal(t, int64(1), records)
}

func TestRecordCompletionUnknownInputs(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	seedUser(t, stack.db, "alice")
	quest := seedQuest(t, stack.db, models.Quest{Title: "Retweet", XPReward: 100})

	_, err := stack.recorder.RecordCompletion(ctx, "alice", "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = stack.recorder.RecordCompletion(ctx, "nobody", quest.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// No mutation on failed preconditions.
	var user models.User
	require.NoError(t, stack.db.Where("external_user_id = ?", "alice").First(&user).Error)
	assert.Equal(t, int64(0), user.XP)
}

func TestRecordCompletionRejectsEvidenceQuests(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	seedUser(t, stack.db, "alice")
	quest := seedQuest(t, stack.db, models.Quest{Title: "Write a thread", XPReward: 500, RequiresReview: true})

	_, err := stack.recorder.RecordCompletion(ctx, "alice", quest.ID)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestConcurrentCompletionAccruesOnce(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	seedUser(t, stack.db, "alice")
	quest := seedQuest(t, stack.db, models.Quest{Title: "Bridge funds", XPReward: 700})

	const attempts = 8
	var wg sync.WaitGroup
	results := make([]CompletionResult, attempts)
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = stack.recorder.RecordCompletion(ctx, "alice", quest.ID)
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := 0; i < attempts; i++ {
		require.NoError(t, errs[i])
		if results[i].Applied {
			applied++
		} else {
			assert.Equal(t, ReasonAlreadyCompleted, results[i].Reason)
		}
	}
	assert.Equal(t, 1, applied, "exactly one request may win the completion")

	var user models.User
	require.NoError(t, stack.db.Where("external_user_id = ?", "alice").First(&user).Error)
	assert.Equal(t, int64(700), user.XP, "reward must accrue exactly once")

	var records int64
	stack.db.Model(&models.CompletionRecord{}).
		Where("user_id = ? AND quest_id = ?", "alice", quest.ID).
		Count(&records)
	assert.Equal(t, int64(1), records)
}

func TestConcurrentDistinctQuestsAccrueAll(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	seedUser(t, stack.db, "alice")

	const quests = 6
	ids := make([]string, 0, quests)
	for i := 0; i < quests; i++ {
		q := seedQuest(t, stack.db, models.Quest{Title: "Parallel quest", XPReward: 100})
		ids = append(ids, q.ID)
	}

	// Different quests insert different completion rows, so markDone does not
	// serialize these transactions — every accrual must still land.
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(questID string) {
			defer wg.Done()
			result, err := stack.recorder.RecordCompletion(ctx, "alice", questID)
			assert.NoError(t, err)
			assert.True(t, result.Applied)
		}(id)
	}
	wg.Wait()

	var user models.User
	require.NoError(t, stack.db.Where("external_user_id = ?", "alice").First(&user).Error)
	assert.Equal(t, int64(quests*100), user.XP, "no accrual may be lost to a concurrent completion")
	assert.Equal(t, int64(quests), user.QuestsCompleted)
}

func TestTimedQuestLifecycle(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	seedUser(t, stack.db, "alice")
	quest := seedQuest(t, stack.db, models.Quest{
		Title:        "Stake for an hour",
		XPReward:     800,
		Category:     models.CategoryTimed,
		TimerSeconds: 3600,
	})

	// Completing before starting is a time-gate failure.
	_, err := stack.recorder.RecordCompletion(ctx, "alice", quest.ID)
	assert.ErrorIs(t, err, models.ErrNotReady)

	rec, err := stack.recorder.StartTimedQuest(ctx, "alice", quest.ID)
	require.NoError(t, err)
	require.NotNil(t, rec.TimerAt)
	assert.False(t, rec.Done)

	// Starting again does not reset the timer.
	again, err := stack.recorder.StartTimedQuest(ctx, "alice", quest.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)

	_, err = stack.recorder.RecordCompletion(ctx, "alice", quest.ID)
	assert.ErrorIs(t, err, models.ErrNotReady)

	// Let the timer elapse.
	elapsed := time.Now().Add(-time.Second)
	require.NoError(t, stack.db.Model(&models.CompletionRecord{}).
		Where("id = ?", rec.ID).
		Update("timer_at", elapsed).Error)

	result, err := stack.recorder.RecordCompletion(ctx, "alice", quest.ID)
	require.NoError(t, err)
	assert.True(t, result.Applied)

	// And completion stays at-most-once afterwards.
	result, err = stack.recorder.RecordCompletion(ctx, "alice", quest.ID)
	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Equal(t, ReasonAlreadyCompleted, result.Reason)
}

func TestStartTimedQuestRequiresTimedCategory(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	seedUser(t, stack.db, "alice")
	quest := seedQuest(t, stack.db, models.Quest{Title: "Like a post", XPReward: 50})

	_, err := stack.recorder.StartTimedQuest(ctx, "alice", quest.ID)
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestRecurringQuestResetsAfterExpiry(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	seedUser(t, stack.db, "alice")
	quest := seedQuest(t, stack.db, models.Quest{Title: "Daily check-in", XPReward: 100, Category: models.CategoryDaily})

	result, err := stack.recorder.RecordCompletion(ctx, "alice", quest.ID)
	require.NoError(t, err)
	assert.True(t, result.Applied)

	var rec models.CompletionRecord
	require.NoError(t, stack.db.Where("user_id = ? AND quest_id = ?", "alice", quest.ID).First(&rec).Error)
	require.NotNil(t, rec.ExpiresAt, "recurring completions must carry an expiry")

	// Not expired yet: still a no-op.
	result, err = stack.recorder.RecordCompletion(ctx, "alice", quest.ID)
	require.NoError(t, err)
	assert.False(t, result.Applied)

	// Backdate the expiry and run the sweep.
	expired := time.Now().Add(-time.Minute)
	require.NoError(t, stack.db.Model(&models.CompletionRecord{}).
		Where("id = ?", rec.ID).
		Update("expires_at", expired).Error)

	removed, err := stack.recorder.ExpireRecurring(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	// The one sanctioned re-completion path.
	result, err = stack.recorder.RecordCompletion(ctx, "alice", quest.ID)
	require.NoError(t, err)
	assert.True(t, result.Applied)

	var user models.User
	require.NoError(t, stack.db.Where("external_user_id = ?", "alice").First(&user).Error)
	assert.Equal(t, int64(200), user.XP)
	assert.Equal(t, int64(2), user.QuestsCompleted)
}
