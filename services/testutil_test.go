package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"quest-reward-system/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB opens a throwaway SQLite database with the full schema. WAL plus
// a generous busy timeout lets the concurrency tests hammer it from multiple
// goroutines the way concurrent requests would.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.LevelBadge{},
		&models.Campaign{},
		&models.Quest{},
		&models.Submission{},
		&models.CompletionRecord{},
		&models.CampaignCompleted{},
	))
	return db
}

// fakeGateway records executor calls in memory.
type fakeGateway struct {
	mu         sync.Mutex
	claimCalls []string
	mintCalls  []string
	claimErr   error
	mintErr    error
}

func (f *fakeGateway) AllowClaim(_ context.Context, userID, contractAddress string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return f.claimErr
	}
	f.claimCalls = append(f.claimCalls, userID+"|"+contractAddress)
	return nil
}

func (f *fakeGateway) AllowMint(_ context.Context, level int, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mintErr != nil {
		return f.mintErr
	}
	f.mintCalls = append(f.mintCalls, fmt.Sprintf("%s|%d", userID, level))
	return nil
}

func (f *fakeGateway) claimCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.claimCalls)
}

func (f *fakeGateway) mintCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.mintCalls)
}

type testStack struct {
	db         *gorm.DB
	gateway    *fakeGateway
	rewards    *RewardService
	aggregator *AggregatorService
	recorder   *RecorderService
	moderation *ModerationService
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	db := openTestDB(t)
	gateway := &fakeGateway{}
	rewards := NewRewardService(db, gateway)
	aggregator := NewAggregatorService(db, gateway)
	recorder := NewRecorderService(db, rewards, aggregator)
	moderation := NewModerationService(db, recorder)
	return &testStack{
		db:         db,
		gateway:    gateway,
		rewards:    rewards,
		aggregator: aggregator,
		recorder:   recorder,
		moderation: moderation,
	}
}

func seedUser(t *testing.T, db *gorm.DB, externalID string) *models.User {
	t.Helper()
	user := &models.User{
		ID:             uuid.NewString(),
		ExternalUserID: externalID,
		Username:       externalID,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedQuest(t *testing.T, db *gorm.DB, quest models.Quest) *models.Quest {
	t.Helper()
	if quest.ID == "" {
		quest.ID = uuid.NewString()
	}
	if quest.Slug == "" {
		quest.Slug = quest.ID
	}
	if quest.Kind == "" {
		if quest.CampaignID != nil {
			quest.Kind = models.TaskCampaignQuest
		} else {
			quest.Kind = models.TaskEcosystemQuest
		}
	}
	if quest.Category == "" {
		quest.Category = models.CategorySocial
	}
	require.NoError(t, db.Create(&quest).Error)
	return &quest
}

func seedCampaign(t *testing.T, db *gorm.DB, noOfQuests int64, contractAddress string) *models.Campaign {
	t.Helper()
	campaign := &models.Campaign{
		ID:              uuid.NewString(),
		Name:            "campaign-" + uuid.NewString()[:8],
		Slug:            uuid.NewString(),
		NoOfQuests:      noOfQuests,
		ContractAddress: contractAddress,
	}
	require.NoError(t, db.Create(campaign).Error)
	return campaign
}
