package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"quest-reward-system/models"
	"quest-reward-system/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type nullGateway struct{}

func (nullGateway) AllowClaim(context.Context, string, string) error { return nil }
func (nullGateway) AllowMint(context.Context, int, string) error     { return nil }

func newTestApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000", filepath.Join(t.TempDir(), "test.db"))
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

	rewards := services.NewRewardService(db, nullGateway{})
	aggregator := services.NewAggregatorService(db, nullGateway{})
	recorder := services.NewRecorderService(db, rewards, aggregator)
	moderation := services.NewModerationService(db, recorder)

	app := fiber.New()
	SetupEngagementRoutes(app, recorder, moderation, rewards)
	return app, db
}

func doJSON(t *testing.T, app *fiber.App, method, path, userID, roles string, payload any) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if roles != "" {
		req.Header.Set("X-User-Roles", roles)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	return out
}

func TestCompleteRouteIsIdempotentForClients(t *testing.T) {
	app, db := newTestApp(t)

	require.NoError(t, db.Create(&models.User{ID: uuid.NewString(), ExternalUserID: "alice"}).Error)
	quest := models.Quest{
		ID: uuid.NewString(), Title: "Follow", Slug: "follow",
		Category: models.CategorySocial, Kind: models.TaskEcosystemQuest, XPReward: 100,
	}
	require.NoError(t, db.Create(&quest).Error)

	resp := doJSON(t, app, "POST", "/s/quests/"+quest.ID+"/complete", "alice", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, true, body["applied"])

	// The retry must look like success, not an error.
	resp = doJSON(t, app, "POST", "/s/quests/"+quest.ID+"/complete", "alice", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeBody(t, resp)
	assert.Equal(t, false, body["applied"])
	assert.Equal(t, "already_completed", body["reason"])
}

func TestSecuredRoutesRequireUserContext(t *testing.T) {
	app, _ := newTestApp(t)

	resp := doJSON(t, app, "POST", "/s/quests/"+uuid.NewString()+"/complete", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCompleteRouteMapsTaxonomy(t *testing.T) {
	app, db := newTestApp(t)

	require.NoError(t, db.Create(&models.User{ID: uuid.NewString(), ExternalUserID: "alice"}).Error)

	// Unknown quest → 404.
	resp := doJSON(t, app, "POST", "/s/quests/"+uuid.NewString()+"/complete", "alice", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Timed quest never started → 425.
	timed := models.Quest{
		ID: uuid.NewString(), Title: "Stake", Slug: "stake",
		Category: models.CategoryTimed, Kind: models.TaskEcosystemQuest,
		XPReward: 100, TimerSeconds: 3600,
	}
	require.NoError(t, db.Create(&timed).Error)
	resp = doJSON(t, app, "POST", "/s/quests/"+timed.ID+"/complete", "alice", "", nil)
	assert.Equal(t, http.StatusTooEarly, resp.StatusCode)
}

func TestReviewRouteModeration(t *testing.T) {
	app, db := newTestApp(t)

	require.NoError(t, db.Create(&models.User{ID: uuid.NewString(), ExternalUserID: "alice"}).Error)
	require.NoError(t, db.Create(&models.User{ID: uuid.NewString(), ExternalUserID: "mod"}).Error)
	quest := models.Quest{
		ID: uuid.NewString(), Title: "Thread", Slug: "thread",
		Category: models.CategorySocial, Kind: models.TaskEcosystemQuest,
		XPReward: 500, RequiresReview: true,
	}
	require.NoError(t, db.Create(&quest).Error)

	resp := doJSON(t, app, "POST", "/s/quests/"+quest.ID+"/submit", "alice", "",
		fiber.Map{"evidence_link": "https://x.com/alice/status/1"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	sub := decodeBody(t, resp)
	subID := sub["id"].(string)

	// Moderator role enforced.
	resp = doJSON(t, app, "POST", "/s/admin/submissions/"+subID+"/review", "mod", "",
		fiber.Map{"decision": "accept"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, app, "POST", "/s/admin/submissions/"+subID+"/review", "mod", "moderator",
		fiber.Map{"decision": "accept"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Accepting twice is a conflict at the HTTP edge.
	resp = doJSON(t, app, "POST", "/s/admin/submissions/"+subID+"/review", "mod", "moderator",
		fiber.Map{"decision": "accept"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, app, "GET", "/s/user/progress", "alice", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	progress := decodeBody(t, resp)
	assert.Equal(t, float64(500), progress["xp"])
	assert.Equal(t, float64(0), progress["level"])
}

func TestBadgeConfirmRoute(t *testing.T) {
	app, db := newTestApp(t)

	require.NoError(t, db.Create(&models.User{ID: uuid.NewString(), ExternalUserID: "alice"}).Error)

	resp := doJSON(t, app, "POST", "/badges/confirm", "", "",
		fiber.Map{"user_id": "alice", "level": 1})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var badge models.LevelBadge
	require.NoError(t, db.Where("user_id = ? AND level = ?", "alice", 1).First(&badge).Error)
	assert.True(t, badge.Confirmed)
}
