package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/trailgreen/carbontrack/config"
	"github.com/trailgreen/carbontrack/middleware"
	"github.com/trailgreen/carbontrack/models"
	"github.com/trailgreen/carbontrack/services"
	"github.com/trailgreen/carbontrack/utils"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret-key")
	config.Load()
	require.NoError(t, utils.InitLogger(config.AppConfig{LogLevel: "error"}))

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.FootprintEntry{}, &models.Streak{}))

	gin.SetMode(gin.TestMode)
	r := gin.New()

	streakService := services.NewStreakService(db)
	entryService := services.NewEntryService(db, streakService)
	statsService := services.NewStatsService(db, entryService)

	authController := NewAuthController(db, streakService)
	footprintController := NewFootprintController(entryService, streakService, statsService)
	adminController := NewAdminController(db, entryService, statsService)

	api := r.Group("/api/v1")
	api.POST("/auth/register", authController.Register)
	api.POST("/auth/login", authController.Login)

	protected := api.Group("", middleware.AuthRequired())
	protected.POST("/footprint/preview", footprintController.Preview)
	protected.POST("/footprint/entries", footprintController.CreateEntry)
	protected.GET("/footprint/entries", footprintController.History)
	protected.GET("/footprint/streak", footprintController.StreakStatus)
	protected.GET("/footprint/dashboard", footprintController.Dashboard)

	admin := api.Group("/admin", middleware.AuthRequired(), middleware.AdminRequired(db))
	admin.GET("/overview", adminController.Overview)

	return r, db
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func registerAndLogin(t *testing.T, r *gin.Engine, username string) string {
	t.Helper()
	w, env := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": username,
		"email":    username + "@example.com",
		"password": "correct-horse-battery",
	})
	require.Equal(t, http.StatusOK, w.Code, env.Message)

	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	r, _ := newTestRouter(t)
	registerAndLogin(t, r, "alice")

	w, env := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "alice",
		"email":    "other@example.com",
		"password": "another-password",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 40901, env.Code)
}

func TestRegisterUniqueIndexViolationIsConflict(t *testing.T) {
	r, db := newTestRouter(t)
	registerAndLogin(t, r, "alice")

	// A soft-deleted owner is invisible to the pre-check but still holds
	// the unique index, same as a concurrent duplicate registration.
	require.NoError(t, db.Where("username = ?", "alice").Delete(&models.User{}).Error)

	w, env := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"username": "alice",
		"email":    "alice-again@example.com",
		"password": "another-password",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 40901, env.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	r, _ := newTestRouter(t)
	registerAndLogin(t, r, "alice")

	w, _ := doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": "alice",
		"password": "not-the-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"username": "alice",
		"password": "correct-horse-battery",
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPreviewRequiresAuth(t *testing.T) {
	r, _ := newTestRouter(t)
	w, _ := doJSON(t, r, http.MethodPost, "/api/v1/footprint/preview", "", gin.H{})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPreviewComputesWithoutSaving(t *testing.T) {
	r, db := newTestRouter(t)
	token := registerAndLogin(t, r, "alice")

	w, env := doJSON(t, r, http.MethodPost, "/api/v1/footprint/preview", token, gin.H{
		"activity": gin.H{"electricity_kwh": 100},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var data struct {
		TotalCarbon float64            `json:"total_carbon"`
		Breakdown   map[string]float64 `json:"breakdown"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.InDelta(t, 40.0, data.TotalCarbon, 1e-9)
	assert.InDelta(t, 40.0, data.Breakdown["electricity"], 1e-9)

	var count int64
	db.Model(&models.FootprintEntry{}).Count(&count)
	assert.Zero(t, count, "preview must not persist entries")
}

func TestCreateEntryAdvancesStreak(t *testing.T) {
	r, _ := newTestRouter(t)
	token := registerAndLogin(t, r, "alice")

	w, env := doJSON(t, r, http.MethodPost, "/api/v1/footprint/entries", token, gin.H{
		"date":     "2025-03-10",
		"activity": gin.H{"car_miles": 250},
	})
	require.Equal(t, http.StatusOK, w.Code, env.Message)

	var data struct {
		Entry  models.FootprintEntry `json:"entry"`
		Streak models.Streak         `json:"streak"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.InDelta(t, 88.87, data.Entry.TotalCarbon, 1e-9)
	assert.Equal(t, 1, data.Streak.CurrentStreak)

	// Second entry the next day extends the streak.
	_, env = doJSON(t, r, http.MethodPost, "/api/v1/footprint/entries", token, gin.H{
		"date":     "2025-03-11",
		"activity": gin.H{"meat_servings": 2},
	})
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 2, data.Streak.CurrentStreak)
	assert.Equal(t, 2, data.Streak.TotalEntries)
}

func TestCreateEntryRejectsNegativeInput(t *testing.T) {
	r, db := newTestRouter(t)
	token := registerAndLogin(t, r, "alice")

	w, env := doJSON(t, r, http.MethodPost, "/api/v1/footprint/entries", token, gin.H{
		"activity": gin.H{"water_gallons": -5},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40010, env.Code)

	var count int64
	db.Model(&models.FootprintEntry{}).Count(&count)
	assert.Zero(t, count)
}

func TestStreakStatusZeroForNewUser(t *testing.T) {
	r, _ := newTestRouter(t)
	token := registerAndLogin(t, r, "alice")

	w, env := doJSON(t, r, http.MethodGet, "/api/v1/footprint/streak", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var streak models.Streak
	require.NoError(t, json.Unmarshal(env.Data, &streak))
	assert.Zero(t, streak.CurrentStreak)
	assert.Zero(t, streak.TotalEntries)
}

func TestDashboardAggregates(t *testing.T) {
	r, _ := newTestRouter(t)
	token := registerAndLogin(t, r, "alice")

	for _, day := range []string{"2025-03-10", "2025-03-11", "2025-03-12"} {
		w, _ := doJSON(t, r, http.MethodPost, "/api/v1/footprint/entries", token, gin.H{
			"date":     day,
			"activity": gin.H{"electricity_kwh": 10},
		})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w, env := doJSON(t, r, http.MethodGet, "/api/v1/footprint/dashboard", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var data struct {
		Stats struct {
			Basic services.BasicStats `json:"basic"`
		} `json:"stats"`
		Streak        models.Streak           `json:"streak"`
		RecentEntries []models.FootprintEntry `json:"recent_entries"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, 3, data.Stats.Basic.TotalEntries)
	assert.InDelta(t, 12.0, data.Stats.Basic.TotalCarbon, 1e-9)
	assert.Equal(t, 3, data.Streak.CurrentStreak)
	assert.Len(t, data.RecentEntries, 3)
}

func TestAdminRoutesForbiddenForRegularUser(t *testing.T) {
	r, _ := newTestRouter(t)
	token := registerAndLogin(t, r, "alice")

	w, env := doJSON(t, r, http.MethodGet, "/api/v1/admin/overview", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 40300, env.Code)
}

func TestAdminOverviewForAdmin(t *testing.T) {
	r, db := newTestRouter(t)
	token := registerAndLogin(t, r, "alice")
	require.NoError(t, db.Model(&models.User{}).Where("username = ?", "alice").
		Update("is_admin", true).Error)

	w, env := doJSON(t, r, http.MethodGet, "/api/v1/admin/overview", token, nil)
	require.Equal(t, http.StatusOK, w.Code, env.Message)

	var overview services.SystemOverview
	require.NoError(t, json.Unmarshal(env.Data, &overview))
	assert.Equal(t, int64(1), overview.UserCount)
}
