package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/trailgreen/carbontrack/carbon"
	"github.com/trailgreen/carbontrack/middleware"
	"github.com/trailgreen/carbontrack/services"
	"github.com/trailgreen/carbontrack/utils"
)

// FootprintController serves entry logging, history, streaks and the
// personal dashboard.
type FootprintController struct {
	entries *services.EntryService
	streaks *services.StreakService
	stats   *services.StatsService
}

// NewFootprintController creates a FootprintController.
func NewFootprintController(entries *services.EntryService, streaks *services.StreakService, stats *services.StatsService) *FootprintController {
	return &FootprintController{entries: entries, streaks: streaks, stats: stats}
}

type entryRequest struct {
	Date     string          `json:"date"` // YYYY-MM-DD, defaults to today
	Activity carbon.Activity `json:"activity"`
}

func parseEntryDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse("2006-01-02", raw)
}

// Preview computes the total and per-category breakdown without saving
// anything. Lets the UI show numbers while the user is still editing.
func (f *FootprintController) Preview(ctx *gin.Context) {
	var req entryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40000, "invalid request payload")
		return
	}
	if err := req.Activity.Validate(); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40010, err.Error())
		return
	}
	utils.Success(ctx, gin.H{
		"total_carbon": carbon.Total(req.Activity),
		"breakdown":    carbon.Breakdown(req.Activity),
	})
}

// CreateEntry validates and appends a footprint entry, then returns it with
// the refreshed streak record.
func (f *FootprintController) CreateEntry(ctx *gin.Context) {
	var req entryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40000, "invalid request payload")
		return
	}
	date, err := parseEntryDate(req.Date)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40011, "date must be formatted YYYY-MM-DD")
		return
	}

	userID := ctx.GetUint(middleware.ContextUserIDKey)
	entry, err := f.entries.Save(ctx.Request.Context(), userID, date, req.Activity)
	if err != nil {
		if errors.Is(err, carbon.ErrNegativeInput) {
			utils.Error(ctx, http.StatusBadRequest, 40010, err.Error())
			return
		}
		utils.Sugar.Errorw("entry save failed", "user_id", userID, "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50010, "could not save entry")
		return
	}

	streak, err := f.streaks.Get(ctx.Request.Context(), userID)
	if err != nil {
		utils.Sugar.Errorw("streak load failed", "user_id", userID, "error", err)
		streak = nil
	}
	utils.Success(ctx, gin.H{"entry": entry, "streak": streak})
}

// History lists the user's entries, newest first.
func (f *FootprintController) History(ctx *gin.Context) {
	userID := ctx.GetUint(middleware.ContextUserIDKey)
	entries, err := f.entries.ListForUser(ctx.Request.Context(), userID)
	if err != nil {
		utils.Sugar.Errorw("history load failed", "user_id", userID, "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50011, "could not load history")
		return
	}
	utils.Success(ctx, gin.H{"entries": entries, "count": len(entries)})
}

// StreakStatus returns the user's streak record. Users without entries get
// a zeroed record.
func (f *FootprintController) StreakStatus(ctx *gin.Context) {
	userID := ctx.GetUint(middleware.ContextUserIDKey)
	streak, err := f.streaks.Get(ctx.Request.Context(), userID)
	if err != nil {
		utils.Sugar.Errorw("streak load failed", "user_id", userID, "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50012, "could not load streak")
		return
	}
	utils.Success(ctx, streak)
}

// Dashboard combines statistics, the streak record and the most recent
// entries into one payload.
func (f *FootprintController) Dashboard(ctx *gin.Context) {
	userID := ctx.GetUint(middleware.ContextUserIDKey)

	stats, err := f.stats.Stats(ctx.Request.Context(), userID, time.Now())
	if err != nil {
		utils.Sugar.Errorw("stats computation failed", "user_id", userID, "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50013, "could not compute statistics")
		return
	}
	streak, err := f.streaks.Get(ctx.Request.Context(), userID)
	if err != nil {
		utils.Sugar.Errorw("streak load failed", "user_id", userID, "error", err)
		streak = nil
	}
	entries, err := f.entries.ListForUser(ctx.Request.Context(), userID)
	if err != nil {
		utils.Sugar.Errorw("history load failed", "user_id", userID, "error", err)
		entries = nil
	}
	if len(entries) > 10 {
		entries = entries[:10]
	}

	utils.Success(ctx, gin.H{
		"stats":          stats,
		"streak":         streak,
		"recent_entries": entries,
	})
}
