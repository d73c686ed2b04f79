package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/trailgreen/carbontrack/models"
	"github.com/trailgreen/carbontrack/services"
	"github.com/trailgreen/carbontrack/utils"
)

// AdminController serves the admin-only system views.
type AdminController struct {
	db      *gorm.DB
	entries *services.EntryService
	stats   *services.StatsService
}

// NewAdminController creates an AdminController.
func NewAdminController(db *gorm.DB, entries *services.EntryService, stats *services.StatsService) *AdminController {
	return &AdminController{db: db, entries: entries, stats: stats}
}

// ListUsers returns a paginated user listing.
func (a *AdminController) ListUsers(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(ctx.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var total int64
	if err := a.db.Model(&models.User{}).Count(&total).Error; err != nil {
		utils.Sugar.Errorw("user count failed", "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50020, "could not list users")
		return
	}

	var users []models.User
	if err := a.db.Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&users).Error; err != nil {
		utils.Sugar.Errorw("user listing failed", "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50020, "could not list users")
		return
	}

	views := make([]userView, 0, len(users))
	for i := range users {
		views = append(views, toUserView(&users[i]))
	}
	utils.Success(ctx, gin.H{
		"users":     views,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ListEntries returns every entry across users joined with usernames.
func (a *AdminController) ListEntries(ctx *gin.Context) {
	rows, err := a.entries.ListAll(ctx.Request.Context())
	if err != nil {
		utils.Sugar.Errorw("admin entry listing failed", "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50021, "could not list entries")
		return
	}
	utils.Success(ctx, gin.H{"entries": rows, "count": len(rows)})
}

// Overview returns system-wide aggregate numbers.
func (a *AdminController) Overview(ctx *gin.Context) {
	utils.Success(ctx, a.stats.Overview(ctx.Request.Context()))
}
