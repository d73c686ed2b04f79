package routes

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/trailgreen/carbontrack/config"
	"github.com/trailgreen/carbontrack/controllers"
	"github.com/trailgreen/carbontrack/middleware"
	"github.com/trailgreen/carbontrack/services"
	"github.com/trailgreen/carbontrack/utils"
)

// SetupRouter wires middlewares, controllers and routes.
func SetupRouter(db *gorm.DB) *gin.Engine {
	cfg := config.Get()
	gin.SetMode(cfg.GinMode)

	r := gin.New()

	accessLogger, err := utils.NewRollingFileLogger(cfg.GinPath, cfg)
	if err != nil {
		utils.Sugar.Warnw("access log file unavailable, falling back to app logger", "error", err)
		accessLogger = utils.Logger
	}
	r.Use(utils.GinLogger(accessLogger))
	r.Use(utils.GinRecovery(utils.Logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	streakService := services.NewStreakService(db)
	entryService := services.NewEntryService(db, streakService)
	statsService := services.NewStatsService(db, entryService)

	authController := controllers.NewAuthController(db, streakService)
	footprintController := controllers.NewFootprintController(entryService, streakService, statsService)
	adminController := controllers.NewAdminController(db, entryService, statsService)

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)

	api := r.Group("/api/v1")

	auth := api.Group("/auth")
	auth.Use(limiter.Middleware())
	{
		auth.POST("/register", authController.Register)
		auth.POST("/login", authController.Login)
		auth.GET("/oauth/:provider", authController.OAuthRedirect)
		auth.GET("/oauth/:provider/callback", authController.OAuthCallback)
	}

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(), limiter.Middleware())
	{
		protected.POST("/auth/logout", authController.Logout)
		protected.GET("/me", authController.Me)
		protected.PUT("/me", authController.UpdateProfile)
		protected.PUT("/me/password", authController.ChangePassword)

		protected.POST("/footprint/preview", footprintController.Preview)
		protected.POST("/footprint/entries", footprintController.CreateEntry)
		protected.GET("/footprint/entries", footprintController.History)
		protected.GET("/footprint/streak", footprintController.StreakStatus)
		protected.GET("/footprint/dashboard", footprintController.Dashboard)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.AuthRequired(), middleware.AdminRequired(db))
	{
		admin.GET("/users", adminController.ListUsers)
		admin.GET("/entries", adminController.ListEntries)
		admin.GET("/overview", adminController.Overview)
	}

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40404, "route not found")
	})

	return r
}
