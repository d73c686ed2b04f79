package main

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/trailgreen/carbontrack/config"
	"github.com/trailgreen/carbontrack/models"
	"github.com/trailgreen/carbontrack/routes"
	"github.com/trailgreen/carbontrack/services"
	"github.com/trailgreen/carbontrack/utils"
)

func main() {
	cfg := config.Load()

	if err := utils.InitLogger(cfg); err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	db := config.InitDatabase(
		&models.User{},
		&models.FootprintEntry{},
		&models.Streak{},
	)

	seedAdmin(db, cfg)

	r := routes.SetupRouter(db)

	utils.Sugar.Infow("server starting", "port", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Errorw("server exited", "error", err)
	}
}

// seedAdmin creates the bootstrap administrator when the users table is
// empty and a seed password is explicitly configured. No default password
// ships in code.
func seedAdmin(db *gorm.DB, cfg config.AppConfig) {
	if cfg.SeedAdminPassword == "" {
		return
	}

	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		utils.Sugar.Errorw("admin seed skipped, user count failed", "error", err)
		return
	}
	if count > 0 {
		return
	}

	hash, err := utils.HashPassword(cfg.SeedAdminPassword)
	if err != nil {
		utils.Sugar.Errorw("admin seed skipped, hash failed", "error", err)
		return
	}
	admin := models.User{
		Username:     cfg.SeedAdminUsername,
		Email:        cfg.SeedAdminEmail,
		PasswordHash: hash,
		Provider:     "local",
		IsAdmin:      true,
	}
	if err := db.Create(&admin).Error; err != nil {
		utils.Sugar.Errorw("admin seed failed", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := services.NewStreakService(db).EnsureRecord(ctx, admin.ID); err != nil {
		utils.Sugar.Errorw("admin streak record init failed", "error", err)
	}
	utils.Sugar.Infow("seeded bootstrap admin account", "username", admin.Username)
}
