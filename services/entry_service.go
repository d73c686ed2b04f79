package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/trailgreen/carbontrack/carbon"
	"github.com/trailgreen/carbontrack/models"
	"github.com/trailgreen/carbontrack/utils"
)

// EntryService owns the append-only footprint entry log. Entries are
// immutable once saved: no update or delete path exists, which keeps the
// streak and statistics derivations simple.
type EntryService struct {
	db      *gorm.DB
	streaks *StreakService
}

// NewEntryService creates an EntryService.
func NewEntryService(db *gorm.DB, streaks *StreakService) *EntryService {
	return &EntryService{db: db, streaks: streaks}
}

// Save validates the activity, computes the emissions total at write time,
// persists the entry, then advances the user's streak. The entry write is
// durable before the streak update runs; when the streak update fails the
// entry is kept and the inconsistency is logged, not auto-repaired.
func (s *EntryService) Save(ctx context.Context, userID uint, date time.Time, activity carbon.Activity) (*models.FootprintEntry, error) {
	if err := activity.Validate(); err != nil {
		return nil, err
	}

	entry := &models.FootprintEntry{
		UserID:             userID,
		EntryDate:          dateOnly(date),
		ElectricityKWh:     activity.ElectricityKWh,
		NaturalGasTherms:   activity.NaturalGasTherms,
		WaterGallons:       activity.WaterGallons,
		CarMiles:           activity.CarMiles,
		PublicTransitMiles: activity.PublicTransitMiles,
		FlightsShortHaul:   activity.FlightsShortHaul,
		FlightsLongHaul:    activity.FlightsLongHaul,
		MeatServings:       activity.MeatServings,
		DairyServings:      activity.DairyServings,
		VegServings:        activity.VegServings,
		TotalCarbon:        carbon.Total(activity),
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("save entry: %w", err)
	}

	if _, err := s.streaks.RecordEntry(ctx, userID, date); err != nil {
		if utils.Sugar != nil {
			utils.Sugar.Errorw("streak update failed after entry save",
				"user_id", userID, "entry_id", entry.ID, "error", err)
		}
	}

	return entry, nil
}

// ListForUser returns every entry for one user, newest date first. Per-user
// volume stays small enough that pagination is not needed.
func (s *EntryService) ListForUser(ctx context.Context, userID uint) ([]models.FootprintEntry, error) {
	var entries []models.FootprintEntry
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("entry_date DESC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return entries, nil
}

// EntryWithUser is the admin view of an entry joined with its owner.
type EntryWithUser struct {
	models.FootprintEntry
	Username string `json:"username"`
}

// ListAll returns all entries across users joined with usernames, newest
// date first. Admin dashboards consume this.
func (s *EntryService) ListAll(ctx context.Context) ([]EntryWithUser, error) {
	var rows []EntryWithUser
	if err := s.db.WithContext(ctx).
		Model(&models.FootprintEntry{}).
		Select("footprint_entries.*, users.username").
		Joins("JOIN users ON users.id = footprint_entries.user_id").
		Order("footprint_entries.entry_date DESC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("list all entries: %w", err)
	}
	return rows, nil
}
