package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/trailgreen/carbontrack/models"
)

// StreakService maintains the per-user consecutive-day record. The record
// itself is the state machine: no discrete state enum is needed.
type StreakService struct {
	db *gorm.DB
}

// NewStreakService creates a StreakService.
func NewStreakService(db *gorm.DB) *StreakService {
	return &StreakService{db: db}
}

// EnsureRecord creates an empty streak row for a new user when missing.
// Called at registration; RecordEntry also creates one lazily.
func (s *StreakService) EnsureRecord(ctx context.Context, userID uint) error {
	return s.db.WithContext(ctx).
		Where(models.Streak{UserID: userID}).
		FirstOrCreate(&models.Streak{UserID: userID}).Error
}

// RecordEntry advances the streak record for one accepted entry date.
// Rules on the whole-day delta to the last recorded date: 0 is a no-op,
// 1 extends the streak, anything else (including backdated entries) resets
// the current streak to 1. Concurrent saves for the same user tolerate
// last-write-wins; the same-day no-op path absorbs duplicates.
func (s *StreakService) RecordEntry(ctx context.Context, userID uint, date time.Time) (*models.Streak, error) {
	day := dateOnly(date)
	var out models.Streak

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var streak models.Streak
		err := tx.Where("user_id = ?", userID).First(&streak).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			streak = models.Streak{
				UserID:        userID,
				CurrentStreak: 1,
				LongestStreak: 1,
				LastEntryDate: &day,
				TotalEntries:  1,
			}
			if err := tx.Create(&streak).Error; err != nil {
				return err
			}
			out = streak
			return nil
		}
		if err != nil {
			return err
		}

		if streak.LastEntryDate != nil {
			switch daysBetween(dateOnly(*streak.LastEntryDate), day) {
			case 0:
				// Same-day duplicate: streak and total_entries unchanged.
				out = streak
				return nil
			case 1:
				streak.CurrentStreak++
			default:
				streak.CurrentStreak = 1
			}
		} else {
			streak.CurrentStreak = 1
		}

		if streak.CurrentStreak > streak.LongestStreak {
			streak.LongestStreak = streak.CurrentStreak
		}
		streak.TotalEntries++
		streak.LastEntryDate = &day
		streak.UpdatedAt = time.Now()

		if err := tx.Save(&streak).Error; err != nil {
			return err
		}
		out = streak
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Get returns the user's streak record, or a zero record when the user has
// never saved an entry. A missing record is not an error.
func (s *StreakService) Get(ctx context.Context, userID uint) (*models.Streak, error) {
	var streak models.Streak
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&streak).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.Streak{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &streak, nil
}

// dateOnly strips the clock so entries compare as calendar dates. The
// instant is normalized to UTC first: drivers configured with a local
// timezone hand timestamps back re-rendered in that zone, and extracting
// year/month/day from the local rendering would shift the date.
func dateOnly(t time.Time) time.Time {
	t = t.In(time.UTC)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}
