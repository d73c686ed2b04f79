package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/trailgreen/carbontrack/carbon"
	"github.com/trailgreen/carbontrack/models"
)

// Trend describes the direction of a user's recent emissions compared with
// the previous period.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendWorsening Trend = "worsening"
	TrendStable    Trend = "stable"
)

// BasicStats summarizes the stored totals of an entry set.
type BasicStats struct {
	TotalEntries int     `json:"total_entries"`
	TotalCarbon  float64 `json:"total_carbon"`
	AvgCarbon    float64 `json:"avg_carbon"`
	MinCarbon    float64 `json:"min_carbon"`
	MaxCarbon    float64 `json:"max_carbon"`
}

// PeriodComparison contrasts the last 30 days against the 30 before them.
// An empty window averages to 0, so a user whose first entries all fall in
// the recent window reads as "worsening"; documented current behavior.
type PeriodComparison struct {
	RecentAvg   float64 `json:"recent_avg"`
	PreviousAvg float64 `json:"previous_avg"`
	Trend       Trend   `json:"trend"`
}

// DashboardStats is the aggregate view served to the dashboard. Every field
// is a fresh fold over the entry log; entries are immutable and append-only,
// so no caching layer is needed.
type DashboardStats struct {
	Basic             BasicStats                  `json:"basic"`
	Period            PeriodComparison            `json:"period"`
	CategoryBreakdown map[carbon.Category]float64 `json:"category_breakdown"`
}

// ComputeBasicStats folds count/sum/mean/min/max over stored totals.
func ComputeBasicStats(entries []models.FootprintEntry) BasicStats {
	stats := BasicStats{TotalEntries: len(entries)}
	if len(entries) == 0 {
		return stats
	}

	stats.MinCarbon = entries[0].TotalCarbon
	stats.MaxCarbon = entries[0].TotalCarbon
	for _, e := range entries {
		stats.TotalCarbon += e.TotalCarbon
		if e.TotalCarbon < stats.MinCarbon {
			stats.MinCarbon = e.TotalCarbon
		}
		if e.TotalCarbon > stats.MaxCarbon {
			stats.MaxCarbon = e.TotalCarbon
		}
	}
	stats.AvgCarbon = stats.TotalCarbon / float64(len(entries))
	return stats
}

// ComparePeriods averages totals over [asOf-29d, asOf] and
// [asOf-59d, asOf-30d] and derives the trend direction.
func ComparePeriods(entries []models.FootprintEntry, asOf time.Time) PeriodComparison {
	day := dateOnly(asOf)
	recentStart := day.AddDate(0, 0, -29)
	prevStart := day.AddDate(0, 0, -59)
	prevEnd := day.AddDate(0, 0, -30)

	var recentSum, prevSum float64
	var recentN, prevN int
	for _, e := range entries {
		d := dateOnly(e.EntryDate)
		switch {
		case !d.Before(recentStart) && !d.After(day):
			recentSum += e.TotalCarbon
			recentN++
		case !d.Before(prevStart) && !d.After(prevEnd):
			prevSum += e.TotalCarbon
			prevN++
		}
	}

	cmp := PeriodComparison{}
	if recentN > 0 {
		cmp.RecentAvg = recentSum / float64(recentN)
	}
	if prevN > 0 {
		cmp.PreviousAvg = prevSum / float64(prevN)
	}
	switch {
	case cmp.RecentAvg < cmp.PreviousAvg:
		cmp.Trend = TrendImproving
	case cmp.RecentAvg > cmp.PreviousAvg:
		cmp.Trend = TrendWorsening
	default:
		cmp.Trend = TrendStable
	}
	return cmp
}

// SumBreakdown re-derives per-category totals from the raw stored fields.
// The stored scalar total is not decomposable, so each entry goes back
// through the calculator's category functions.
func SumBreakdown(entries []models.FootprintEntry) map[carbon.Category]float64 {
	out := make(map[carbon.Category]float64, len(carbon.Categories))
	for _, cat := range carbon.Categories {
		out[cat] = 0
	}
	for _, e := range entries {
		a := e.Activity()
		for _, cat := range carbon.Categories {
			out[cat] += carbon.CategoryEmissions(cat, a)
		}
	}
	return out
}

// StatsService computes read-side aggregates over the entry log.
type StatsService struct {
	db      *gorm.DB
	entries *EntryService
}

// NewStatsService creates a StatsService.
func NewStatsService(db *gorm.DB, entries *EntryService) *StatsService {
	return &StatsService{db: db, entries: entries}
}

// Stats builds the full dashboard aggregate for one user. A user with no
// entries gets a zeroed result, not an error.
func (s *StatsService) Stats(ctx context.Context, userID uint, asOf time.Time) (*DashboardStats, error) {
	entries, err := s.entries.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &DashboardStats{
		Basic:             ComputeBasicStats(entries),
		Period:            ComparePeriods(entries, asOf),
		CategoryBreakdown: SumBreakdown(entries),
	}, nil
}

// UserActivity is one row of the admin most-active ranking.
type UserActivity struct {
	Username string `json:"username"`
	Entries  int64  `json:"entries"`
}

// SystemOverview aggregates system-wide numbers for the admin dashboard.
type SystemOverview struct {
	UserCount       int64          `json:"user_count"`
	EntryCount      int64          `json:"entry_count"`
	TotalCarbon     float64        `json:"total_carbon"`
	ActiveUsers     int64          `json:"active_users"`
	EntriesThisWeek int64          `json:"entries_this_week"`
	MostActive      []UserActivity `json:"most_active"`
}

// Overview computes system-wide statistics. Individual failures fall back
// to zero instead of failing the whole view.
func (s *StatsService) Overview(ctx context.Context) *SystemOverview {
	db := s.db.WithContext(ctx)
	out := &SystemOverview{}

	if err := db.Model(&models.User{}).Count(&out.UserCount).Error; err != nil {
		out.UserCount = 0
	}
	if err := db.Model(&models.FootprintEntry{}).Count(&out.EntryCount).Error; err != nil {
		out.EntryCount = 0
	}
	if err := db.Model(&models.FootprintEntry{}).
		Select("COALESCE(SUM(total_carbon),0)").
		Scan(&out.TotalCarbon).Error; err != nil {
		out.TotalCarbon = 0
	}
	if err := db.Model(&models.FootprintEntry{}).
		Distinct("user_id").
		Count(&out.ActiveUsers).Error; err != nil {
		out.ActiveUsers = 0
	}
	weekAgo := time.Now().AddDate(0, 0, -7)
	if err := db.Model(&models.FootprintEntry{}).
		Where("created_at >= ?", weekAgo).
		Count(&out.EntriesThisWeek).Error; err != nil {
		out.EntriesThisWeek = 0
	}
	if err := db.Model(&models.FootprintEntry{}).
		Select("users.username, COUNT(footprint_entries.id) AS entries").
		Joins("JOIN users ON users.id = footprint_entries.user_id").
		Group("users.username").
		Order("entries DESC").
		Limit(5).
		Scan(&out.MostActive).Error; err != nil {
		out.MostActive = nil
	}

	return out
}
