package models

import "time"

// Streak keeps one running consecutive-day record per user. The record is
// upserted on every accepted entry save; it is never deleted while the user
// exists.
type Streak struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserID        uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	CurrentStreak int        `gorm:"default:0" json:"current_streak"`
	LongestStreak int        `gorm:"default:0" json:"longest_streak"`
	LastEntryDate *time.Time `json:"last_entry_date"`
	TotalEntries  int        `gorm:"default:0" json:"total_entries"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
