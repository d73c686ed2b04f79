package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2025, time.March, n, 0, 0, 0, 0, time.UTC)
}

func TestRecordEntryConsecutiveDays(t *testing.T) {
	db := newTestDB(t)
	svc := NewStreakService(db)
	ctx := context.Background()

	for _, n := range []int{1, 2, 3} {
		_, err := svc.RecordEntry(ctx, 1, day(n))
		require.NoError(t, err)
	}

	streak, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, streak.CurrentStreak)
	assert.Equal(t, 3, streak.LongestStreak)
	assert.Equal(t, 3, streak.TotalEntries)
	require.NotNil(t, streak.LastEntryDate)
	assert.True(t, streak.LastEntryDate.Equal(day(3)))
}

func TestRecordEntryZoneRenderedInstantKeepsDate(t *testing.T) {
	db := newTestDB(t)
	svc := NewStreakService(db)
	ctx := context.Background()

	_, err := svc.RecordEntry(ctx, 1, day(10))
	require.NoError(t, err)

	// The same UTC midnight rendered west of UTC must not read as the
	// previous calendar day.
	west := time.FixedZone("UTC-5", -5*60*60)
	streak, err := svc.RecordEntry(ctx, 1, day(11).In(west))
	require.NoError(t, err)
	assert.Equal(t, 2, streak.CurrentStreak)
	assert.Equal(t, 2, streak.TotalEntries)

	// And a repeat of the same day in that rendering stays a no-op.
	streak, err = svc.RecordEntry(ctx, 1, day(11).In(west))
	require.NoError(t, err)
	assert.Equal(t, 2, streak.CurrentStreak)
	assert.Equal(t, 2, streak.TotalEntries)
}

func TestRecordEntryGapResetsStreak(t *testing.T) {
	db := newTestDB(t)
	svc := NewStreakService(db)
	ctx := context.Background()

	for _, n := range []int{1, 2, 5} {
		_, err := svc.RecordEntry(ctx, 1, day(n))
		require.NoError(t, err)
	}

	streak, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentStreak)
	assert.Equal(t, 2, streak.LongestStreak)
	assert.Equal(t, 3, streak.TotalEntries)
}

func TestRecordEntrySameDayIsNoOp(t *testing.T) {
	db := newTestDB(t)
	svc := NewStreakService(db)
	ctx := context.Background()

	for _, n := range []int{1, 2} {
		_, err := svc.RecordEntry(ctx, 1, day(n))
		require.NoError(t, err)
	}
	before, err := svc.Get(ctx, 1)
	require.NoError(t, err)

	// Duplicate for day 2 twice: neither call may change the record.
	for i := 0; i < 2; i++ {
		after, err := svc.RecordEntry(ctx, 1, day(2))
		require.NoError(t, err)
		assert.Equal(t, before.CurrentStreak, after.CurrentStreak)
		assert.Equal(t, before.LongestStreak, after.LongestStreak)
		assert.Equal(t, before.TotalEntries, after.TotalEntries)
		assert.True(t, after.LastEntryDate.Equal(*before.LastEntryDate))
	}
}

func TestRecordEntryBackdatedResets(t *testing.T) {
	db := newTestDB(t)
	svc := NewStreakService(db)
	ctx := context.Background()

	for _, n := range []int{10, 11, 12} {
		_, err := svc.RecordEntry(ctx, 1, day(n))
		require.NoError(t, err)
	}

	// Out-of-order date resets the running streak; longest is kept.
	streak, err := svc.RecordEntry(ctx, 1, day(4))
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentStreak)
	assert.Equal(t, 3, streak.LongestStreak)
	assert.Equal(t, 4, streak.TotalEntries)
	assert.True(t, streak.LastEntryDate.Equal(day(4)))
}

func TestRecordEntryFirstEntryCreatesRecord(t *testing.T) {
	db := newTestDB(t)
	svc := NewStreakService(db)

	streak, err := svc.RecordEntry(context.Background(), 7, day(15))
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentStreak)
	assert.Equal(t, 1, streak.LongestStreak)
	assert.Equal(t, 1, streak.TotalEntries)
}

func TestRecordEntryAfterEnsureRecord(t *testing.T) {
	db := newTestDB(t)
	svc := NewStreakService(db)
	ctx := context.Background()

	// Registration creates the row with zero values; the first entry then
	// starts the streak from it.
	require.NoError(t, svc.EnsureRecord(ctx, 3))
	streak, err := svc.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, streak.CurrentStreak)
	assert.Nil(t, streak.LastEntryDate)

	streak, err = svc.RecordEntry(ctx, 3, day(1))
	require.NoError(t, err)
	assert.Equal(t, 1, streak.CurrentStreak)
	assert.Equal(t, 1, streak.LongestStreak)
	assert.Equal(t, 1, streak.TotalEntries)
}

func TestGetUnknownUserReturnsZeroRecord(t *testing.T) {
	db := newTestDB(t)
	svc := NewStreakService(db)

	streak, err := svc.Get(context.Background(), 999)
	require.NoError(t, err)
	assert.Equal(t, uint(999), streak.UserID)
	assert.Equal(t, 0, streak.CurrentStreak)
	assert.Equal(t, 0, streak.LongestStreak)
	assert.Equal(t, 0, streak.TotalEntries)
	assert.Nil(t, streak.LastEntryDate)
}

func TestRecordEntryTimeOfDayIgnored(t *testing.T) {
	db := newTestDB(t)
	svc := NewStreakService(db)
	ctx := context.Background()

	morning := time.Date(2025, time.March, 1, 8, 30, 0, 0, time.UTC)
	evening := time.Date(2025, time.March, 2, 23, 59, 0, 0, time.UTC)

	_, err := svc.RecordEntry(ctx, 1, morning)
	require.NoError(t, err)
	streak, err := svc.RecordEntry(ctx, 1, evening)
	require.NoError(t, err)
	assert.Equal(t, 2, streak.CurrentStreak)
}
