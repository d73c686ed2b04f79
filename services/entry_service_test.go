package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailgreen/carbontrack/carbon"
	"github.com/trailgreen/carbontrack/models"
)

func newEntryService(t *testing.T) (*EntryService, *StreakService) {
	db := newTestDB(t)
	streaks := NewStreakService(db)
	return NewEntryService(db, streaks), streaks
}

func TestSaveComputesTotalAtWriteTime(t *testing.T) {
	svc, _ := newEntryService(t)
	ctx := context.Background()

	activity := carbon.Activity{
		ElectricityKWh:   100,
		CarMiles:         250,
		FlightsShortHaul: 1,
		MeatServings:     2,
	}
	entry, err := svc.Save(ctx, 1, day(1), activity)
	require.NoError(t, err)
	assert.InDelta(t, carbon.Total(activity), entry.TotalCarbon, 1e-9)
	assert.Equal(t, uint(1), entry.UserID)
	assert.NotZero(t, entry.ID)
}

func TestSaveRoundTrip(t *testing.T) {
	svc, _ := newEntryService(t)
	ctx := context.Background()

	activity := carbon.Activity{ElectricityKWh: 30, VegServings: 2}
	saved, err := svc.Save(ctx, 1, day(5), activity)
	require.NoError(t, err)

	entries, err := svc.ListForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, saved.ID, entries[0].ID)
	assert.InDelta(t, carbon.Total(entries[0].Activity()), entries[0].TotalCarbon, 1e-9)
}

func TestSaveRejectsNegativeInput(t *testing.T) {
	svc, _ := newEntryService(t)
	ctx := context.Background()

	_, err := svc.Save(ctx, 1, day(1), carbon.Activity{CarMiles: -10})
	require.Error(t, err)
	assert.ErrorIs(t, err, carbon.ErrNegativeInput)

	// Rejected before calculation: nothing may have been persisted.
	entries, err := svc.ListForUser(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaveAdvancesStreak(t *testing.T) {
	svc, streaks := newEntryService(t)
	ctx := context.Background()

	_, err := svc.Save(ctx, 1, day(1), carbon.Activity{ElectricityKWh: 10})
	require.NoError(t, err)
	_, err = svc.Save(ctx, 1, day(2), carbon.Activity{ElectricityKWh: 12})
	require.NoError(t, err)

	streak, err := streaks.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, streak.CurrentStreak)
	assert.Equal(t, 2, streak.TotalEntries)
}

func TestListForUserNewestFirst(t *testing.T) {
	svc, _ := newEntryService(t)
	ctx := context.Background()

	for _, n := range []int{3, 1, 2} {
		_, err := svc.Save(ctx, 1, day(n), carbon.Activity{ElectricityKWh: float64(n)})
		require.NoError(t, err)
	}

	entries, err := svc.ListForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, entries[0].EntryDate.Equal(day(3)))
	assert.True(t, entries[1].EntryDate.Equal(day(2)))
	assert.True(t, entries[2].EntryDate.Equal(day(1)))
}

func TestListForUserScopedToOwner(t *testing.T) {
	svc, _ := newEntryService(t)
	ctx := context.Background()

	_, err := svc.Save(ctx, 1, day(1), carbon.Activity{ElectricityKWh: 5})
	require.NoError(t, err)
	_, err = svc.Save(ctx, 2, day(1), carbon.Activity{ElectricityKWh: 9})
	require.NoError(t, err)

	entries, err := svc.ListForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, uint(1), entries[0].UserID)
}

func TestListAllJoinsUsernames(t *testing.T) {
	db := newTestDB(t)
	streaks := NewStreakService(db)
	svc := NewEntryService(db, streaks)
	ctx := context.Background()

	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	_, err := svc.Save(ctx, alice.ID, day(1), carbon.Activity{ElectricityKWh: 5})
	require.NoError(t, err)
	_, err = svc.Save(ctx, bob.ID, day(2), carbon.Activity{CarMiles: 25})
	require.NoError(t, err)

	rows, err := svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "bob", rows[0].Username)
	assert.Equal(t, "alice", rows[1].Username)
}

func TestSaveStoredTotalImmutable(t *testing.T) {
	svc, _ := newEntryService(t)
	ctx := context.Background()

	first, err := svc.Save(ctx, 1, day(1), carbon.Activity{ElectricityKWh: 100})
	require.NoError(t, err)

	// A second save for the same day appends a new row; it never touches
	// the earlier entry.
	_, err = svc.Save(ctx, 1, day(1), carbon.Activity{ElectricityKWh: 200})
	require.NoError(t, err)

	entries, err := svc.ListForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	var reread *models.FootprintEntry
	for i := range entries {
		if entries[i].ID == first.ID {
			reread = &entries[i]
		}
	}
	require.NotNil(t, reread)
	assert.InDelta(t, 40.0, reread.TotalCarbon, 1e-9)
}
