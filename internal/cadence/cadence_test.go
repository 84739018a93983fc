package cadence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextDispatchDate_WeekdayProperty(t *testing.T) {
	// 2025-06-02 is a Monday
	start := date(2025, time.June, 2)

	for dayOffset := 0; dayOffset < 7; dayOffset++ {
		from := start.AddDate(0, 0, dayOffset)
		for weekday := time.Sunday; weekday <= time.Saturday; weekday++ {
			for frequency := 1; frequency <= 4; frequency++ {
				got, err := NextDispatchDate(from, weekday, frequency, false)
				require.NoError(t, err)
				assert.Equal(t, weekday, got.Weekday(),
					"from=%s weekday=%s frequency=%d", from, weekday, frequency)
				assert.True(t, got.After(from), "result must be strictly after from when same-day is not acceptable")
			}
		}
	}
}

func TestNextDispatchDate_SameDaySkipsToFollowingWeek(t *testing.T) {
	monday := date(2025, time.June, 2)
	require.Equal(t, time.Monday, monday.Weekday())

	got, err := NextDispatchDate(monday, time.Monday, 1, false)
	require.NoError(t, err)
	assert.Equal(t, monday.AddDate(0, 0, 7), got)
}

func TestNextDispatchDate_SameDayAcceptable(t *testing.T) {
	monday := date(2025, time.June, 2)

	got, err := NextDispatchDate(monday, time.Monday, 1, true)
	require.NoError(t, err)
	assert.Equal(t, monday, got)
}

func TestNextDispatchDate_FrequencyAdvancesWholeWeeks(t *testing.T) {
	tuesday := date(2025, time.June, 3)
	require.Equal(t, time.Tuesday, tuesday.Weekday())

	got, err := NextDispatchDate(tuesday, time.Friday, 3, false)
	require.NoError(t, err)
	// next Friday is Jun 6, plus two further weeks
	assert.Equal(t, date(2025, time.June, 20), got)
}

func TestNextDispatchDate_TruncatesTimestamps(t *testing.T) {
	lateTuesday := time.Date(2025, time.June, 3, 23, 45, 12, 0, time.UTC)

	got, err := NextDispatchDate(lateTuesday, time.Wednesday, 1, false)
	require.NoError(t, err)
	assert.Equal(t, date(2025, time.June, 4), got)
}

func TestNextDispatchDate_RejectsInvalidFrequency(t *testing.T) {
	for _, frequency := range []int{0, -1, -52} {
		_, err := NextDispatchDate(date(2025, time.June, 2), time.Monday, frequency, false)
		assert.ErrorIs(t, err, ErrInvalidCadence)
	}
}

func TestNextDispatchAfterPause_KeepsScheduledDateWhenPauseEndsEarlier(t *testing.T) {
	scheduled := date(2025, time.June, 16) // Monday
	pauseUntil := date(2025, time.June, 10)

	got := NextDispatchAfterPause(scheduled, pauseUntil, time.Monday)
	assert.Equal(t, scheduled, got, "a short pause must not shift the dispatch day")
}

func TestNextDispatchAfterPause_KeepsScheduledDateOnPauseBoundary(t *testing.T) {
	scheduled := date(2025, time.June, 16)

	got := NextDispatchAfterPause(scheduled, scheduled, time.Monday)
	assert.Equal(t, scheduled, got)
}

func TestNextDispatchAfterPause_RecomputesWhenPausePushesPastScheduled(t *testing.T) {
	scheduled := date(2025, time.June, 16)  // Monday
	pauseUntil := date(2025, time.June, 25) // Wednesday

	got := NextDispatchAfterPause(scheduled, pauseUntil, time.Monday)
	assert.Equal(t, date(2025, time.June, 30), got)
	assert.True(t, got.After(pauseUntil))
}

func TestNextDispatchAfterPause_PauseEndingOnWeekdayMovesToNextWeek(t *testing.T) {
	scheduled := date(2025, time.June, 16)  // Monday
	pauseUntil := date(2025, time.June, 23) // also a Monday, after scheduled

	got := NextDispatchAfterPause(scheduled, pauseUntil, time.Monday)
	// strictly after the pause: the following Monday
	assert.Equal(t, date(2025, time.June, 30), got)
}
