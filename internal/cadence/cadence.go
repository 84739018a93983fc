// Package cadence computes dispatch dates for recurring subscriptions.
//
// A cadence is a weekday plus a frequency in weeks. All calculations operate
// on dates, not timestamps: inputs are truncated to midnight UTC so that two
// calls on the same calendar day always agree.
package cadence

import (
	"errors"
	"time"
)

// ErrInvalidCadence reports a frequency below one week or a weekday outside
// 0..6. These are caller bugs, not runtime conditions; constructors must
// reject them before a subscription is ever persisted.
var ErrInvalidCadence = errors.New("cadence: invalid dispatch cadence")

// DateOnly truncates t to midnight UTC.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ValidWeekday reports whether d is a storable day-of-week value (0..6,
// Sunday = 0, matching time.Weekday).
func ValidWeekday(d int) bool {
	return d >= 0 && d <= 6
}

// NextDispatchDate returns the next dispatch date on or after from.
//
// It finds the smallest date >= from whose weekday equals weekday, skipping to
// the following week when from already falls on weekday and sameDayAcceptable
// is false, then advances by 7*(frequencyWeeks-1) further days. frequencyWeeks
// below 1 is rejected with ErrInvalidCadence.
func NextDispatchDate(from time.Time, weekday time.Weekday, frequencyWeeks int, sameDayAcceptable bool) (time.Time, error) {
	if frequencyWeeks < 1 {
		return time.Time{}, ErrInvalidCadence
	}
	if !ValidWeekday(int(weekday)) {
		return time.Time{}, ErrInvalidCadence
	}

	d := DateOnly(from)
	daysAhead := int(weekday) - int(d.Weekday())
	if daysAhead < 0 {
		daysAhead += 7
	}
	if daysAhead == 0 && !sameDayAcceptable {
		daysAhead = 7
	}

	return d.AddDate(0, 0, daysAhead+7*(frequencyWeeks-1)), nil
}

// NextDispatchAfterPause resolves the dispatch date for a subscription coming
// off a pause. When the already-scheduled date falls on or after pauseUntil
// it is returned unmodified: a short pause that does not reach the next cycle
// must not shift the dispatch day. Only when the pause pushes past the
// scheduled date is a new date computed, the first matching weekday strictly
// after pauseUntil.
func NextDispatchAfterPause(scheduled, pauseUntil time.Time, weekday time.Weekday) time.Time {
	scheduled = DateOnly(scheduled)
	pauseUntil = DateOnly(pauseUntil)

	if !scheduled.Before(pauseUntil) {
		return scheduled
	}

	next, err := NextDispatchDate(pauseUntil.AddDate(0, 0, 1), weekday, 1, true)
	if err != nil {
		// weekday came from a validated subscription; unreachable in practice
		return scheduled
	}
	return next
}
