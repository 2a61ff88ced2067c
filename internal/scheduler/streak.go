package scheduler

import (
	"time"
)

// CurrentStreak computes the habit's run of consecutive completion days.
//
// Input is the de-duplicated list of calendar dates (midnight UTC,
// descending) on which the habit had at least one completion, plus "today"
// in the owner's timezone. The streak may anchor on either today or
// yesterday, so a habit not yet done today still shows yesterday's streak,
// but strict day-by-day contiguity is required from the anchor backwards.
//
// Every streak consumer funnels through this one function; the per-day
// completion set may come from the activity date column or from truncated
// timestamps, but the contiguity rule lives here only.
func CurrentStreak(datesDesc []time.Time, today time.Time) int {
	streak := 0
	anchor := dateFloor(today)

	for _, raw := range datesDesc {
		date := dateFloor(raw)

		switch {
		case streak == 0 && date.Equal(anchor):
			streak = 1
			anchor = anchor.AddDate(0, 0, -1)
		case streak == 0 && date.Equal(anchor.AddDate(0, 0, -1)):
			// Nothing today yet; the streak starts from yesterday.
			streak = 1
			anchor = date.AddDate(0, 0, -1)
		case streak > 0 && date.Equal(anchor):
			streak++
			anchor = anchor.AddDate(0, 0, -1)
		default:
			return streak
		}
	}

	return streak
}

// dateFloor normalizes an instant to its calendar date at midnight UTC.
func dateFloor(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
