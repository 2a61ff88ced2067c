// Package scheduler implements the periodic sweep services of the habitpulse
// notification engine: reminders, follow-up escalations, deferred reminders,
// and weekly reports. Each sweep is invoked by an external periodic trigger,
// scans the eligible records, and performs at most one side effect per record
// per day, with idempotency enforced by the followup_status ledger rather
// than by mutual exclusion between sweep runs.
package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultZone is the fixed offset applied when an owner has no timezone
// configured.
var DefaultZone = time.FixedZone("UTC+9", 9*60*60)

// OwnerLocation resolves an owner's IANA timezone name, falling back to the
// fixed default offset when the name is empty or unknown.
func OwnerLocation(tz string) *time.Location {
	if tz == "" {
		return DefaultZone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return DefaultZone
	}
	return loc
}

// TriggerStatus is the outcome of evaluating a habit's trigger time against
// the current instant in the owner's timezone.
type TriggerStatus struct {
	// Fired is true once the owner-local clock has passed the trigger time.
	Fired bool

	// HoursSince is the elapsed time since the trigger, in hours. Negative
	// while the trigger is still in the future today.
	HoursSince float64
}

// EvaluateTrigger parses the habit's trigger time-of-day and compares it
// against now in the given location. ok is false when the trigger time is
// absent or unparseable; such habits are simply not eligible.
func EvaluateTrigger(triggerTime string, now time.Time, loc *time.Location) (TriggerStatus, bool) {
	hour, min, sec, err := ParseTimeOfDay(triggerTime)
	if err != nil {
		return TriggerStatus{}, false
	}

	local := now.In(loc)
	trigger := time.Date(local.Year(), local.Month(), local.Day(), hour, min, sec, 0, loc)

	elapsed := local.Sub(trigger)
	return TriggerStatus{
		Fired:      elapsed >= 0,
		HoursSince: elapsed.Hours(),
	}, true
}

// ParseTimeOfDay parses a trigger time in any of the accepted textual forms:
// "HH:MM", "HH:MM:SS", or "H:MM AM"/"H:MM PM" (case-insensitive). Parsing
// should happen once at the data-model boundary; the sweeps only ever see
// already-validated values, but the parser stays tolerant for legacy rows.
func ParseTimeOfDay(s string) (hour, min, sec int, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, 0, fmt.Errorf("empty time of day")
	}

	// Detect and strip a trailing meridiem marker.
	meridiem := ""
	upper := strings.ToUpper(s)
	for _, suffix := range []string{"AM", "PM"} {
		if strings.HasSuffix(upper, suffix) {
			meridiem = suffix
			s = strings.TrimSpace(s[:len(s)-2])
			break
		}
	}

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, 0, fmt.Errorf("expected HH:MM[:SS] or H:MM AM/PM, got %q", s)
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid hour %q", parts[0])
	}
	min, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid minute %q", parts[1])
	}
	if len(parts) == 3 {
		sec, err = strconv.Atoi(parts[2])
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid second %q", parts[2])
		}
	}

	switch meridiem {
	case "AM":
		if hour < 1 || hour > 12 {
			return 0, 0, 0, fmt.Errorf("hour %d out of range for AM/PM", hour)
		}
		if hour == 12 {
			hour = 0
		}
	case "PM":
		if hour < 1 || hour > 12 {
			return 0, 0, 0, fmt.Errorf("hour %d out of range for AM/PM", hour)
		}
		if hour != 12 {
			hour += 12
		}
	}

	if hour < 0 || hour > 23 {
		return 0, 0, 0, fmt.Errorf("hour %d out of range [0,23]", hour)
	}
	if min < 0 || min > 59 {
		return 0, 0, 0, fmt.Errorf("minute %d out of range [0,59]", min)
	}
	if sec < 0 || sec > 59 {
		return 0, 0, 0, fmt.Errorf("second %d out of range [0,59]", sec)
	}

	return hour, min, sec, nil
}

// LocalDate returns the owner-local calendar date of the given instant,
// normalized to midnight UTC. This is the date half of every ledger key.
func LocalDate(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// DayBoundsUTC maps "today" in the owner's timezone to the closed UTC
// instant range [local 00:00:00, local 23:59:59.999999]. All activity
// queries for "today" use this range, never machine-local midnight.
func DayBoundsUTC(now time.Time, loc *time.Location) (from, to time.Time) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end := time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 999999000, loc)
	return start.UTC(), end.UTC()
}
