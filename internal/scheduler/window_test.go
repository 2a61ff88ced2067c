package scheduler

import (
	"testing"
	"time"
)

func TestParseTimeOfDay_AcceptedForms(t *testing.T) {
	cases := []struct {
		in             string
		hour, min, sec int
	}{
		{"09:00", 9, 0, 0},
		{"9:05", 9, 5, 0},
		{"21:30:15", 21, 30, 15},
		{"00:00", 0, 0, 0},
		{"23:59:59", 23, 59, 59},
		{"9:00 AM", 9, 0, 0},
		{"9:00 PM", 21, 0, 0},
		{"12:00 AM", 0, 0, 0},
		{"12:30 PM", 12, 30, 0},
		{"5:45 pm", 17, 45, 0},
		{"  07:15  ", 7, 15, 0},
	}
	for _, tc := range cases {
		hour, min, sec, err := ParseTimeOfDay(tc.in)
		if err != nil {
			t.Errorf("ParseTimeOfDay(%q): unexpected error: %v", tc.in, err)
			continue
		}
		if hour != tc.hour || min != tc.min || sec != tc.sec {
			t.Errorf("ParseTimeOfDay(%q) = %d:%d:%d, want %d:%d:%d",
				tc.in, hour, min, sec, tc.hour, tc.min, tc.sec)
		}
	}
}

func TestParseTimeOfDay_Rejected(t *testing.T) {
	cases := []string{
		"",
		"9",
		"25:00",
		"09:61",
		"09:00:75",
		"13:00 PM",
		"0:30 AM",
		"ab:cd",
		"1:2:3:4",
	}
	for _, in := range cases {
		if _, _, _, err := ParseTimeOfDay(in); err == nil {
			t.Errorf("ParseTimeOfDay(%q): expected error, got none", in)
		}
	}
}

func TestEvaluateTrigger_FiredWithElapsedHours(t *testing.T) {
	// 12:00 owner-local, trigger at 09:00: fired three hours ago.
	now := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC) // 12:00 in UTC+9
	status, ok := EvaluateTrigger("09:00", now, DefaultZone)
	if !ok {
		t.Fatal("expected trigger to evaluate")
	}
	if !status.Fired {
		t.Error("expected Fired")
	}
	if status.HoursSince != 3 {
		t.Errorf("HoursSince = %v, want 3", status.HoursSince)
	}
}

func TestEvaluateTrigger_NotYetFired(t *testing.T) {
	now := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC) // 12:00 in UTC+9
	status, ok := EvaluateTrigger("15:00", now, DefaultZone)
	if !ok {
		t.Fatal("expected trigger to evaluate")
	}
	if status.Fired {
		t.Error("expected not Fired before the trigger time")
	}
	if status.HoursSince >= 0 {
		t.Errorf("HoursSince = %v, want negative", status.HoursSince)
	}
}

func TestEvaluateTrigger_UnparseableIsIneligible(t *testing.T) {
	now := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	if _, ok := EvaluateTrigger("", now, DefaultZone); ok {
		t.Error("empty trigger time should not evaluate")
	}
	if _, ok := EvaluateTrigger("soon", now, DefaultZone); ok {
		t.Error("garbage trigger time should not evaluate")
	}
}

func TestOwnerLocation_Fallback(t *testing.T) {
	if loc := OwnerLocation(""); loc != DefaultZone {
		t.Errorf("empty timezone: got %v, want default", loc)
	}
	if loc := OwnerLocation("Not/AZone"); loc != DefaultZone {
		t.Errorf("unknown timezone: got %v, want default", loc)
	}
	if loc := OwnerLocation("UTC"); loc == DefaultZone {
		t.Error("valid timezone should not fall back")
	}
}

func TestLocalDate_CrossesUTCMidnight(t *testing.T) {
	// 20:00 UTC on March 1st is already March 2nd in UTC+9.
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	got := LocalDate(now, DefaultZone)
	want := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("LocalDate = %v, want %v", got, want)
	}
}

func TestDayBoundsUTC_OffsetZone(t *testing.T) {
	// Owner-local day 2026-03-02 in UTC+9 maps to the UTC range
	// [2026-03-01 15:00:00, 2026-03-02 14:59:59.999999].
	now := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	from, to := DayBoundsUTC(now, DefaultZone)

	wantFrom := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	wantTo := time.Date(2026, 3, 2, 14, 59, 59, 999999000, time.UTC)
	if !from.Equal(wantFrom) {
		t.Errorf("from = %v, want %v", from, wantFrom)
	}
	if !to.Equal(wantTo) {
		t.Errorf("to = %v, want %v", to, wantTo)
	}
}
