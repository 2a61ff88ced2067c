package scheduler

import (
	"context"
	"testing"
	"time"

	"habitpulse/internal/types"
)

func dueStatus(owner types.Owner, habitID string, at time.Time) *types.FollowUpStatus {
	return &types.FollowUpStatus{
		Owner:         owner,
		HabitID:       habitID,
		Date:          time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC),
		RemindLaterAt: timePtr(at),
	}
}

type remindLaterFixture struct {
	habits    *mockHabits
	acts      *mockActivities
	ledger    *mockLedger
	prefs     *mockPrefs
	conns     *mockConns
	messenger *mockMessenger
	sweep     *RemindLaterSweep
}

func newRemindLaterFixture(now time.Time) *remindLaterFixture {
	owner := testOwner()
	f := &remindLaterFixture{
		habits:    &mockHabits{habits: []*types.Habit{testHabit("h1", "08:00")}},
		acts:      &mockActivities{},
		ledger:    &mockLedger{due: []*types.FollowUpStatus{dueStatus(owner, "h1", now.Add(-5*time.Minute))}},
		prefs:     &mockPrefs{prefs: map[string]*types.NotificationPreferences{owner.ID: utcPrefs(owner)}},
		conns:     &mockConns{conns: map[string]*types.Connection{owner.ID: testConn(owner)}},
		messenger: &mockMessenger{},
	}
	f.sweep = NewRemindLaterSweep(RemindLaterSweepConfig{
		Habits:     f.habits,
		Activities: f.acts,
		Ledger:     f.ledger,
		Prefs:      f.prefs,
		Conns:      f.conns,
		Messenger:  f.messenger,
		Clock:      types.FixedClock{T: now},
		Logger:     testLogger(),
	})
	return f
}

func TestRemindLaterSweep_DeliversAndClearsMarker(t *testing.T) {
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	f := newRemindLaterFixture(now)

	result, err := f.sweep.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SentCount != 1 {
		t.Fatalf("result = %+v, want 1 sent", result)
	}
	if len(f.messenger.reminders) != 1 || f.messenger.reminders[0] != "h1" {
		t.Errorf("reminders = %v, want [h1]", f.messenger.reminders)
	}

	if len(f.ledger.upserts) != 1 {
		t.Fatalf("ledger upserts = %d, want 1", len(f.ledger.upserts))
	}
	patch := f.ledger.upserts[0].patch
	if !patch.ClearRemindLater {
		t.Error("deferral marker was not cleared")
	}
	// Only the marker is consumed; the day's reminder_sent_at record is
	// the scheduled sweep's business.
	if patch.ReminderSentAt != nil {
		t.Errorf("deferred delivery set reminder_sent_at: %v", patch.ReminderSentAt)
	}
}

func TestRemindLaterSweep_CompletedClearsWithoutSending(t *testing.T) {
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	f := newRemindLaterFixture(now)
	f.acts.completedToday = map[string]bool{"h1": true}

	result, err := f.sweep.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SentCount != 0 || len(f.messenger.reminders) != 0 {
		t.Errorf("completed habit was re-reminded: %+v", result)
	}
	if len(f.ledger.upserts) != 1 || !f.ledger.upserts[0].patch.ClearRemindLater {
		t.Errorf("satisfied deferral was not cleared: %+v", f.ledger.upserts)
	}
}

func TestRemindLaterSweep_SkipRecordedAfterDueQueryWins(t *testing.T) {
	// The owner taps skip between the due query and processing. The fresh
	// ledger read sees the skip and the deferral never fires.
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	f := newRemindLaterFixture(now)
	owner := testOwner()
	skipped := dueStatus(owner, "h1", now.Add(-5*time.Minute))
	skipped.Skipped = true
	f.ledger.statuses = map[statusKey]*types.FollowUpStatus{
		keyFor(owner, "h1"): skipped,
	}

	result, err := f.sweep.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SentCount != 0 || len(f.messenger.reminders) != 0 {
		t.Errorf("skipped deferral was delivered: %+v", result)
	}
	if len(f.ledger.upserts) != 0 {
		t.Errorf("skipped deferral wrote the ledger: %+v", f.ledger.upserts)
	}
}

func TestRemindLaterSweep_MissingHabitClearsMarker(t *testing.T) {
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	f := newRemindLaterFixture(now)
	f.habits.habits = nil // habit deleted after the deferral was recorded

	result, err := f.sweep.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SentCount != 0 || result.ErrorCount != 0 {
		t.Errorf("result = %+v, want clean nothing-sent run", result)
	}
	if len(f.ledger.upserts) != 1 || !f.ledger.upserts[0].patch.ClearRemindLater {
		t.Errorf("orphaned deferral was not cleared: %+v", f.ledger.upserts)
	}
}

func TestRemindLaterSweep_NoConnectionLeavesMarker(t *testing.T) {
	// Without a connection the deferral stays in place for a later run.
	now := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	f := newRemindLaterFixture(now)
	f.conns.conns = nil

	result, err := f.sweep.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.SentCount != 0 || len(f.messenger.reminders) != 0 {
		t.Errorf("reminder sent without a connection: %+v", result)
	}
	if len(f.ledger.upserts) != 0 {
		t.Errorf("marker consumed without delivery: %+v", f.ledger.upserts)
	}
}
