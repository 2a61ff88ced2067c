package actions

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"habitpulse/internal/types"
)

type upsertCall struct {
	owner   types.Owner
	habitID string
	date    time.Time
	patch   types.FollowUpStatusPatch
}

type fakeLedger struct {
	upserts []upsertCall
	err     error
}

func (f *fakeLedger) Upsert(_ context.Context, owner types.Owner, habitID string, date time.Time, patch types.FollowUpStatusPatch) (*types.FollowUpStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.upserts = append(f.upserts, upsertCall{owner: owner, habitID: habitID, date: date, patch: patch})
	return &types.FollowUpStatus{Owner: owner, HabitID: habitID, Date: date}, nil
}

type fakeHabits struct {
	err error
}

func (f *fakeHabits) GetByID(_ context.Context, owner types.Owner, habitID string) (*types.Habit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &types.Habit{ID: habitID, Owner: owner, Name: "stretch", Active: true}, nil
}

type fakePrefs struct {
	prefs *types.NotificationPreferences
	err   error
}

func (f *fakePrefs) GetByOwner(context.Context, types.Owner) (*types.NotificationPreferences, error) {
	return f.prefs, f.err
}

type fixture struct {
	ledger *fakeLedger
	habits *fakeHabits
	prefs  *fakePrefs
	svc    *Service
}

func newFixture(now time.Time) *fixture {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		ledger: &fakeLedger{},
		habits: &fakeHabits{},
		prefs: &fakePrefs{prefs: &types.NotificationPreferences{
			NotificationsEnabled: true,
			Timezone:             "UTC",
		}},
	}
	f.svc = NewService(ServiceConfig{
		Ledger: f.ledger,
		Habits: f.habits,
		Prefs:  f.prefs,
		Clock:  types.FixedClock{T: now},
		Logger: logger,
	})
	return f
}

var owner = types.Owner{Type: types.OwnerTypeUser, ID: "user-1"}

func TestSkip_SetsSkippedForToday(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	f := newFixture(now)

	status, err := f.svc.Skip(context.Background(), owner, "h1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status == nil {
		t.Fatal("expected a status")
	}

	if len(f.ledger.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(f.ledger.upserts))
	}
	call := f.ledger.upserts[0]
	if call.patch.Skipped == nil || !*call.patch.Skipped {
		t.Errorf("patch = %+v, want skipped=true", call.patch)
	}
	if call.patch.RemindLaterAt != nil || call.patch.ReminderSentAt != nil {
		t.Errorf("skip touched unrelated fields: %+v", call.patch)
	}
	wantDate := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if !call.date.Equal(wantDate) {
		t.Errorf("date = %v, want %v", call.date, wantDate)
	}
}

func TestSkip_OwnerLocalDate(t *testing.T) {
	// 20:00 UTC with no preferences row: the fixed default offset puts the
	// owner on the next calendar day.
	now := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	f := newFixture(now)
	f.prefs.prefs = nil

	if _, err := f.svc.Skip(context.Background(), owner, "h1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantDate := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if !f.ledger.upserts[0].date.Equal(wantDate) {
		t.Errorf("date = %v, want %v", f.ledger.upserts[0].date, wantDate)
	}
}

func TestSkip_UnknownHabit(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	f := newFixture(now)
	f.habits.err = types.NewAppError(types.ErrCodeNotFoundHabit, "habit not found", nil)

	_, err := f.svc.Skip(context.Background(), owner, "missing")

	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeNotFoundHabit {
		t.Fatalf("err = %v, want not-found passed through", err)
	}
	if len(f.ledger.upserts) != 0 {
		t.Error("ledger written for an unknown habit")
	}
}

func TestSnooze_DefaultDelay(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	f := newFixture(now)

	_, err := f.svc.Snooze(context.Background(), owner, "h1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	call := f.ledger.upserts[0]
	if call.patch.RemindLaterAt == nil {
		t.Fatal("remind_later_at not set")
	}
	want := now.Add(60 * time.Minute)
	if !call.patch.RemindLaterAt.Equal(want) {
		t.Errorf("remind_later_at = %v, want %v", call.patch.RemindLaterAt, want)
	}
	if call.patch.Skipped != nil {
		t.Errorf("snooze touched the skipped flag: %+v", call.patch)
	}
}

func TestSnooze_ExplicitDelay(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	f := newFixture(now)

	if _, err := f.svc.Snooze(context.Background(), owner, "h1", 15); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := now.Add(15 * time.Minute)
	if got := f.ledger.upserts[0].patch.RemindLaterAt; got == nil || !got.Equal(want) {
		t.Errorf("remind_later_at = %v, want %v", got, want)
	}
}

func TestSnooze_DelayOutOfRange(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	for _, delay := range []int{-5, maxSnoozeMinutes + 1} {
		f := newFixture(now)
		_, err := f.svc.Snooze(context.Background(), owner, "h1", delay)

		var appErr *types.AppError
		if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeValidationDelay {
			t.Errorf("delay %d: err = %v, want validation error", delay, err)
		}
		if len(f.ledger.upserts) != 0 {
			t.Errorf("delay %d: ledger written despite invalid delay", delay)
		}
	}
}

func TestSkip_StoreFailureIsClassified(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	f := newFixture(now)
	f.ledger.err = errors.New("connection reset by peer")

	_, err := f.svc.Skip(context.Background(), owner, "h1")

	var actionErr *ActionError
	if !errors.As(err, &actionErr) {
		t.Fatalf("err = %v, want ActionError", err)
	}
	if actionErr.Classification.Category != types.ErrorCategoryConnection {
		t.Errorf("category = %v, want connection", actionErr.Classification.Category)
	}
	if actionErr.Classification.Message == "" {
		t.Error("classification must carry the localized message")
	}
}

func TestSnooze_StoreFailureIsClassified(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	f := newFixture(now)
	f.ledger.err = errors.New("failed to query followup_status")

	_, err := f.svc.Snooze(context.Background(), owner, "h1", 30)

	var actionErr *ActionError
	if !errors.As(err, &actionErr) {
		t.Fatalf("err = %v, want ActionError", err)
	}
	if actionErr.Classification.Category != types.ErrorCategoryDataFetch {
		t.Errorf("category = %v, want data-fetch", actionErr.Classification.Category)
	}
}
