package scheduler

import (
	"context"
	"io"
	"log/slog"
	"time"

	"habitpulse/internal/types"
)

// --- Shared mocks ---
//
// Hand-rolled recording mocks shared by the sweep tests. Each mock keys its
// fixtures by habit id where possible; the tests use one owner per case, so
// owner disambiguation is rarely needed.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockHabits serves both the trigger-driven sweeps and the weekly report.
type mockHabits struct {
	habits  []*types.Habit
	listErr error
	getErr  error
}

func (m *mockHabits) ListActiveWithTrigger(_ context.Context) ([]*types.Habit, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.habits, nil
}

func (m *mockHabits) ListActiveByOwner(_ context.Context, owner types.Owner) ([]*types.Habit, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*types.Habit
	for _, h := range m.habits {
		if h.Owner == owner {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *mockHabits) GetByID(_ context.Context, owner types.Owner, habitID string) (*types.Habit, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, h := range m.habits {
		if h.Owner == owner && h.ID == habitID {
			return h, nil
		}
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundHabit, "habit not found", nil)
}

// mockActivities reports per-habit completion fixtures.
type mockActivities struct {
	completedToday map[string]bool        // habit id -> completed within any queried range
	weekCounts     map[string]int         // habit id -> distinct completion days in the week
	dates          map[string][]time.Time // habit id -> completion dates, newest first
	tsDates        map[string][]time.Time // habit id -> timestamp-derived dates
	workloads      map[string]float64     // habit id -> summed workload in the week
	err            error
}

func (m *mockActivities) HasCompletionBetween(_ context.Context, _ types.Owner, habitID string, _, _ time.Time) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.completedToday[habitID], nil
}

func (m *mockActivities) WeekCompletionCounts(_ context.Context, _ types.Owner, _, _ time.Time) (map[string]int, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.weekCounts, nil
}

func (m *mockActivities) CompletionDates(_ context.Context, _ types.Owner, habitID string, _ int) ([]time.Time, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.dates[habitID], nil
}

func (m *mockActivities) CompletionDatesByTimestamp(_ context.Context, _ types.Owner, habitID string, _ int) ([]time.Time, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.tsDates[habitID], nil
}

func (m *mockActivities) WorkloadTotal(_ context.Context, _ types.Owner, habitID string, _, _ time.Time) (float64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.workloads[habitID], nil
}

// upsertCall records one ledger write.
type upsertCall struct {
	owner   types.Owner
	habitID string
	date    time.Time
	patch   types.FollowUpStatusPatch
}

// mockLedger keeps an in-memory status map keyed by owner+habit (dates are
// ignored; each test exercises a single day).
type mockLedger struct {
	statuses   map[statusKey]*types.FollowUpStatus
	candidates []*types.FollowUpStatus
	due        []*types.FollowUpStatus

	upserts   []upsertCall
	getErr    error
	upsertErr error
}

func (m *mockLedger) Get(_ context.Context, owner types.Owner, habitID string, _ time.Time) (*types.FollowUpStatus, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.statuses[keyFor(owner, habitID)], nil
}

func (m *mockLedger) Upsert(_ context.Context, owner types.Owner, habitID string, date time.Time, patch types.FollowUpStatusPatch) (*types.FollowUpStatus, error) {
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	m.upserts = append(m.upserts, upsertCall{owner: owner, habitID: habitID, date: date, patch: patch})

	if m.statuses == nil {
		m.statuses = make(map[statusKey]*types.FollowUpStatus)
	}
	key := keyFor(owner, habitID)
	status := m.statuses[key]
	if status == nil {
		status = &types.FollowUpStatus{Owner: owner, HabitID: habitID, Date: date}
		m.statuses[key] = status
	}
	if patch.ReminderSentAt != nil {
		status.ReminderSentAt = patch.ReminderSentAt
	}
	if patch.FollowUpSentAt != nil {
		status.FollowUpSentAt = patch.FollowUpSentAt
	}
	if patch.Skipped != nil {
		status.Skipped = *patch.Skipped
	}
	if patch.ClearRemindLater {
		status.RemindLaterAt = nil
	} else if patch.RemindLaterAt != nil {
		status.RemindLaterAt = patch.RemindLaterAt
	}
	return status, nil
}

func (m *mockLedger) FollowUpCandidates(_ context.Context, _ time.Time) ([]*types.FollowUpStatus, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.candidates, nil
}

func (m *mockLedger) RemindLaterDue(_ context.Context, _ time.Time) ([]*types.FollowUpStatus, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.due, nil
}

// mockPrefs resolves preferences by owner id; absent owners behave like
// owners who never saved preferences.
type mockPrefs struct {
	prefs map[string]*types.NotificationPreferences
	err   error
}

func (m *mockPrefs) GetByOwner(_ context.Context, owner types.Owner) (*types.NotificationPreferences, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.prefs[owner.ID], nil
}

// mockConns resolves connections by owner id and serves the report sweep's
// full listing.
type mockConns struct {
	conns map[string]*types.Connection
	err   error
}

func (m *mockConns) GetValidByOwner(_ context.Context, owner types.Owner) (*types.Connection, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.conns[owner.ID], nil
}

func (m *mockConns) ListValid(_ context.Context) ([]*types.Connection, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []*types.Connection
	for _, c := range m.conns {
		out = append(out, c)
	}
	return out, nil
}

// mockMessenger records every outbound delivery.
type mockMessenger struct {
	reminders []string // habit ids
	followUps []string
	reports   []*types.WeeklyReportSnapshot

	reminderErr error
	followUpErr error
	reportErr   error
}

func (m *mockMessenger) SendReminder(_ context.Context, _ *types.Connection, habit *types.Habit) error {
	if m.reminderErr != nil {
		return m.reminderErr
	}
	m.reminders = append(m.reminders, habit.ID)
	return nil
}

func (m *mockMessenger) SendFollowUp(_ context.Context, _ *types.Connection, habit *types.Habit) error {
	if m.followUpErr != nil {
		return m.followUpErr
	}
	m.followUps = append(m.followUps, habit.ID)
	return nil
}

func (m *mockMessenger) SendWeeklyReport(_ context.Context, _ *types.Connection, snapshot *types.WeeklyReportSnapshot) error {
	if m.reportErr != nil {
		return m.reportErr
	}
	m.reports = append(m.reports, snapshot)
	return nil
}

// mockInApp records fallback notifications.
type mockInApp struct {
	notified []string // habit ids
	err      error
}

func (m *mockInApp) Notify(_ context.Context, _ types.Owner, habit *types.Habit, _ types.NotificationKind) error {
	if m.err != nil {
		return m.err
	}
	m.notified = append(m.notified, habit.ID)
	return nil
}

// --- Fixture helpers ---

func testOwner() types.Owner {
	return types.Owner{Type: types.OwnerTypeUser, ID: "user-1"}
}

func testHabit(id, triggerTime string) *types.Habit {
	return &types.Habit{
		ID:          id,
		Owner:       testOwner(),
		Name:        "habit " + id,
		Active:      true,
		Kind:        types.HabitKindDo,
		TriggerTime: triggerTime,
	}
}

func utcPrefs(owner types.Owner) *types.NotificationPreferences {
	return &types.NotificationPreferences{
		Owner:                owner,
		NotificationsEnabled: true,
		Timezone:             "UTC",
	}
}

func testConn(owner types.Owner) *types.Connection {
	return &types.Connection{Owner: owner, ExternalUserID: "U1", Valid: true}
}

func timePtr(t time.Time) *time.Time { return &t }
