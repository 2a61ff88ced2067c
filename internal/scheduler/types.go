package scheduler

import (
	"context"
	"time"

	"habitpulse/internal/types"
)

// Messenger is the outbound delivery surface the sweeps talk to. The
// production implementation is the resilient dispatcher in internal/notify
// (retry policy + circuit breaker around the messaging provider); message
// formatting detail lives behind it, not in the sweeps.
type Messenger interface {
	// SendReminder delivers the plain habit reminder.
	SendReminder(ctx context.Context, conn *types.Connection, habit *types.Habit) error

	// SendFollowUp delivers the escalation message for an unacknowledged
	// reminder.
	SendFollowUp(ctx context.Context, conn *types.Connection, habit *types.Habit) error

	// SendWeeklyReport delivers the aggregate report.
	SendWeeklyReport(ctx context.Context, conn *types.Connection, snapshot *types.WeeklyReportSnapshot) error
}

// InAppNotifier is the fallback used when an owner has no valid messaging
// connection. The production implementation enqueues to the in-app
// notification queue; tests use a no-op.
type InAppNotifier interface {
	Notify(ctx context.Context, owner types.Owner, habit *types.Habit, kind types.NotificationKind) error
}

// NoopInAppNotifier discards fallback notifications. Used where no queue is
// configured.
type NoopInAppNotifier struct{}

// Notify implements InAppNotifier as a no-op.
func (NoopInAppNotifier) Notify(context.Context, types.Owner, *types.Habit, types.NotificationKind) error {
	return nil
}

// LedgerStore is the dedup ledger contract shared by the sweeps and the
// user-action service. Upsert must be atomic per key: concurrent sweeps on
// overlapping habits rely on store-level conflict resolution, never on
// locking in this package.
type LedgerStore interface {
	Get(ctx context.Context, owner types.Owner, habitID string, date time.Time) (*types.FollowUpStatus, error)
	Upsert(ctx context.Context, owner types.Owner, habitID string, date time.Time, patch types.FollowUpStatusPatch) (*types.FollowUpStatus, error)
	FollowUpCandidates(ctx context.Context, date time.Time) ([]*types.FollowUpStatus, error)
	RemindLaterDue(ctx context.Context, now time.Time) ([]*types.FollowUpStatus, error)
}

// HabitSource is the habit read access the sweeps need.
type HabitSource interface {
	ListActiveWithTrigger(ctx context.Context) ([]*types.Habit, error)
	GetByID(ctx context.Context, owner types.Owner, habitID string) (*types.Habit, error)
}

// ActivitySource is the activity read access the sweeps need.
type ActivitySource interface {
	HasCompletionBetween(ctx context.Context, owner types.Owner, habitID string, from, to time.Time) (bool, error)
}

// PreferenceSource resolves per-owner notification preferences. A nil result
// means the owner never saved preferences; see defaultPreferences.
type PreferenceSource interface {
	GetByOwner(ctx context.Context, owner types.Owner) (*types.NotificationPreferences, error)
}

// ConnectionSource resolves messaging connections.
type ConnectionSource interface {
	GetValidByOwner(ctx context.Context, owner types.Owner) (*types.Connection, error)
}

// ReportConnectionSource enumerates every owner reachable for the weekly
// report. The report sweep is connection-driven: owners without a valid
// connection are never considered.
type ReportConnectionSource interface {
	ListValid(ctx context.Context) ([]*types.Connection, error)
}

// ReportHabitSource is the habit read access the weekly report needs.
type ReportHabitSource interface {
	ListActiveByOwner(ctx context.Context, owner types.Owner) ([]*types.Habit, error)
}

// ReportActivitySource is the activity read access the weekly report needs.
type ReportActivitySource interface {
	// WeekCompletionCounts returns per-habit completion counts within the
	// window, keyed by habit id.
	WeekCompletionCounts(ctx context.Context, owner types.Owner, from, to time.Time) (map[string]int, error)

	// CompletionDates returns the habit's distinct completion dates, newest
	// first, up to limit.
	CompletionDates(ctx context.Context, owner types.Owner, habitID string, limit int) ([]time.Time, error)

	// CompletionDatesByTimestamp derives the same date set from activity
	// creation timestamps, for legacy rows without a date column value.
	CompletionDatesByTimestamp(ctx context.Context, owner types.Owner, habitID string, limit int) ([]time.Time, error)

	// WorkloadTotal sums activity amounts for one habit within the window.
	WorkloadTotal(ctx context.Context, owner types.Owner, habitID string, from, to time.Time) (float64, error)
}

// defaultPreferences is the behavior of an owner who never opened the
// settings screen: notifications on, weekly report off.
func defaultPreferences(owner types.Owner) *types.NotificationPreferences {
	return &types.NotificationPreferences{
		Owner:                owner,
		NotificationsEnabled: true,
		WeeklyReportEnabled:  false,
	}
}

// resolvePreferences fetches the owner's preferences, substituting defaults
// for absent rows.
func resolvePreferences(ctx context.Context, src PreferenceSource, owner types.Owner) (*types.NotificationPreferences, error) {
	prefs, err := src.GetByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	if prefs == nil {
		return defaultPreferences(owner), nil
	}
	return prefs, nil
}

// statusKey identifies one ledger row within a single sweep invocation.
type statusKey struct {
	ownerType types.OwnerType
	ownerID   string
	habitID   string
}

func keyFor(owner types.Owner, habitID string) statusKey {
	return statusKey{ownerType: owner.Type, ownerID: owner.ID, habitID: habitID}
}
