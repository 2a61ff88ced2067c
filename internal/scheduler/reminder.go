package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"habitpulse/internal/types"
)

// DefaultSweepConcurrency bounds the per-sweep worker pool when the
// configuration does not say otherwise.
const DefaultSweepConcurrency = 8

// ReminderSweep scans every active habit with a configured trigger time and
// delivers at most one plain reminder per habit per owner-local day.
//
// Failure handling is deliberately passive: a failed delivery sets no ledger
// flag, so the skip-if-already-sent check simply lets the habit be retried
// on the next five-minute invocation.
type ReminderSweep struct {
	habits      HabitSource
	activities  ActivitySource
	ledger      LedgerStore
	prefs       PreferenceSource
	conns       ConnectionSource
	messenger   Messenger
	inApp       InAppNotifier
	clock       types.Clock
	concurrency int
	logger      *slog.Logger
}

// ReminderSweepConfig holds the dependencies for creating a ReminderSweep.
type ReminderSweepConfig struct {
	Habits      HabitSource
	Activities  ActivitySource
	Ledger      LedgerStore
	Prefs       PreferenceSource
	Conns       ConnectionSource
	Messenger   Messenger
	InApp       InAppNotifier
	Clock       types.Clock
	Concurrency int
	Logger      *slog.Logger
}

// NewReminderSweep creates a ReminderSweep with the given configuration.
func NewReminderSweep(cfg ReminderSweepConfig) *ReminderSweep {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	inApp := cfg.InApp
	if inApp == nil {
		inApp = NoopInAppNotifier{}
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultSweepConcurrency
	}
	return &ReminderSweep{
		habits:      cfg.Habits,
		activities:  cfg.Activities,
		ledger:      cfg.Ledger,
		prefs:       cfg.Prefs,
		conns:       cfg.Conns,
		messenger:   cfg.Messenger,
		inApp:       inApp,
		clock:       clock,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run executes one reminder sweep invocation. It returns the count of
// reminders sent plus error/elapsed observability fields. One habit's
// failure never aborts the remaining habits; failures are counted and
// logged, not raised.
func (s *ReminderSweep) Run(ctx context.Context) (types.SweepResult, error) {
	start := time.Now()
	now := s.clock.Now()

	habits, err := s.habits.ListActiveWithTrigger(ctx)
	if err != nil {
		return types.SweepResult{ElapsedMs: time.Since(start).Milliseconds()},
			fmt.Errorf("listing triggered habits: %w", err)
	}

	var sent, failed atomic.Int64

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, habit := range habits {
		habit := habit
		g.Go(func() error {
			delivered, err := s.processHabit(gCtx, habit, now)
			if err != nil {
				failed.Add(1)
				s.logger.ErrorContext(gCtx, "reminder processing failed",
					"habit_id", habit.ID,
					"owner_id", habit.Owner.ID,
					"error", err,
				)
				// Isolation: the habit retries next period because no
				// ledger flag was set.
				return nil
			}
			if delivered {
				sent.Add(1)
			}
			return nil
		})
	}

	_ = g.Wait()

	result := types.SweepResult{
		SentCount:  int(sent.Load()),
		ErrorCount: int(failed.Load()),
		ElapsedMs:  time.Since(start).Milliseconds(),
	}

	s.logger.InfoContext(ctx, "reminder sweep complete",
		"habits_scanned", len(habits),
		"sent", result.SentCount,
		"errors", result.ErrorCount,
		"elapsed_ms", result.ElapsedMs,
	)

	return result, nil
}

// processHabit runs the eligibility chain for one habit and delivers on
// success. Returns whether a reminder was actually sent.
func (s *ReminderSweep) processHabit(ctx context.Context, habit *types.Habit, now time.Time) (bool, error) {
	prefs, err := resolvePreferences(ctx, s.prefs, habit.Owner)
	if err != nil {
		return false, fmt.Errorf("resolving preferences: %w", err)
	}

	loc := OwnerLocation(prefs.Timezone)
	today := LocalDate(now, loc)

	// 1. At most one reminder per habit per day.
	status, err := s.ledger.Get(ctx, habit.Owner, habit.ID, today)
	if err != nil {
		return false, fmt.Errorf("reading ledger: %w", err)
	}
	if reminderAlreadySent(status) {
		return false, nil
	}

	// 2. Already completed today (owner-local day, closed UTC range).
	from, to := DayBoundsUTC(now, loc)
	done, err := s.activities.HasCompletionBetween(ctx, habit.Owner, habit.ID, from, to)
	if err != nil {
		return false, fmt.Errorf("checking completion: %w", err)
	}
	if done {
		return false, nil
	}

	// 3. Trigger must have fired.
	trigger, ok := EvaluateTrigger(habit.TriggerTime, now, loc)
	if !ok || !trigger.Fired {
		return false, nil
	}

	// 4. Owner-level gates.
	if !prefs.NotificationsEnabled {
		return false, nil
	}
	conn, err := s.conns.GetValidByOwner(ctx, habit.Owner)
	if err != nil {
		return false, fmt.Errorf("resolving connection: %w", err)
	}
	if conn == nil {
		if err := s.inApp.Notify(ctx, habit.Owner, habit, types.NotificationReminder); err != nil {
			s.logger.WarnContext(ctx, "in-app fallback failed",
				"habit_id", habit.ID,
				"owner_id", habit.Owner.ID,
				"error", err,
			)
		}
		return false, nil
	}

	// 5. Deliver, then mark. A failed send leaves the ledger untouched.
	if err := s.messenger.SendReminder(ctx, conn, habit); err != nil {
		return false, fmt.Errorf("delivering reminder: %w", err)
	}

	sentAt := now
	if _, err := s.ledger.Upsert(ctx, habit.Owner, habit.ID, today, types.FollowUpStatusPatch{
		ReminderSentAt: &sentAt,
	}); err != nil {
		// The message went out but the flag write failed. Surface the
		// error; the next sweep may re-send, which is the accepted failure
		// mode of a ledger write loss.
		return true, fmt.Errorf("recording reminder sent: %w", err)
	}

	return true, nil
}
