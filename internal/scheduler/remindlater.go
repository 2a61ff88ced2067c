package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"habitpulse/internal/types"
)

// RemindLaterSweep redelivers reminders that users explicitly deferred.
// It is driven by the ledger's remind_later_at column rather than by habit
// trigger times, so a deferred reminder fires at the requested moment even
// if the original trigger window is long past.
type RemindLaterSweep struct {
	habits      HabitSource
	activities  ActivitySource
	ledger      LedgerStore
	prefs       PreferenceSource
	conns       ConnectionSource
	messenger   Messenger
	clock       types.Clock
	concurrency int
	logger      *slog.Logger
}

// RemindLaterSweepConfig holds the dependencies for creating a RemindLaterSweep.
type RemindLaterSweepConfig struct {
	Habits      HabitSource
	Activities  ActivitySource
	Ledger      LedgerStore
	Prefs       PreferenceSource
	Conns       ConnectionSource
	Messenger   Messenger
	Clock       types.Clock
	Concurrency int
	Logger      *slog.Logger
}

// NewRemindLaterSweep creates a RemindLaterSweep with the given configuration.
func NewRemindLaterSweep(cfg RemindLaterSweepConfig) *RemindLaterSweep {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultSweepConcurrency
	}
	return &RemindLaterSweep{
		habits:      cfg.Habits,
		activities:  cfg.Activities,
		ledger:      cfg.Ledger,
		prefs:       cfg.Prefs,
		conns:       cfg.Conns,
		messenger:   cfg.Messenger,
		clock:       clock,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run delivers every due deferred reminder. A deferral is consumed (the
// remind_later_at marker cleared) only after successful delivery, so failed
// deliveries are retried on the next invocation.
func (s *RemindLaterSweep) Run(ctx context.Context) (types.SweepResult, error) {
	start := time.Now()
	now := s.clock.Now()

	due, err := s.ledger.RemindLaterDue(ctx, now)
	if err != nil {
		return types.SweepResult{ElapsedMs: time.Since(start).Milliseconds()},
			fmt.Errorf("listing due deferrals: %w", err)
	}

	var sent, failed atomic.Int64

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, status := range due {
		status := status
		g.Go(func() error {
			delivered, err := s.processDeferral(gCtx, status, now)
			if err != nil {
				failed.Add(1)
				s.logger.ErrorContext(gCtx, "deferred reminder failed",
					"habit_id", status.HabitID,
					"owner_id", status.Owner.ID,
					"error", err,
				)
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

	s.logger.InfoContext(ctx, "remind-later sweep complete",
		"due", len(due),
		"sent", result.SentCount,
		"errors", result.ErrorCount,
		"elapsed_ms", result.ElapsedMs,
	)

	return result, nil
}

func (s *RemindLaterSweep) processDeferral(ctx context.Context, status *types.FollowUpStatus, now time.Time) (bool, error) {
	habit, err := s.habits.GetByID(ctx, status.Owner, status.HabitID)
	if err != nil {
		var appErr *types.AppError
		if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundHabit {
			// Habit deleted since the deferral was recorded; drop the marker.
			if _, err := s.ledger.Upsert(ctx, status.Owner, status.HabitID, status.Date, types.FollowUpStatusPatch{
				ClearRemindLater: true,
			}); err != nil {
				return false, fmt.Errorf("clearing orphaned deferral: %w", err)
			}
			return false, nil
		}
		return false, fmt.Errorf("loading habit: %w", err)
	}

	// Re-read the row: a skip or escalation recorded since the due query
	// supersedes the deferral.
	current, err := s.ledger.Get(ctx, status.Owner, status.HabitID, status.Date)
	if err != nil {
		return false, fmt.Errorf("re-reading ledger: %w", err)
	}
	if current != nil {
		status = current
	}
	if !deferredStillOpen(status) {
		return false, nil
	}

	prefs, err := resolvePreferences(ctx, s.prefs, status.Owner)
	if err != nil {
		return false, fmt.Errorf("resolving preferences: %w", err)
	}
	loc := OwnerLocation(prefs.Timezone)

	// Completed in the meantime: consume the deferral silently.
	from, to := DayBoundsUTC(now, loc)
	done, err := s.activities.HasCompletionBetween(ctx, status.Owner, status.HabitID, from, to)
	if err != nil {
		return false, fmt.Errorf("checking completion: %w", err)
	}
	if done {
		if _, err := s.ledger.Upsert(ctx, status.Owner, status.HabitID, status.Date, types.FollowUpStatusPatch{
			ClearRemindLater: true,
		}); err != nil {
			return false, fmt.Errorf("clearing satisfied deferral: %w", err)
		}
		return false, nil
	}

	if !prefs.NotificationsEnabled {
		return false, nil
	}
	conn, err := s.conns.GetValidByOwner(ctx, status.Owner)
	if err != nil {
		return false, fmt.Errorf("resolving connection: %w", err)
	}
	if conn == nil {
		// Leave the deferral in place; it will retry once a connection exists.
		return false, nil
	}

	if err := s.messenger.SendReminder(ctx, conn, habit); err != nil {
		return false, fmt.Errorf("delivering deferred reminder: %w", err)
	}

	// Clear only the deferral marker. reminder_sent_at is left alone so the
	// day's ledger still reflects whether the scheduled reminder went out.
	if _, err := s.ledger.Upsert(ctx, status.Owner, status.HabitID, status.Date, types.FollowUpStatusPatch{
		ClearRemindLater: true,
	}); err != nil {
		return true, fmt.Errorf("consuming deferral: %w", err)
	}

	return true, nil
}
