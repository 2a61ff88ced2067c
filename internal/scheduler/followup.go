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

// DefaultFollowUpAfter is the unacknowledged-reminder age that makes a habit
// eligible for escalation.
const DefaultFollowUpAfter = 2 * time.Hour

// FollowUpSweep escalates habits whose trigger fired long enough ago without
// a completion. It scans the same habit population as the reminder sweep.
//
// Escalation is driven purely by elapsed time since the trigger; the sweep
// does not re-check whether the plain reminder was ever actually delivered.
type FollowUpSweep struct {
	habits        HabitSource
	activities    ActivitySource
	ledger        LedgerStore
	prefs         PreferenceSource
	conns         ConnectionSource
	messenger     Messenger
	inApp         InAppNotifier
	clock         types.Clock
	followUpAfter time.Duration
	concurrency   int
	logger        *slog.Logger
}

// FollowUpSweepConfig holds the dependencies for creating a FollowUpSweep.
type FollowUpSweepConfig struct {
	Habits        HabitSource
	Activities    ActivitySource
	Ledger        LedgerStore
	Prefs         PreferenceSource
	Conns         ConnectionSource
	Messenger     Messenger
	InApp         InAppNotifier
	Clock         types.Clock
	FollowUpAfter time.Duration
	Concurrency   int
	Logger        *slog.Logger
}

// NewFollowUpSweep creates a FollowUpSweep with the given configuration.
func NewFollowUpSweep(cfg FollowUpSweepConfig) *FollowUpSweep {
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
	after := cfg.FollowUpAfter
	if after <= 0 {
		after = DefaultFollowUpAfter
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultSweepConcurrency
	}
	return &FollowUpSweep{
		habits:        cfg.Habits,
		activities:    cfg.Activities,
		ledger:        cfg.Ledger,
		prefs:         cfg.Prefs,
		conns:         cfg.Conns,
		messenger:     cfg.Messenger,
		inApp:         inApp,
		clock:         clock,
		followUpAfter: after,
		concurrency:   concurrency,
		logger:        logger,
	}
}

// Run executes one follow-up sweep invocation. Open ledger rows for today
// are prefetched in a single query; only habits without an open row need an
// individual ledger read to distinguish "no row yet" from "already closed".
func (s *FollowUpSweep) Run(ctx context.Context) (types.SweepResult, error) {
	start := time.Now()
	now := s.clock.Now()

	habits, err := s.habits.ListActiveWithTrigger(ctx)
	if err != nil {
		return types.SweepResult{ElapsedMs: time.Since(start).Milliseconds()},
			fmt.Errorf("listing triggered habits: %w", err)
	}

	// Prefetch today's still-open rows keyed for O(1) lookup. "Today" for
	// the candidate query uses the default zone; owners in other zones fall
	// back to the per-habit ledger read below.
	open := make(map[statusKey]*types.FollowUpStatus)
	candidates, err := s.ledger.FollowUpCandidates(ctx, LocalDate(now, DefaultZone))
	if err != nil {
		return types.SweepResult{ElapsedMs: time.Since(start).Milliseconds()},
			fmt.Errorf("listing follow-up candidates: %w", err)
	}
	for _, c := range candidates {
		open[keyFor(c.Owner, c.HabitID)] = c
	}

	var sent, failed atomic.Int64

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, habit := range habits {
		habit := habit
		g.Go(func() error {
			delivered, err := s.processHabit(gCtx, habit, now, open)
			if err != nil {
				failed.Add(1)
				s.logger.ErrorContext(gCtx, "follow-up processing failed",
					"habit_id", habit.ID,
					"owner_id", habit.Owner.ID,
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

	s.logger.InfoContext(ctx, "follow-up sweep complete",
		"habits_scanned", len(habits),
		"sent", result.SentCount,
		"errors", result.ErrorCount,
		"elapsed_ms", result.ElapsedMs,
	)

	return result, nil
}

func (s *FollowUpSweep) processHabit(ctx context.Context, habit *types.Habit, now time.Time, open map[statusKey]*types.FollowUpStatus) (bool, error) {
	prefs, err := resolvePreferences(ctx, s.prefs, habit.Owner)
	if err != nil {
		return false, fmt.Errorf("resolving preferences: %w", err)
	}

	loc := OwnerLocation(prefs.Timezone)
	today := LocalDate(now, loc)

	// Ledger gate: skipped or already escalated closes the day.
	// The prefetch ran on the default-zone date; for an owner whose local
	// calendar is ahead, a still-open previous-day row would shadow today's
	// closed row. A date mismatch falls through to the per-habit read.
	status, prefetched := open[keyFor(habit.Owner, habit.ID)]
	if prefetched && !status.Date.Equal(today) {
		status, prefetched = nil, false
	}
	if !prefetched {
		status, err = s.ledger.Get(ctx, habit.Owner, habit.ID, today)
		if err != nil {
			return false, fmt.Errorf("reading ledger: %w", err)
		}
	}
	if followUpClosed(status) {
		return false, nil
	}

	// Completed habits need no escalation.
	from, to := DayBoundsUTC(now, loc)
	done, err := s.activities.HasCompletionBetween(ctx, habit.Owner, habit.ID, from, to)
	if err != nil {
		return false, fmt.Errorf("checking completion: %w", err)
	}
	if done {
		return false, nil
	}

	// Time gate: the trigger must be at least followUpAfter in the past.
	trigger, ok := EvaluateTrigger(habit.TriggerTime, now, loc)
	if !ok || !trigger.Fired || trigger.HoursSince < s.followUpAfter.Hours() {
		return false, nil
	}

	if !prefs.NotificationsEnabled {
		return false, nil
	}
	conn, err := s.conns.GetValidByOwner(ctx, habit.Owner)
	if err != nil {
		return false, fmt.Errorf("resolving connection: %w", err)
	}
	if conn == nil {
		if err := s.inApp.Notify(ctx, habit.Owner, habit, types.NotificationFollowUp); err != nil {
			s.logger.WarnContext(ctx, "in-app fallback failed",
				"habit_id", habit.ID,
				"owner_id", habit.Owner.ID,
				"error", err,
			)
		}
		return false, nil
	}

	if err := s.messenger.SendFollowUp(ctx, conn, habit); err != nil {
		return false, fmt.Errorf("delivering follow-up: %w", err)
	}

	sentAt := now
	if _, err := s.ledger.Upsert(ctx, habit.Owner, habit.ID, today, types.FollowUpStatusPatch{
		FollowUpSentAt: &sentAt,
	}); err != nil {
		return true, fmt.Errorf("recording follow-up sent: %w", err)
	}

	return true, nil
}
