package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"habitpulse/internal/types"
)

// DefaultReportWindow is how far past the configured report time an owner
// remains eligible within a single sweep invocation.
const DefaultReportWindow = 15 * time.Minute

// streakLookback caps the completion history fetched per habit when deriving
// the week's best streak.
const streakLookback = 366

// needsAttentionMax caps the needs-attention list in a report.
const needsAttentionMax = 5

// needsAttentionThreshold is the completion count below which a habit lands
// in the needs-attention list.
const needsAttentionThreshold = 4

// WeeklyReportSweep builds and delivers per-owner weekly summaries. It is
// connection-driven rather than habit-driven: the candidate set is every
// owner with a valid messaging connection, filtered by preference and by
// the owner-local report schedule.
type WeeklyReportSweep struct {
	habits       ReportHabitSource
	activities   ReportActivitySource
	prefs        PreferenceSource
	conns        ReportConnectionSource
	messenger    Messenger
	clock        types.Clock
	reportWindow time.Duration
	concurrency  int
	logger       *slog.Logger
}

// WeeklyReportSweepConfig holds the dependencies for creating a WeeklyReportSweep.
type WeeklyReportSweepConfig struct {
	Habits       ReportHabitSource
	Activities   ReportActivitySource
	Prefs        PreferenceSource
	Conns        ReportConnectionSource
	Messenger    Messenger
	Clock        types.Clock
	ReportWindow time.Duration
	Concurrency  int
	Logger       *slog.Logger
}

// NewWeeklyReportSweep creates a WeeklyReportSweep with the given configuration.
func NewWeeklyReportSweep(cfg WeeklyReportSweepConfig) *WeeklyReportSweep {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	window := cfg.ReportWindow
	if window <= 0 {
		window = DefaultReportWindow
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultSweepConcurrency
	}
	return &WeeklyReportSweep{
		habits:       cfg.Habits,
		activities:   cfg.Activities,
		prefs:        cfg.Prefs,
		conns:        cfg.Conns,
		messenger:    cfg.Messenger,
		clock:        clock,
		reportWindow: window,
		concurrency:  concurrency,
		logger:       logger,
	}
}

// Run delivers every report due in the current window. There is no persisted
// per-week sent marker; duplicate suppression relies entirely on the sweep
// cadence relative to the tolerance window.
func (s *WeeklyReportSweep) Run(ctx context.Context) (types.SweepResult, error) {
	start := time.Now()
	now := s.clock.Now()

	conns, err := s.conns.ListValid(ctx)
	if err != nil {
		return types.SweepResult{ElapsedMs: time.Since(start).Milliseconds()},
			fmt.Errorf("listing connections: %w", err)
	}

	var sent, failed atomic.Int64

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, conn := range conns {
		conn := conn
		g.Go(func() error {
			delivered, err := s.processOwner(gCtx, conn, now)
			if err != nil {
				failed.Add(1)
				s.logger.ErrorContext(gCtx, "weekly report failed",
					"owner_id", conn.Owner.ID,
					"owner_type", conn.Owner.Type,
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

	s.logger.InfoContext(ctx, "weekly report sweep complete",
		"connections", len(conns),
		"sent", result.SentCount,
		"errors", result.ErrorCount,
		"elapsed_ms", result.ElapsedMs,
	)

	return result, nil
}

func (s *WeeklyReportSweep) processOwner(ctx context.Context, conn *types.Connection, now time.Time) (bool, error) {
	prefs, err := resolvePreferences(ctx, s.prefs, conn.Owner)
	if err != nil {
		return false, fmt.Errorf("resolving preferences: %w", err)
	}
	if !prefs.WeeklyReportEnabled {
		return false, nil
	}

	loc := OwnerLocation(prefs.Timezone)
	if !reportDue(prefs, now, loc, s.reportWindow) {
		return false, nil
	}

	snapshot, err := s.buildSnapshot(ctx, conn.Owner, now, loc)
	if err != nil {
		return false, err
	}
	if snapshot == nil {
		// Nothing tracked this week; suppress the empty report.
		return false, nil
	}

	if err := s.messenger.SendWeeklyReport(ctx, conn, snapshot); err != nil {
		return false, fmt.Errorf("delivering weekly report: %w", err)
	}
	return true, nil
}

// reportDue reports whether now falls within the tolerance window on either
// side of the owner's configured weekday and time, all in owner-local time.
func reportDue(prefs *types.NotificationPreferences, now time.Time, loc *time.Location, window time.Duration) bool {
	local := now.In(loc)
	if int(local.Weekday()) != prefs.WeeklyReportDay {
		return false
	}
	hour, minute, _, err := ParseTimeOfDay(prefs.WeeklyReportTime)
	if err != nil {
		return false
	}
	dueMinutes := hour*60 + minute
	nowMinutes := local.Hour()*60 + local.Minute()
	delta := nowMinutes - dueMinutes
	if delta < 0 {
		delta = -delta
	}
	return delta <= int(window.Minutes())
}

// buildSnapshot computes the trailing-seven-day aggregate ending today
// (owner-local). Returns nil when the owner has no active habits.
func (s *WeeklyReportSweep) buildSnapshot(ctx context.Context, owner types.Owner, now time.Time, loc *time.Location) (*types.WeeklyReportSnapshot, error) {
	today := LocalDate(now, loc)
	weekStart := today.AddDate(0, 0, -6)

	habits, err := s.habits.ListActiveByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("listing habits: %w", err)
	}
	if len(habits) == 0 {
		return nil, nil
	}

	counts, err := s.activities.WeekCompletionCounts(ctx, owner, weekStart, today)
	if err != nil {
		return nil, fmt.Errorf("counting completions: %w", err)
	}

	snapshot := &types.WeeklyReportSnapshot{
		Owner:          owner,
		WeekStart:      weekStart,
		WeekEnd:        today,
		TotalHabitDays: len(habits) * 7,
	}

	var needsAttention []types.HabitWeekSummary
	for _, habit := range habits {
		count := counts[habit.ID]
		if count > 7 {
			count = 7
		}
		snapshot.CompletedHabitDays += count

		needs := count < needsAttentionThreshold
		var workloadDone float64
		var workloadTarget *float64
		if habit.WorkloadPerIncrement > 0 {
			workloadDone, err = s.activities.WorkloadTotal(ctx, owner, habit.ID, weekStart, today)
			if err != nil {
				return nil, fmt.Errorf("summing workload: %w", err)
			}
			workloadTarget = habit.WorkloadTarget
			// A workload habit behind its weekly total needs attention even
			// when it has enough completion days.
			if workloadTarget != nil && workloadDone < *workloadTarget*7 {
				needs = true
			}
		}
		if needs {
			needsAttention = append(needsAttention, types.HabitWeekSummary{
				HabitID:        habit.ID,
				Name:           habit.Name,
				Completions:    count,
				WorkloadDone:   workloadDone,
				WorkloadTarget: workloadTarget,
			})
		}

		dates, err := s.activities.CompletionDates(ctx, owner, habit.ID, streakLookback)
		if err != nil {
			return nil, fmt.Errorf("loading completion dates: %w", err)
		}
		if len(dates) == 0 {
			// Legacy activity rows carry no date column; fall back to the
			// timestamp-derived day set before giving up on a streak.
			dates, err = s.activities.CompletionDatesByTimestamp(ctx, owner, habit.ID, streakLookback)
			if err != nil {
				return nil, fmt.Errorf("loading completion days: %w", err)
			}
		}
		if streak := CurrentStreak(dates, today); streak > snapshot.BestStreak {
			snapshot.BestStreak = streak
			snapshot.BestStreakHabit = habit.Name
		}
	}

	if snapshot.TotalHabitDays > 0 {
		snapshot.CompletionRate = float64(snapshot.CompletedHabitDays) / float64(snapshot.TotalHabitDays)
	}

	// Worst habits first; ties keep the owner's habit order.
	sort.SliceStable(needsAttention, func(i, j int) bool {
		return needsAttention[i].Completions < needsAttention[j].Completions
	})
	if len(needsAttention) > needsAttentionMax {
		needsAttention = needsAttention[:needsAttentionMax]
	}
	snapshot.NeedsAttention = needsAttention

	return snapshot, nil
}
