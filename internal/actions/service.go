// Package actions implements the synchronous user-triggered operations:
// skipping today's habit and snoozing its reminder. Unlike the sweeps these
// run on the inbound request path, so failures come back to the caller as
// classified, localized messages.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"habitpulse/internal/notify"
	"habitpulse/internal/scheduler"
	"habitpulse/internal/types"
)

// DefaultSnoozeMinutes is the deferral applied when the caller gives none.
const DefaultSnoozeMinutes = 60

// maxSnoozeMinutes caps a deferral at one day; a longer snooze is
// indistinguishable from disabling the habit and is rejected instead.
const maxSnoozeMinutes = 24 * 60

// LedgerStore is the dedup-ledger write access the actions need.
type LedgerStore interface {
	Upsert(ctx context.Context, owner types.Owner, habitID string, date time.Time, patch types.FollowUpStatusPatch) (*types.FollowUpStatus, error)
}

// HabitSource verifies that the acted-on habit exists.
type HabitSource interface {
	GetByID(ctx context.Context, owner types.Owner, habitID string) (*types.Habit, error)
}

// PreferenceSource resolves the owner's timezone for day keying.
type PreferenceSource interface {
	GetByOwner(ctx context.Context, owner types.Owner) (*types.NotificationPreferences, error)
}

// ActionError carries both the underlying failure and its user-facing
// rendering. The inbound layer shows Classification to the user and logs Err.
type ActionError struct {
	Classification notify.Classification
	Err            error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Classification.Category, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// Service executes skip and snooze against the ledger.
type Service struct {
	ledger     LedgerStore
	habits     HabitSource
	prefs      PreferenceSource
	classifier *notify.ErrorClassifier
	clock      types.Clock
	logger     *slog.Logger
}

// ServiceConfig holds the dependencies for creating a Service.
type ServiceConfig struct {
	Ledger     LedgerStore
	Habits     HabitSource
	Prefs      PreferenceSource
	Classifier *notify.ErrorClassifier
	Clock      types.Clock
	Logger     *slog.Logger
}

// NewService creates a Service with the given configuration.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = notify.NewErrorClassifier(nil, logger)
	}
	return &Service{
		ledger:     cfg.Ledger,
		habits:     cfg.Habits,
		prefs:      cfg.Prefs,
		classifier: classifier,
		clock:      clock,
		logger:     logger,
	}
}

// Skip marks today's habit as skipped. This closes the follow-up path for
// the day; the plain reminder path is unaffected.
func (s *Service) Skip(ctx context.Context, owner types.Owner, habitID string) (*types.FollowUpStatus, error) {
	now := s.clock.Now()

	today, err := s.ownerDay(ctx, owner, habitID, now)
	if err != nil {
		return nil, s.classified(ctx, err)
	}

	skipped := true
	status, err := s.ledger.Upsert(ctx, owner, habitID, today, types.FollowUpStatusPatch{
		Skipped: &skipped,
	})
	if err != nil {
		return nil, s.classified(ctx, fmt.Errorf("recording skip: %w", err))
	}

	s.logger.InfoContext(ctx, "habit skipped for today",
		"owner_id", owner.ID,
		"habit_id", habitID,
		"date", today.Format(time.DateOnly),
	)
	return status, nil
}

// Snooze defers the habit's reminder by delayMinutes (default sixty). The
// deferred reminder fires from the remind-later sweep, independent of the
// habit's configured trigger time.
func (s *Service) Snooze(ctx context.Context, owner types.Owner, habitID string, delayMinutes int) (*types.FollowUpStatus, error) {
	if delayMinutes == 0 {
		delayMinutes = DefaultSnoozeMinutes
	}
	if delayMinutes < 0 || delayMinutes > maxSnoozeMinutes {
		return nil, s.classified(ctx, types.NewAppError(types.ErrCodeValidationDelay,
			fmt.Sprintf("snooze delay must be between 1 and %d minutes", maxSnoozeMinutes), nil))
	}

	now := s.clock.Now()

	today, err := s.ownerDay(ctx, owner, habitID, now)
	if err != nil {
		return nil, s.classified(ctx, err)
	}

	remindAt := now.Add(time.Duration(delayMinutes) * time.Minute)
	status, err := s.ledger.Upsert(ctx, owner, habitID, today, types.FollowUpStatusPatch{
		RemindLaterAt: &remindAt,
	})
	if err != nil {
		return nil, s.classified(ctx, fmt.Errorf("recording snooze: %w", err))
	}

	s.logger.InfoContext(ctx, "habit reminder snoozed",
		"owner_id", owner.ID,
		"habit_id", habitID,
		"remind_at", remindAt,
	)
	return status, nil
}

// ownerDay verifies the habit exists and keys the action to the owner's
// local calendar date.
func (s *Service) ownerDay(ctx context.Context, owner types.Owner, habitID string, now time.Time) (time.Time, error) {
	if _, err := s.habits.GetByID(ctx, owner, habitID); err != nil {
		return time.Time{}, err
	}

	tz := ""
	prefs, err := s.prefs.GetByOwner(ctx, owner)
	if err != nil {
		return time.Time{}, fmt.Errorf("resolving preferences: %w", err)
	}
	if prefs != nil {
		tz = prefs.Timezone
	}

	return scheduler.LocalDate(now, scheduler.OwnerLocation(tz)), nil
}

// classified wraps err with its user-facing rendering. AppError validation
// and not-found codes pass through untouched so the inbound layer can map
// them to precise statuses; everything else gets the category treatment.
func (s *Service) classified(ctx context.Context, err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeNotFoundHabit, types.ErrCodeValidationDelay:
			return appErr
		}
	}
	return &ActionError{
		Classification: s.classifier.Classify(ctx, err),
		Err:            err,
	}
}
