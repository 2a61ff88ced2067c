package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"habitpulse/internal/types"
)

// HabitRepository provides read access to the habits table. Habits are owned
// and mutated by the surrounding application; the engine only reads them.
type HabitRepository struct {
	db DBTX
}

// NewHabitRepository creates a new HabitRepository backed by the given
// database connection (pool or transaction).
func NewHabitRepository(db DBTX) *HabitRepository {
	return &HabitRepository{db: db}
}

const habitColumns = `id, owner_type, owner_id, name, active, kind,
	trigger_time, trigger_message, workload_per_increment, workload_target,
	legacy_target, goal_id, created_at, updated_at`

// ListActiveWithTrigger returns every active habit that has a configured
// trigger time. This is the habit population the reminder and follow-up
// sweeps iterate.
func (r *HabitRepository) ListActiveWithTrigger(ctx context.Context) ([]*types.Habit, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+habitColumns+`
		 FROM habits
		 WHERE active = TRUE AND trigger_time IS NOT NULL
		 ORDER BY owner_type, owner_id, id`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list triggered habits", err)
	}
	defer rows.Close()

	var habits []*types.Habit
	for rows.Next() {
		h, scanErr := scanHabit(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan habit row", scanErr)
		}
		habits = append(habits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating habit rows", err)
	}

	return habits, nil
}

// ListActiveByOwner returns the owner's active habits. Used by the weekly
// report to size the possible habit-day total.
func (r *HabitRepository) ListActiveByOwner(ctx context.Context, owner types.Owner) ([]*types.Habit, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+habitColumns+`
		 FROM habits
		 WHERE owner_type = $1 AND owner_id = $2 AND active = TRUE
		 ORDER BY id`,
		string(owner.Type), owner.ID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list owner habits", err)
	}
	defer rows.Close()

	var habits []*types.Habit
	for rows.Next() {
		h, scanErr := scanHabit(rows)
		if scanErr != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan habit row", scanErr)
		}
		habits = append(habits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating habit rows", err)
	}

	return habits, nil
}

// GetByID fetches a single habit scoped to its owner. Returns a
// not-found AppError when no row matches.
func (r *HabitRepository) GetByID(ctx context.Context, owner types.Owner, habitID string) (*types.Habit, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+habitColumns+`
		 FROM habits
		 WHERE owner_type = $1 AND owner_id = $2 AND id = $3`,
		string(owner.Type), owner.ID, habitID,
	)

	h, err := scanHabit(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundHabit, "habit not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch habit", err)
	}
	return h, nil
}

// rowScanner is the subset of pgx.Row/pgx.Rows needed by the scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanHabit(row rowScanner) (*types.Habit, error) {
	var (
		h              types.Habit
		ownerType      string
		triggerTime    *string
		triggerMessage *string
		goalID         *string
		createdAt      time.Time
		updatedAt      time.Time
	)

	err := row.Scan(
		&h.ID,
		&ownerType,
		&h.Owner.ID,
		&h.Name,
		&h.Active,
		&h.Kind,
		&triggerTime,
		&triggerMessage,
		&h.WorkloadPerIncrement,
		&h.WorkloadTarget,
		&h.LegacyTarget,
		&goalID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	h.Owner.Type = types.OwnerType(ownerType)
	if triggerTime != nil {
		h.TriggerTime = *triggerTime
	}
	if triggerMessage != nil {
		h.TriggerMessage = *triggerMessage
	}
	h.GoalID = goalID
	h.CreatedAt = createdAt
	h.UpdatedAt = updatedAt

	return &h, nil
}
