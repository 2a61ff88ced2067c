package db

import (
	"context"
	"time"

	"habitpulse/internal/types"
)

// ActivityRepository provides read access to the append-only activities
// table. Completion rows feed the streak calculator; amounts are summed for
// workload totals.
type ActivityRepository struct {
	db DBTX
}

// NewActivityRepository creates a new ActivityRepository backed by the given
// database connection (pool or transaction).
func NewActivityRepository(db DBTX) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// HasCompletionBetween reports whether the habit has at least one
// completed activity whose creation instant falls inside the closed UTC
// range [from, to]. The range is the owner-local day mapped to UTC, never
// machine-local midnight.
func (r *ActivityRepository) HasCompletionBetween(ctx context.Context, owner types.Owner, habitID string, from, to time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM activities
			WHERE owner_type = $1 AND owner_id = $2 AND habit_id = $3
			  AND completed = TRUE
			  AND created_at BETWEEN $4 AND $5
		 )`,
		string(owner.Type), owner.ID, habitID, from, to,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check completion", err)
	}
	return exists, nil
}

// CompletionDates returns the distinct calendar dates (descending) on which
// the habit had at least one completed activity, read from the activity's
// date column.
func (r *ActivityRepository) CompletionDates(ctx context.Context, owner types.Owner, habitID string, limit int) ([]time.Time, error) {
	if limit <= 0 {
		limit = 366
	}

	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT date
		 FROM activities
		 WHERE owner_type = $1 AND owner_id = $2 AND habit_id = $3
		   AND completed = TRUE
		 ORDER BY date DESC
		 LIMIT $4`,
		string(owner.Type), owner.ID, habitID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query completion dates", err)
	}
	defer rows.Close()

	return collectDates(rows)
}

// CompletionDatesByTimestamp returns the same distinct descending date set
// as CompletionDates, but derived by truncating the activity creation
// timestamp to its day. Some legacy rows carry a zero date column; this
// query serves those callers. Both variants feed the one streak algorithm.
func (r *ActivityRepository) CompletionDatesByTimestamp(ctx context.Context, owner types.Owner, habitID string, limit int) ([]time.Time, error) {
	if limit <= 0 {
		limit = 366
	}

	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT date_trunc('day', created_at) AS day
		 FROM activities
		 WHERE owner_type = $1 AND owner_id = $2 AND habit_id = $3
		   AND completed = TRUE
		 ORDER BY day DESC
		 LIMIT $4`,
		string(owner.Type), owner.ID, habitID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query completion days", err)
	}
	defer rows.Close()

	return collectDates(rows)
}

// WeekCompletionCounts returns, per habit, the number of distinct days in
// [from, to] with a completed activity. One query serves the whole weekly
// report instead of a round trip per habit.
func (r *ActivityRepository) WeekCompletionCounts(ctx context.Context, owner types.Owner, from, to time.Time) (map[string]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT habit_id, COUNT(DISTINCT date)
		 FROM activities
		 WHERE owner_type = $1 AND owner_id = $2
		   AND completed = TRUE
		   AND date BETWEEN $3 AND $4
		 GROUP BY habit_id`,
		string(owner.Type), owner.ID, dateOnly(from), dateOnly(to),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query week completions", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var habitID string
		var count int
		if err := rows.Scan(&habitID, &count); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan completion count", err)
		}
		counts[habitID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating completion counts", err)
	}

	return counts, nil
}

// WorkloadTotal sums activity amounts for one habit in the closed range
// [from, to]. Rows without an amount contribute nothing to the sum.
func (r *ActivityRepository) WorkloadTotal(ctx context.Context, owner types.Owner, habitID string, from, to time.Time) (float64, error) {
	var total float64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0)
		 FROM activities
		 WHERE owner_type = $1 AND owner_id = $2 AND habit_id = $3
		   AND date BETWEEN $4 AND $5`,
		string(owner.Type), owner.ID, habitID, dateOnly(from), dateOnly(to),
	).Scan(&total)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to sum workload", err)
	}
	return total, nil
}

// collectDates drains a single-column date result set, normalizing each
// value to midnight UTC.
func collectDates(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]time.Time, error) {
	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan date row", err)
		}
		dates = append(dates, dateOnly(d))
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating date rows", err)
	}
	return dates, nil
}
