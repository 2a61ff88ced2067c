package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"habitpulse/internal/types"
)

// FollowUpStatusRepository is the dedup ledger: one row per
// (owner_type, owner_id, habit_id, date), upserted and never duplicated.
// The uniqueness invariant is enforced by the table's composite primary key;
// concurrent sweeps racing on the same key are serialized by
// INSERT ... ON CONFLICT DO UPDATE, not by application-level locking.
type FollowUpStatusRepository struct {
	db DBTX
}

// NewFollowUpStatusRepository creates a new FollowUpStatusRepository backed
// by the given database connection (pool or transaction).
func NewFollowUpStatusRepository(db DBTX) *FollowUpStatusRepository {
	return &FollowUpStatusRepository{db: db}
}

const followUpColumns = `owner_type, owner_id, habit_id, date,
	reminder_sent_at, follow_up_sent_at, skipped, remind_later_at, updated_at`

// Get fetches the ledger row for one key. Returns (nil, nil) when no row
// exists; absence is an ordinary state, not an error.
func (r *FollowUpStatusRepository) Get(ctx context.Context, owner types.Owner, habitID string, date time.Time) (*types.FollowUpStatus, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+followUpColumns+`
		 FROM followup_status
		 WHERE owner_type = $1 AND owner_id = $2 AND habit_id = $3 AND date = $4`,
		string(owner.Type), owner.ID, habitID, dateOnly(date),
	)

	status, err := scanFollowUpStatus(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch followup status", err)
	}
	return status, nil
}

// Upsert atomically merges the patch into the ledger row for the key,
// creating the row if absent. Nil patch fields leave the stored value
// untouched; ClearRemindLater explicitly nulls remind_later_at. The merged
// row is returned.
//
// The conflict target is the composite primary key, so two sweeps hitting
// the same (owner, habit, date) can never create duplicate rows regardless
// of interleaving.
func (r *FollowUpStatusRepository) Upsert(ctx context.Context, owner types.Owner, habitID string, date time.Time, patch types.FollowUpStatusPatch) (*types.FollowUpStatus, error) {
	skipped := false
	if patch.Skipped != nil {
		skipped = *patch.Skipped
	}

	remindLater := patch.RemindLaterAt
	if patch.ClearRemindLater {
		remindLater = nil
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO followup_status
		 (owner_type, owner_id, habit_id, date,
		  reminder_sent_at, follow_up_sent_at, skipped, remind_later_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		 ON CONFLICT (owner_type, owner_id, habit_id, date) DO UPDATE SET
		   reminder_sent_at  = COALESCE($5, followup_status.reminder_sent_at),
		   follow_up_sent_at = COALESCE($6, followup_status.follow_up_sent_at),
		   skipped           = COALESCE($9, followup_status.skipped),
		   remind_later_at   = CASE WHEN $10 THEN NULL
		                            ELSE COALESCE($8, followup_status.remind_later_at) END,
		   updated_at        = NOW()
		 RETURNING `+followUpColumns,
		string(owner.Type), owner.ID, habitID, dateOnly(date),
		patch.ReminderSentAt,
		patch.FollowUpSentAt,
		skipped,
		remindLater,
		patch.Skipped,
		patch.ClearRemindLater,
	)

	status, err := scanFollowUpStatus(row)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert followup status", err)
	}
	return status, nil
}

// FollowUpCandidates returns the ledger rows for the given date that could
// still receive an escalation: follow_up_sent_at unset and not skipped.
func (r *FollowUpStatusRepository) FollowUpCandidates(ctx context.Context, date time.Time) ([]*types.FollowUpStatus, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+followUpColumns+`
		 FROM followup_status
		 WHERE date = $1 AND follow_up_sent_at IS NULL AND skipped = FALSE`,
		dateOnly(date),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query followup candidates", err)
	}
	defer rows.Close()

	return collectStatuses(rows)
}

// RemindLaterDue returns the ledger rows whose deferred reminder has come
// due: remind_later_at <= now, follow_up_sent_at unset, not skipped.
func (r *FollowUpStatusRepository) RemindLaterDue(ctx context.Context, now time.Time) ([]*types.FollowUpStatus, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+followUpColumns+`
		 FROM followup_status
		 WHERE remind_later_at IS NOT NULL AND remind_later_at <= $1
		   AND follow_up_sent_at IS NULL AND skipped = FALSE`,
		now,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query due deferred reminders", err)
	}
	defer rows.Close()

	return collectStatuses(rows)
}

func collectStatuses(rows pgx.Rows) ([]*types.FollowUpStatus, error) {
	var statuses []*types.FollowUpStatus
	for rows.Next() {
		s, err := scanFollowUpStatus(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan followup status row", err)
		}
		statuses = append(statuses, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating followup status rows", err)
	}
	return statuses, nil
}

func scanFollowUpStatus(row rowScanner) (*types.FollowUpStatus, error) {
	var (
		s         types.FollowUpStatus
		ownerType string
	)

	err := row.Scan(
		&ownerType,
		&s.Owner.ID,
		&s.HabitID,
		&s.Date,
		&s.ReminderSentAt,
		&s.FollowUpSentAt,
		&s.Skipped,
		&s.RemindLaterAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Owner.Type = types.OwnerType(ownerType)
	s.Date = dateOnly(s.Date)
	return &s, nil
}
