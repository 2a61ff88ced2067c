package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"habitpulse/internal/types"
)

// PreferencesRepository provides read access to per-owner notification
// preferences. Rows are owned by the surrounding application.
type PreferencesRepository struct {
	db DBTX
}

// NewPreferencesRepository creates a new PreferencesRepository backed by the
// given database connection (pool or transaction).
func NewPreferencesRepository(db DBTX) *PreferencesRepository {
	return &PreferencesRepository{db: db}
}

// GetByOwner fetches the owner's preferences. An absent row returns
// (nil, nil); callers treat that as notifications enabled with the weekly
// report disabled, which matches how owners behave before ever opening the
// settings screen.
func (r *PreferencesRepository) GetByOwner(ctx context.Context, owner types.Owner) (*types.NotificationPreferences, error) {
	row := r.db.QueryRow(ctx,
		`SELECT owner_type, owner_id, notifications_enabled, weekly_report_enabled,
		        weekly_report_day, weekly_report_time, timezone
		 FROM notification_preferences
		 WHERE owner_type = $1 AND owner_id = $2`,
		string(owner.Type), owner.ID,
	)

	prefs, err := scanPreferences(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch preferences", err)
	}
	return prefs, nil
}

func scanPreferences(row rowScanner) (*types.NotificationPreferences, error) {
	var (
		p          types.NotificationPreferences
		ownerType  string
		reportTime *string
		timezone   *string
	)

	err := row.Scan(
		&ownerType,
		&p.Owner.ID,
		&p.NotificationsEnabled,
		&p.WeeklyReportEnabled,
		&p.WeeklyReportDay,
		&reportTime,
		&timezone,
	)
	if err != nil {
		return nil, err
	}

	p.Owner.Type = types.OwnerType(ownerType)
	if reportTime != nil {
		p.WeeklyReportTime = *reportTime
	}
	if timezone != nil {
		p.Timezone = *timezone
	}
	return &p, nil
}
