package types

import (
	"time"
)

// Owner is the composite account identity (user or team) that habits,
// connections, and preferences belong to. It is half of the dedup ledger's
// composite key.
type Owner struct {
	Type OwnerType `json:"type" db:"owner_type"`
	ID   string    `json:"id" db:"owner_id"`
}

// Habit is the core domain entity read by the sweeps. Habits are created and
// edited by the surrounding application; this engine never mutates them.
type Habit struct {
	ID    string `json:"id" db:"id"`
	Owner Owner  `json:"owner" db:"-"`

	Name   string    `json:"name" db:"name"`
	Active bool      `json:"active" db:"active"`
	Kind   HabitKind `json:"kind" db:"kind"`

	// TriggerTime is the configured reminder time-of-day, stored as a
	// normalized "HH:MM" string. Empty means the habit has no scheduled
	// reminder and is invisible to the reminder and follow-up sweeps.
	TriggerTime    string `json:"trigger_time,omitempty" db:"trigger_time"`
	TriggerMessage string `json:"trigger_message,omitempty" db:"trigger_message"`

	// Workload configuration. WorkloadPerIncrement is the amount one
	// activity row contributes; WorkloadTarget is the optional daily total
	// the owner aims for.
	WorkloadPerIncrement float64  `json:"workload_per_increment" db:"workload_per_increment"`
	WorkloadTarget       *float64 `json:"workload_target,omitempty" db:"workload_target"`

	// LegacyTarget carries the pre-workload target value for habits created
	// before per-increment tracking existed.
	LegacyTarget *float64 `json:"legacy_target,omitempty" db:"legacy_target"`
	GoalID       *string  `json:"goal_id,omitempty" db:"goal_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Activity is an append-only record of work done against a habit. One habit
// may have many activities per day; amounts are summed for workload totals
// and Completed=true rows feed the streak calculator.
type Activity struct {
	ID        string       `json:"id" db:"id"`
	Owner     Owner        `json:"owner" db:"-"`
	HabitID   string       `json:"habit_id" db:"habit_id"`
	Date      time.Time    `json:"date" db:"date"` // calendar date, midnight UTC
	Completed bool         `json:"completed" db:"completed"`
	Amount    *float64     `json:"amount,omitempty" db:"amount"`
	Kind      ActivityKind `json:"kind" db:"kind"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
}

// FollowUpStatus is the per-(owner, habit, date) dedup ledger row. It is the
// sole source of truth for "has this notification already been sent today".
//
// The row is modeled as independent nullable fields rather than a single
// state enum. This mirrors how skip, snooze, reminder, and follow-up can each
// occur (or not) independently within one day. Note the documented asymmetry:
// Skipped gates the follow-up sweep but not the reminder sweep.
type FollowUpStatus struct {
	Owner   Owner     `json:"owner" db:"-"`
	HabitID string    `json:"habit_id" db:"habit_id"`
	Date    time.Time `json:"date" db:"date"` // calendar date, midnight UTC

	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty" db:"reminder_sent_at"`
	FollowUpSentAt *time.Time `json:"follow_up_sent_at,omitempty" db:"follow_up_sent_at"`
	Skipped        bool       `json:"skipped" db:"skipped"`
	RemindLaterAt  *time.Time `json:"remind_later_at,omitempty" db:"remind_later_at"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// FollowUpStatusPatch carries the fields an upsert should merge into the
// ledger row. Nil pointer fields are left untouched by the merge; the
// ClearRemindLater flag explicitly nulls remind_later_at (a nil pointer
// alone cannot express "set to NULL").
type FollowUpStatusPatch struct {
	ReminderSentAt   *time.Time
	FollowUpSentAt   *time.Time
	Skipped          *bool
	RemindLaterAt    *time.Time
	ClearRemindLater bool
}

// NotificationPreferences holds the per-owner notification switches.
type NotificationPreferences struct {
	Owner Owner `json:"owner" db:"-"`

	NotificationsEnabled bool `json:"notifications_enabled" db:"notifications_enabled"`
	WeeklyReportEnabled  bool `json:"weekly_report_enabled" db:"weekly_report_enabled"`

	// WeeklyReportDay is the local weekday (0=Sunday .. 6=Saturday) and
	// WeeklyReportTime the local "HH:MM" at which the report is due.
	WeeklyReportDay  int    `json:"weekly_report_day" db:"weekly_report_day"`
	WeeklyReportTime string `json:"weekly_report_time" db:"weekly_report_time"`

	// Timezone is the owner's IANA zone name. Empty falls back to the fixed
	// default offset (UTC+9).
	Timezone string `json:"timezone,omitempty" db:"timezone"`
}

// Connection links an owner to their account on the external messaging
// provider. Credentials are stored encrypted and decrypted only at the point
// of use; a decrypt failure is treated as "no credential", not as fatal.
type Connection struct {
	Owner Owner `json:"owner" db:"-"`

	ExternalUserID string `json:"external_user_id" db:"external_user_id"`
	ExternalTeamID string `json:"external_team_id,omitempty" db:"external_team_id"`

	// Encrypted credential blobs as stored. Use a secure.CredentialCipher
	// to recover the plaintext tokens.
	AccessTokenEnc  []byte `json:"-" db:"access_token_enc"`
	RefreshTokenEnc []byte `json:"-" db:"refresh_token_enc"`

	Valid     bool      `json:"valid" db:"valid"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// WeeklyReportSnapshot is the derived weekly aggregate. It is computed fresh
// on every report send and never persisted.
type WeeklyReportSnapshot struct {
	Owner     Owner     `json:"owner"`
	WeekStart time.Time `json:"week_start"`
	WeekEnd   time.Time `json:"week_end"`

	TotalHabitDays     int     `json:"total_habit_days"`
	CompletedHabitDays int     `json:"completed_habit_days"`
	CompletionRate     float64 `json:"completion_rate"`

	BestStreak      int    `json:"best_streak"`
	BestStreakHabit string `json:"best_streak_habit,omitempty"`

	// NeedsAttention lists habits with fewer than 4 completions out of 7,
	// capped at 5 entries.
	NeedsAttention []HabitWeekSummary `json:"needs_attention,omitempty"`
}

// HabitWeekSummary is one habit's completion count within a report week.
// Workload fields are populated only for workload-tracking habits.
type HabitWeekSummary struct {
	HabitID        string   `json:"habit_id"`
	Name           string   `json:"name"`
	Completions    int      `json:"completions"`
	WorkloadDone   float64  `json:"workload_done,omitempty"`
	WorkloadTarget *float64 `json:"workload_target,omitempty"`
}

// SweepResult is the small observability record every sweep entry point
// returns to its caller.
type SweepResult struct {
	SentCount  int   `json:"sent_count"`
	ErrorCount int   `json:"error_count"`
	ElapsedMs  int64 `json:"elapsed_ms"`
}
