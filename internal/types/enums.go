package types

// OwnerType identifies the kind of account a habit, connection, or
// preference row belongs to.
type OwnerType string

const (
	OwnerTypeUser OwnerType = "user"
	OwnerTypeTeam OwnerType = "team"
)

// HabitKind distinguishes habits the owner wants to do from habits the
// owner wants to avoid.
type HabitKind string

const (
	HabitKindDo    HabitKind = "do"
	HabitKindAvoid HabitKind = "avoid"
)

// ActivityKind categorizes an activity record. "complete" rows drive
// streak calculation; other kinds (e.g. "progress") only contribute
// amounts to workload totals.
type ActivityKind string

const (
	ActivityKindComplete ActivityKind = "complete"
	ActivityKindProgress ActivityKind = "progress"
)

// NotificationKind identifies which scheduled message a sweep delivers.
// At most one message per habit per kind per day is ever sent.
type NotificationKind string

const (
	NotificationReminder     NotificationKind = "reminder"
	NotificationFollowUp     NotificationKind = "follow_up"
	NotificationRemindLater  NotificationKind = "remind_later"
	NotificationWeeklyReport NotificationKind = "weekly_report"
)

// ErrorCategory is the user-facing classification of a notification
// failure. Each category maps to one fixed localized message and icon.
type ErrorCategory string

const (
	ErrorCategoryConnection ErrorCategory = "connection"
	ErrorCategoryDataFetch  ErrorCategory = "data_fetch"
	ErrorCategoryValidation ErrorCategory = "validation"
	ErrorCategoryUnknown    ErrorCategory = "unknown"
)
