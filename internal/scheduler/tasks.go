package scheduler

// TaskType identifies which sweep an EventBridge rule is asking for. Each
// constant maps to one sweep in the cmd/sweeper multiplexer.
type TaskType string

const (
	TaskReminderSweep     TaskType = "reminder_sweep"
	TaskFollowUpSweep     TaskType = "followup_sweep"
	TaskRemindLaterSweep  TaskType = "remind_later_sweep"
	TaskWeeklyReportSweep TaskType = "weekly_report_sweep"
)

// SweepPayload is the JSON payload EventBridge rules send to the sweeper
// Lambda:
//
//	{ "task": "reminder_sweep" }
type SweepPayload struct {
	Task TaskType `json:"task"`
}
