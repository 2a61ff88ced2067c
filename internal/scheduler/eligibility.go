package scheduler

import (
	"habitpulse/internal/types"
)

// Eligibility predicates for the dedup ledger, named so that the rules (and
// their one known asymmetry) are visible in a single place.
//
// The ledger models the day as independent nullable fields, not a state
// machine. That allows the asymmetry below; it is preserved deliberately
// because the surrounding application depends on the observed behavior.

// reminderAlreadySent reports whether today's plain reminder went out.
// Note the asymmetry: the reminder sweep consults only this predicate, so a
// skip recorded before the reminder was ever sent does NOT suppress the
// reminder itself, only the follow-up.
func reminderAlreadySent(status *types.FollowUpStatus) bool {
	return status != nil && status.ReminderSentAt != nil
}

// followUpClosed reports whether the escalation path is finished for the
// day: either the follow-up already went out or the owner skipped.
func followUpClosed(status *types.FollowUpStatus) bool {
	if status == nil {
		return false
	}
	return status.FollowUpSentAt != nil || status.Skipped
}

// deferredStillOpen reports whether a due remind-later row should still
// fire: the owner has not skipped and no follow-up superseded it.
func deferredStillOpen(status *types.FollowUpStatus) bool {
	if status == nil || status.RemindLaterAt == nil {
		return false
	}
	return status.FollowUpSentAt == nil && !status.Skipped
}
