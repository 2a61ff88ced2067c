package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"habitpulse/internal/types"
)

// ActionService is the subset of the actions service the handler calls.
type ActionService interface {
	Skip(ctx context.Context, owner types.Owner, habitID string) (*types.FollowUpStatus, error)
	Snooze(ctx context.Context, owner types.Owner, habitID string, delayMinutes int) (*types.FollowUpStatus, error)
}

// SkipRequest is the body for POST /v1/habits/{habitID}/skip.
type SkipRequest struct {
	OwnerType string `json:"owner_type" validate:"required,oneof=user team"`
	OwnerID   string `json:"owner_id" validate:"required,max=64"`
}

// SnoozeRequest is the body for POST /v1/habits/{habitID}/snooze. A zero
// DelayMinutes means the default snooze; range enforcement lives in the
// service.
type SnoozeRequest struct {
	OwnerType    string `json:"owner_type" validate:"required,oneof=user team"`
	OwnerID      string `json:"owner_id" validate:"required,max=64"`
	DelayMinutes int    `json:"delay_minutes"`
}

// ActionStatusResponse is the ledger row echoed back after a skip or snooze.
type ActionStatusResponse struct {
	HabitID        string     `json:"habit_id"`
	Date           string     `json:"date"`
	Skipped        bool       `json:"skipped"`
	RemindLaterAt  *time.Time `json:"remind_later_at,omitempty"`
	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty"`
	FollowUpSentAt *time.Time `json:"follow_up_sent_at,omitempty"`
}

// ActionHandler serves the user-initiated reminder actions.
type ActionHandler struct {
	svc      ActionService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewActionHandler creates an ActionHandler with the provided dependencies.
func NewActionHandler(svc ActionService, v *validator.Validate, logger *slog.Logger) *ActionHandler {
	if v == nil {
		v = validator.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ActionHandler{svc: svc, validate: v, logger: logger}
}

// RegisterRoutes mounts the action routes onto the provided router.
func (h *ActionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/habits/{habitID}/skip", h.Skip)
	r.Post("/habits/{habitID}/snooze", h.Snooze)
}

// Skip handles POST /v1/habits/{habitID}/skip. It marks the habit's ledger
// row skipped for the owner-local day, which closes out follow-up
// escalation without touching the plain reminder.
func (h *ActionHandler) Skip(w http.ResponseWriter, r *http.Request) {
	habitID := chi.URLParam(r, "habitID")

	var req SkipRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"owner_type and owner_id are required",
			err,
		))
		return
	}

	owner := types.Owner{Type: types.OwnerType(req.OwnerType), ID: req.OwnerID}
	status, err := h.svc.Skip(r.Context(), owner, habitID)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: statusResponse(status)})
}

// Snooze handles POST /v1/habits/{habitID}/snooze.
func (h *ActionHandler) Snooze(w http.ResponseWriter, r *http.Request) {
	habitID := chi.URLParam(r, "habitID")

	var req SnoozeRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		Error(w, r, err)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		Error(w, r, types.NewAppError(
			types.ErrCodeValidationMissingField,
			"owner_type and owner_id are required",
			err,
		))
		return
	}

	owner := types.Owner{Type: types.OwnerType(req.OwnerType), ID: req.OwnerID}
	status, err := h.svc.Snooze(r.Context(), owner, habitID, req.DelayMinutes)
	if err != nil {
		Error(w, r, err)
		return
	}

	JSON(w, r, http.StatusOK, APIResponse{Data: statusResponse(status)})
}

func statusResponse(s *types.FollowUpStatus) ActionStatusResponse {
	return ActionStatusResponse{
		HabitID:        s.HabitID,
		Date:           s.Date.Format("2006-01-02"),
		Skipped:        s.Skipped,
		RemindLaterAt:  s.RemindLaterAt,
		ReminderSentAt: s.ReminderSentAt,
		FollowUpSentAt: s.FollowUpSentAt,
	}
}
