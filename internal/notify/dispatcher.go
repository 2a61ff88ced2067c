package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sony/gobreaker/v2"

	"habitpulse/internal/secure"
	"habitpulse/internal/types"
)

// ChatAPI is the provider surface the dispatcher drives. Implemented by
// ChatClient; tests substitute a recorder.
type ChatAPI interface {
	OpenDirectChannel(ctx context.Context, token types.SecretString, externalUserID string) (string, error)
	PostMessage(ctx context.Context, token types.SecretString, channelID, text string, blocks []map[string]any) error
}

// ConnectionInvalidator flags a connection whose stored credentials turned
// out to be unusable.
type ConnectionInvalidator interface {
	MarkInvalid(ctx context.Context, owner types.Owner) error
}

// Dispatcher is the resilient delivery front door: it decrypts the
// connection's token, opens the direct channel, and posts the message, with
// every provider round trip wrapped in the retry policy and the shared
// circuit breaker.
//
// Dispatcher implements the Messenger interface consumed by the sweeps.
type Dispatcher struct {
	chat         ChatAPI
	cipher       *secure.CredentialCipher
	retrier      *Retrier
	breaker      *gobreaker.CircuitBreaker[struct{}]
	invalidator  ConnectionInvalidator
	defaultToken types.SecretString
	logger       *slog.Logger
}

// DispatcherConfig holds the dependencies for creating a Dispatcher.
type DispatcherConfig struct {
	Chat        ChatAPI
	Cipher      *secure.CredentialCipher
	Retrier     *Retrier
	Breaker     *gobreaker.CircuitBreaker[struct{}]
	Invalidator ConnectionInvalidator
	Logger      *slog.Logger

	// DefaultToken is the workspace bot token, used for connections that
	// carry no stored per-connection credential.
	DefaultToken types.SecretString
}

// NewDispatcher creates a Dispatcher with the given configuration. A nil
// Retrier or Breaker gets the package defaults.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retrier := cfg.Retrier
	if retrier == nil {
		retrier = NewRetrier(DefaultRetryPolicy())
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = NewBreaker("messaging")
	}
	return &Dispatcher{
		chat:         cfg.Chat,
		cipher:       cfg.Cipher,
		retrier:      retrier,
		breaker:      breaker,
		invalidator:  cfg.Invalidator,
		defaultToken: cfg.DefaultToken,
		logger:       logger,
	}
}

// SendReminder delivers the plain habit reminder.
func (d *Dispatcher) SendReminder(ctx context.Context, conn *types.Connection, habit *types.Habit) error {
	return d.deliver(ctx, conn, reminderText(habit))
}

// SendFollowUp delivers the escalation message for an unacknowledged reminder.
func (d *Dispatcher) SendFollowUp(ctx context.Context, conn *types.Connection, habit *types.Habit) error {
	return d.deliver(ctx, conn, followUpText(habit))
}

// SendWeeklyReport delivers the aggregate weekly summary.
func (d *Dispatcher) SendWeeklyReport(ctx context.Context, conn *types.Connection, snapshot *types.WeeklyReportSnapshot) error {
	return d.deliver(ctx, conn, weeklyReportText(snapshot))
}

// deliver runs the open-channel-then-post sequence under retry and breaker.
// Each provider round trip is an independently retried call point; the
// breaker spans both so a dead provider trips once, not per phase.
func (d *Dispatcher) deliver(ctx context.Context, conn *types.Connection, text string) error {
	token, err := d.token(ctx, conn)
	if err != nil {
		return err
	}

	var channelID string
	err = d.retrier.Do(ctx, func(ctx context.Context) error {
		_, execErr := d.breaker.Execute(func() (struct{}, error) {
			id, openErr := d.chat.OpenDirectChannel(ctx, token, conn.ExternalUserID)
			if openErr != nil {
				return struct{}{}, openErr
			}
			channelID = id
			return struct{}{}, nil
		})
		return execErr
	})
	if err != nil {
		return d.mapDeliveryError(ctx, conn, err)
	}

	err = d.retrier.Do(ctx, func(ctx context.Context) error {
		_, execErr := d.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, d.chat.PostMessage(ctx, token, channelID, text, nil)
		})
		return execErr
	})
	if err != nil {
		return d.mapDeliveryError(ctx, conn, err)
	}
	return nil
}

// token resolves the credential for a delivery. Connections without a stored
// blob use the workspace bot token; otherwise the blob is decrypted, and a
// blob that fails to decrypt means the credential is effectively absent: the
// connection is flagged invalid so the sweeps stop selecting it.
func (d *Dispatcher) token(ctx context.Context, conn *types.Connection) (types.SecretString, error) {
	if len(conn.AccessTokenEnc) == 0 && d.defaultToken != "" {
		return d.defaultToken, nil
	}
	plaintext, err := d.cipher.Decrypt(conn.AccessTokenEnc)
	if err != nil {
		if errors.Is(err, secure.ErrCredentialAbsent) {
			d.flagInvalid(ctx, conn)
			return "", types.NewAppError(types.ErrCodeCredentialInvalid, "stored credential is unreadable", err)
		}
		return "", types.NewAppError(types.ErrCodeInternalCipher, "failed to decrypt credential", err)
	}
	return types.SecretString(plaintext), nil
}

func (d *Dispatcher) mapDeliveryError(ctx context.Context, conn *types.Connection, err error) error {
	if IsBreakerOpen(err) {
		return types.NewAppError(types.ErrCodeCircuitOpen, "messaging circuit is open", err)
	}

	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Code == types.ErrCodeCredentialInvalid {
		d.flagInvalid(ctx, conn)
	}
	return err
}

func (d *Dispatcher) flagInvalid(ctx context.Context, conn *types.Connection) {
	if d.invalidator == nil {
		return
	}
	if err := d.invalidator.MarkInvalid(ctx, conn.Owner); err != nil {
		d.logger.WarnContext(ctx, "failed to invalidate connection",
			"owner_id", conn.Owner.ID,
			"owner_type", conn.Owner.Type,
			"error", err,
		)
	}
}

// --- Message bodies ---

func reminderText(habit *types.Habit) string {
	if habit.TriggerMessage != "" {
		return habit.TriggerMessage
	}
	return fmt.Sprintf("Time for %q.", habit.Name)
}

func followUpText(habit *types.Habit) string {
	return fmt.Sprintf("Still pending: %q. Log it when you're done, or skip today.", habit.Name)
}

func weeklyReportText(snapshot *types.WeeklyReportSnapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Your week in review (%s – %s)\n",
		snapshot.WeekStart.Format("Jan 2"), snapshot.WeekEnd.Format("Jan 2"))
	fmt.Fprintf(&b, "Completed %d of %d habit-days (%.0f%%).\n",
		snapshot.CompletedHabitDays, snapshot.TotalHabitDays, snapshot.CompletionRate*100)

	if snapshot.BestStreak > 0 {
		fmt.Fprintf(&b, "Best streak: %d days on %q.\n", snapshot.BestStreak, snapshot.BestStreakHabit)
	}
	if len(snapshot.NeedsAttention) > 0 {
		b.WriteString("Needs attention:\n")
		for _, h := range snapshot.NeedsAttention {
			fmt.Fprintf(&b, "  • %s — %d/7 days\n", h.Name, h.Completions)
		}
	}

	return b.String()
}
