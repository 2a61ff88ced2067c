package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"

	"habitpulse/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// InAppMessage is the payload consumed by the in-app notification worker.
type InAppMessage struct {
	MessageID  string                 `json:"message_id"`
	Kind       types.NotificationKind `json:"kind"`
	OwnerType  types.OwnerType        `json:"owner_type"`
	OwnerID    string                 `json:"owner_id"`
	HabitID    string                 `json:"habit_id"`
	HabitName  string                 `json:"habit_name"`
	Text       string                 `json:"text"`
	EnqueuedAt time.Time              `json:"enqueued_at"`
}

// InAppPublisher enqueues fallback notifications for owners without a usable
// messaging connection. It implements the InAppNotifier interface consumed
// by the sweeps.
type InAppPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewInAppPublisher creates an InAppPublisher for the given queue URL.
func NewInAppPublisher(client SQSSender, queueURL string, logger *slog.Logger) *InAppPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &InAppPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Notify enqueues one in-app notification.
func (p *InAppPublisher) Notify(ctx context.Context, owner types.Owner, habit *types.Habit, kind types.NotificationKind) error {
	msg := InAppMessage{
		MessageID:  uuid.NewString(),
		Kind:       kind,
		OwnerType:  owner.Type,
		OwnerID:    owner.ID,
		HabitID:    habit.ID,
		HabitName:  habit.Name,
		Text:       inAppText(habit, kind),
		EnqueuedAt: time.Now().UTC(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode in-app message", err)
	}

	if _, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
	}); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamMessaging, "failed to enqueue in-app notification", err)
	}

	p.logger.InfoContext(ctx, "in-app notification enqueued",
		"message_id", msg.MessageID,
		"kind", kind,
		"owner_id", owner.ID,
		"habit_id", habit.ID,
	)
	return nil
}

func inAppText(habit *types.Habit, kind types.NotificationKind) string {
	switch kind {
	case types.NotificationFollowUp:
		return followUpText(habit)
	default:
		return reminderText(habit)
	}
}
