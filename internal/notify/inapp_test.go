package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"habitpulse/internal/types"
)

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
	err    error
}

func (f *fakeSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, params)
	return &sqs.SendMessageOutput{}, nil
}

func TestInAppPublisher_Notify(t *testing.T) {
	client := &fakeSQS{}
	p := NewInAppPublisher(client, "https://sqs.test/queue", testLogger())

	owner := types.Owner{Type: types.OwnerTypeUser, ID: "user-1"}
	habit := &types.Habit{ID: "h1", Name: "stretch", TriggerMessage: "Time to stretch!"}

	if err := p.Notify(context.Background(), owner, habit, types.NotificationReminder); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.inputs) != 1 {
		t.Fatalf("messages sent = %d, want 1", len(client.inputs))
	}

	input := client.inputs[0]
	if *input.QueueUrl != "https://sqs.test/queue" {
		t.Errorf("queue url = %q", *input.QueueUrl)
	}

	var msg InAppMessage
	if err := json.Unmarshal([]byte(*input.MessageBody), &msg); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if msg.MessageID == "" {
		t.Error("message id missing")
	}
	if msg.Kind != types.NotificationReminder || msg.HabitID != "h1" || msg.OwnerID != "user-1" {
		t.Errorf("message = %+v", msg)
	}
	if msg.Text != "Time to stretch!" {
		t.Errorf("text = %q, want the trigger message", msg.Text)
	}
}

func TestInAppPublisher_SendFailure(t *testing.T) {
	client := &fakeSQS{err: errors.New("queue unavailable")}
	p := NewInAppPublisher(client, "https://sqs.test/queue", testLogger())

	err := p.Notify(context.Background(),
		types.Owner{Type: types.OwnerTypeUser, ID: "user-1"},
		&types.Habit{ID: "h1", Name: "stretch"},
		types.NotificationFollowUp,
	)

	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeUpstreamMessaging {
		t.Fatalf("err = %v, want upstream messaging error", err)
	}
}
