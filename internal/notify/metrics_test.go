package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"habitpulse/internal/types"
)

type fakeCloudWatch struct {
	inputs []*cloudwatch.PutMetricDataInput
	err    error
}

func (f *fakeCloudWatch) PutMetricData(_ context.Context, params *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func TestRecordSweep_EmitsTriple(t *testing.T) {
	cw := &fakeCloudWatch{}
	m := NewSweepMetrics(cw, testLogger())

	m.RecordSweep(context.Background(), types.NotificationReminder, types.SweepResult{
		SentCount:  12,
		ErrorCount: 2,
		ElapsedMs:  340,
	})

	if len(cw.inputs) != 1 {
		t.Fatalf("PutMetricData calls = %d, want 1", len(cw.inputs))
	}
	input := cw.inputs[0]
	if got := *input.Namespace; got != MetricNamespace {
		t.Errorf("namespace = %q, want %q", got, MetricNamespace)
	}
	if len(input.MetricData) != 3 {
		t.Fatalf("metric data points = %d, want 3", len(input.MetricData))
	}

	values := map[string]float64{}
	for _, d := range input.MetricData {
		values[*d.MetricName] = *d.Value
		if len(d.Dimensions) != 1 || *d.Dimensions[0].Value != "reminder" {
			t.Errorf("metric %s missing the Sweep=reminder dimension", *d.MetricName)
		}
	}
	if values["NotificationsSent"] != 12 {
		t.Errorf("NotificationsSent = %v, want 12", values["NotificationsSent"])
	}
	if values["NotificationErrors"] != 2 {
		t.Errorf("NotificationErrors = %v, want 2", values["NotificationErrors"])
	}
	if values["SweepDuration"] != 340 {
		t.Errorf("SweepDuration = %v, want 340", values["SweepDuration"])
	}
}

func TestRecordSweep_PutFailureIsSwallowed(t *testing.T) {
	cw := &fakeCloudWatch{err: errors.New("throttled")}
	m := NewSweepMetrics(cw, testLogger())

	// Must not panic or propagate; sweeps never fail on observability.
	m.RecordSweep(context.Background(), types.NotificationWeeklyReport, types.SweepResult{SentCount: 1})
}
