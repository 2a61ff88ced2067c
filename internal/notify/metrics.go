package notify

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"habitpulse/internal/types"
)

// MetricNamespace is the CloudWatch namespace for sweep observability.
const MetricNamespace = "HabitPulse/Sweeps"

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// SweepMetrics emits per-invocation sweep results to CloudWatch. Metric
// emission is best-effort: a failed put is logged and swallowed so
// observability never fails a sweep.
type SweepMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

// NewSweepMetrics creates a SweepMetrics publisher.
func NewSweepMetrics(client CloudWatchClient, logger *slog.Logger) *SweepMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepMetrics{
		client:    client,
		namespace: MetricNamespace,
		logger:    logger,
	}
}

// RecordSweep emits the sent/error/elapsed triple for one sweep invocation,
// dimensioned by sweep kind.
func (m *SweepMetrics) RecordSweep(ctx context.Context, kind types.NotificationKind, result types.SweepResult) {
	dims := []cwtypes.Dimension{
		{
			Name:  aws.String("Sweep"),
			Value: aws.String(string(kind)),
		},
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String("NotificationsSent"),
				Value:      aws.Float64(float64(result.SentCount)),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
			{
				MetricName: aws.String("NotificationErrors"),
				Value:      aws.Float64(float64(result.ErrorCount)),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
			{
				MetricName: aws.String("SweepDuration"),
				Value:      aws.Float64(float64(result.ElapsedMs)),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: dims,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.WarnContext(ctx, "failed to record sweep metrics",
			"sweep", kind,
			"error", err,
		)
	}
}
