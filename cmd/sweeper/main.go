// Package main is the entrypoint for the sweeper Lambda function.
//
// The sweeper is a notification multiplexer. EventBridge rules send JSON
// payloads naming a TaskType, and the handler routes the invocation to the
// matching sweep. Consolidating the four sweeps into one Lambda keeps the
// cold-start surface small and lets every cadence share one connection pool.
//
// Handler flow per invocation:
//  1. Parse SweepPayload from EventBridge.
//  2. Switch on TaskType and run the matching sweep.
//  3. Emit sent/error/duration metrics for the run.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"habitpulse/internal/config"
	"habitpulse/internal/db"
	"habitpulse/internal/notify"
	"habitpulse/internal/scheduler"
	"habitpulse/internal/secure"
	"habitpulse/internal/types"
)

// Sweeper is the subset of a sweep the handler calls. All four sweeps
// satisfy it; the interface exists so the routing logic tests with mocks.
type Sweeper interface {
	Run(ctx context.Context) (types.SweepResult, error)
}

// MetricsRecorder abstracts the per-run metric emission.
type MetricsRecorder interface {
	RecordSweep(ctx context.Context, kind types.NotificationKind, result types.SweepResult)
}

// SweepRegistry holds the sweep implementations the multiplexer routes to.
// Sweeps are eagerly built during cold start and reused across invocations.
type SweepRegistry struct {
	Reminder     Sweeper
	FollowUp     Sweeper
	RemindLater  Sweeper
	WeeklyReport Sweeper
}

// Handler holds the dependencies for the sweeper Lambda handler function.
type Handler struct {
	Sweeps  SweepRegistry
	Metrics MetricsRecorder
	Logger  *slog.Logger
}

// Handle routes a SweepPayload from EventBridge to the matching sweep and
// records the run's metrics whether it succeeded or not.
func (h *Handler) Handle(ctx context.Context, payload scheduler.SweepPayload) (string, error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if payload.Task == "" {
		return "", fmt.Errorf("empty task type in sweep payload")
	}

	sweep, kind, err := h.resolve(payload.Task)
	if err != nil {
		return "", err
	}

	logger.InfoContext(ctx, "sweeper handler invoked", "task", string(payload.Task))

	result, runErr := sweep.Run(ctx)

	// A partial run still carries real counts; record them either way.
	if h.Metrics != nil {
		h.Metrics.RecordSweep(ctx, kind, result)
	}

	if runErr != nil {
		logger.ErrorContext(ctx, "sweep failed",
			"task", string(payload.Task),
			"sent", result.SentCount,
			"errors", result.ErrorCount,
			"error", runErr,
		)
		return "", fmt.Errorf("task %s failed: %w", payload.Task, runErr)
	}

	summary := fmt.Sprintf("task %s complete: %d sent, %d errors in %dms",
		payload.Task, result.SentCount, result.ErrorCount, result.ElapsedMs)
	logger.InfoContext(ctx, summary,
		"task", string(payload.Task),
		"sent", result.SentCount,
		"errors", result.ErrorCount,
		"elapsed_ms", result.ElapsedMs,
	)
	return summary, nil
}

// resolve maps a TaskType to its sweep and the notification kind used as the
// metric dimension.
func (h *Handler) resolve(task scheduler.TaskType) (Sweeper, types.NotificationKind, error) {
	switch task {
	case scheduler.TaskReminderSweep:
		return h.Sweeps.Reminder, types.NotificationReminder, nil
	case scheduler.TaskFollowUpSweep:
		return h.Sweeps.FollowUp, types.NotificationFollowUp, nil
	case scheduler.TaskRemindLaterSweep:
		return h.Sweeps.RemindLater, types.NotificationRemindLater, nil
	case scheduler.TaskWeeklyReportSweep:
		return h.Sweeps.WeeklyReport, types.NotificationWeeklyReport, nil
	default:
		return nil, "", fmt.Errorf("unknown task type: %q", task)
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	logger.Info("sweeper Lambda initializing (cold start)")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))

	pool := db.NewPoolManager(cfg.Database, logger)
	habits := db.NewHabitRepository(pool)
	activities := db.NewActivityRepository(pool)
	ledger := db.NewFollowUpStatusRepository(pool)
	prefs := db.NewPreferencesRepository(pool)
	conns := db.NewConnectionRepository(pool)

	cipher := secure.NewCredentialCipher(cfg.Security.CredentialKey)
	chat := notify.NewChatClient(cfg.Messaging, logger)
	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{
		Chat:         chat,
		Cipher:       cipher,
		Invalidator:  conns,
		DefaultToken: cfg.Messaging.BotToken,
		Logger:       logger,
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.AWS.Region),
	)
	if err != nil {
		logger.Error("failed to load AWS SDK config", "error", err)
		os.Exit(1)
	}

	// EndpointURL points the SDK clients at LocalStack in development.
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})
	cwClient := cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
		}
	})

	var inApp scheduler.InAppNotifier = scheduler.NoopInAppNotifier{}
	if cfg.Queue.InAppQueueURL != "" {
		inApp = notify.NewInAppPublisher(sqsClient, cfg.Queue.InAppQueueURL, logger)
	} else {
		logger.Warn("SQS_INAPP_NOTIFICATIONS not set, in-app fallback disabled")
	}

	metrics := notify.NewSweepMetrics(cwClient, logger)

	handler := &Handler{
		Sweeps: SweepRegistry{
			Reminder: scheduler.NewReminderSweep(scheduler.ReminderSweepConfig{
				Habits:      habits,
				Activities:  activities,
				Ledger:      ledger,
				Prefs:       prefs,
				Conns:       conns,
				Messenger:   dispatcher,
				InApp:       inApp,
				Concurrency: cfg.Sweep.Concurrency,
				Logger:      logger,
			}),
			FollowUp: scheduler.NewFollowUpSweep(scheduler.FollowUpSweepConfig{
				Habits:        habits,
				Activities:    activities,
				Ledger:        ledger,
				Prefs:         prefs,
				Conns:         conns,
				Messenger:     dispatcher,
				InApp:         inApp,
				FollowUpAfter: cfg.Sweep.FollowUpAfter,
				Concurrency:   cfg.Sweep.Concurrency,
				Logger:        logger,
			}),
			RemindLater: scheduler.NewRemindLaterSweep(scheduler.RemindLaterSweepConfig{
				Habits:      habits,
				Activities:  activities,
				Ledger:      ledger,
				Prefs:       prefs,
				Conns:       conns,
				Messenger:   dispatcher,
				Concurrency: cfg.Sweep.Concurrency,
				Logger:      logger,
			}),
			WeeklyReport: scheduler.NewWeeklyReportSweep(scheduler.WeeklyReportSweepConfig{
				Habits:       habits,
				Activities:   activities,
				Prefs:        prefs,
				Conns:        conns,
				Messenger:    dispatcher,
				ReportWindow: cfg.Sweep.ReportWindow,
				Concurrency:  cfg.Sweep.Concurrency,
				Logger:       logger,
			}),
		},
		Metrics: metrics,
		Logger:  logger,
	}

	logger.Info("sweeper Lambda initialized", "environment", cfg.Environment)

	lambda.Start(handler.Handle)
}
