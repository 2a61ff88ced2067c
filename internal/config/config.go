// Package config defines the global configuration structure for the
// habitpulse notification engine. Configuration is loaded once at process
// initialization and is immutable thereafter. It follows 12-Factor App
// principles by strictly separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format fails the process at startup.
package config

import (
	"time"

	"habitpulse/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only the
// specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"habitpulse"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Database  DatabaseConfig
	Messaging MessagingConfig
	Sweep     SweepConfig
	Queue     QueueConfig
	Security  SecurityConfig
	Server    ServerConfig
	AWS       AWSConfig
}

// DatabaseConfig holds record-store connection and pool tuning parameters,
// including the health-probe settings used by the pool manager's
// validate-or-recreate lifecycle.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout  time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`

	// ProbeLatencyMax is the ceiling on the existence-probe round trip.
	// A slower (or failing) probe marks the cached pool handle invalid.
	ProbeLatencyMax time.Duration `envconfig:"DB_PROBE_LATENCY_MAX" default:"3s"`
}

// MessagingConfig holds the external messaging provider settings.
type MessagingConfig struct {
	BotToken SecretString  `envconfig:"MESSAGING_BOT_TOKEN" validate:"required"`
	APIBase  string        `envconfig:"MESSAGING_API_BASE" default:"https://slack.com/api" validate:"url"`
	Timeout  time.Duration `envconfig:"MESSAGING_TIMEOUT" default:"10s"`
}

// SweepConfig holds the sweep engine tuning knobs. Cadences themselves live
// in the external trigger (EventBridge rules); these parameters shape what a
// single invocation does.
type SweepConfig struct {
	// Concurrency bounds the per-sweep worker pool.
	Concurrency int `envconfig:"SWEEP_CONCURRENCY" default:"8" validate:"min=1,max=64"`

	// FollowUpAfter is the unacknowledged-reminder age that makes a habit
	// eligible for escalation.
	FollowUpAfter time.Duration `envconfig:"SWEEP_FOLLOWUP_AFTER" default:"2h"`

	// ReportWindow is the tolerance either side of the owner's configured
	// weekly-report time.
	ReportWindow time.Duration `envconfig:"SWEEP_REPORT_WINDOW" default:"15m"`
}

// QueueConfig holds the in-app fallback queue settings.
type QueueConfig struct {
	InAppQueueURL string `envconfig:"SQS_INAPP_NOTIFICATIONS" validate:"omitempty,url"`
}

// SecurityConfig holds the credential cipher passphrase.
type SecurityConfig struct {
	CredentialKey SecretString `envconfig:"CREDENTIAL_CIPHER_KEY" validate:"required"`
}

// ServerConfig holds the inbound action API settings.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// AWSConfig holds regional configuration for the SDK clients (SQS fallback
// queue, CloudWatch metrics).
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// EndpointURL supports LocalStack in development; empty in production.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}
