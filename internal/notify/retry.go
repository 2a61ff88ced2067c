// Package notify is the outbound delivery layer: the messaging provider
// client, the resilient dispatcher that wraps it in retries and a circuit
// breaker, the in-app fallback queue, and the user-facing error classifier.
package notify

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/sony/gobreaker/v2"

	"habitpulse/internal/types"
)

// RetryPolicy configures the retry behavior for outbound delivery calls.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	CapDelay   time.Duration
}

// DefaultRetryPolicy returns the standard delivery retry policy: up to three
// retries with exponential backoff 100/200/400ms, capped at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
		CapDelay:   time.Second,
	}
}

// Delay returns the backoff before retry number attempt (zero-based):
// min(BaseDelay * 2^attempt, CapDelay).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if d > p.CapDelay || d <= 0 {
		return p.CapDelay
	}
	return d
}

// Retrier executes operations under a RetryPolicy.
type Retrier struct {
	policy  RetryPolicy
	sleepFn func(time.Duration) // for testability; defaults to time.Sleep
}

// RetrierOption is a functional option for configuring a Retrier.
type RetrierOption func(*Retrier)

// WithSleepFunc overrides the sleep function used between retries.
// This is intended for testing to avoid real delays.
func WithSleepFunc(fn func(time.Duration)) RetrierOption {
	return func(r *Retrier) {
		r.sleepFn = fn
	}
}

// NewRetrier creates a Retrier with the given policy.
func NewRetrier(policy RetryPolicy, opts ...RetrierOption) *Retrier {
	r := &Retrier{
		policy:  policy,
		sleepFn: time.Sleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do runs op, retrying retryable failures under the policy. Non-retryable
// errors propagate immediately; exhausted retries propagate the last error.
func (r *Retrier) Do(ctx context.Context, op func(context.Context) error) error {
	var lastErr error

	maxAttempts := 1 + r.policy.MaxRetries
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
		if attempt < maxAttempts-1 {
			r.sleepFn(r.policy.Delay(attempt))
		}
	}

	return lastErr
}

// transientKeywords marks an error message as a transient I/O failure. The
// scan runs at every level of the wrap chain.
var transientKeywords = []string{
	"connection",
	"timeout",
	"timed out",
	"network",
	"reset by peer",
	"broken pipe",
	"refused",
	"unreachable",
	"no such host",
	"i/o error",
	"unexpected eof",
	"temporarily unavailable",
}

// IsRetryable reports whether err looks like a transient failure worth
// retrying: a known transient I/O error type, a transient keyword in its
// message, or either of those anywhere in its wrapped cause chain.
//
// An open circuit breaker is never retryable; retrying it would only hammer
// the rejection path while the breaker is counting down.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeUpstreamMessaging, types.ErrCodeUpstreamThrottled:
			return true
		case types.ErrCodeCircuitOpen, types.ErrCodeCredentialInvalid:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		msg := strings.ToLower(e.Error())
		for _, kw := range transientKeywords {
			if strings.Contains(msg, kw) {
				return true
			}
		}
	}

	return false
}
