package notify

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Breaker thresholds for outbound delivery.
const (
	// breakerFailureThreshold consecutive failures open the circuit.
	breakerFailureThreshold = 5

	// breakerTimeout is how long the circuit stays open before probing.
	breakerTimeout = 30 * time.Second

	// breakerHalfOpenSuccesses consecutive half-open successes close the
	// circuit again; a single success is not enough.
	breakerHalfOpenSuccesses = 2
)

// BreakerSettings returns the delivery breaker configuration: CLOSED until
// five consecutive failures, OPEN for thirty seconds, then HALF_OPEN
// admitting two probe calls which must both succeed to close.
func BreakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: breakerHalfOpenSuccesses,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
	}
}

// NewBreaker creates the delivery circuit breaker with the standard settings.
func NewBreaker(name string) *gobreaker.CircuitBreaker[struct{}] {
	return gobreaker.NewCircuitBreaker[struct{}](BreakerSettings(name))
}

// IsBreakerOpen reports whether err is a circuit-breaker rejection, i.e. the
// wrapped operation was never attempted.
func IsBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
