// Package breaker builds the circuit breakers guarding collaborator calls.
package breaker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/truthlens/truthlens/internal/metrics"
)

// Settings tunes a breaker. Zero values fall back to the defaults below.
type Settings struct {
	MaxRequests         uint32        // requests allowed while half-open
	Interval            time.Duration // closed-state counter reset interval
	Timeout             time.Duration // time spent open before half-open
	ConsecutiveFailures uint32
}

// DefaultSettings returns the settings used for model and narrative calls.
func DefaultSettings() Settings {
	return Settings{
		MaxRequests:         3,
		Interval:            60 * time.Second,
		Timeout:             30 * time.Second,
		ConsecutiveFailures: 5,
	}
}

// New creates a named breaker. It trips after the configured number of
// consecutive failures or a 60% failure rate over at least 10 requests.
// Caller cancellation does not count as a failure.
func New(name string, s Settings) *gobreaker.CircuitBreaker {
	d := DefaultSettings()
	if s.MaxRequests == 0 {
		s.MaxRequests = d.MaxRequests
	}
	if s.Interval == 0 {
		s.Interval = d.Interval
	}
	if s.Timeout == 0 {
		s.Timeout = d.Timeout
	}
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = d.ConsecutiveFailures
	}

	metrics.SetBreakerState(name, int(gobreaker.StateClosed))

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.SetBreakerState(name, int(to))
		},
	})
}

// IsOpen reports whether err came from a breaker refusing the call.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
