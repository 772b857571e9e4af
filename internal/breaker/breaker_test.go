package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

func TestBreakerTrips(t *testing.T) {
	cb := New("test-trip", Settings{ConsecutiveFailures: 2, Timeout: time.Minute})
	fail := errors.New("down")

	for i := 0; i < 2; i++ {
		_, err := cb.Execute(func() (interface{}, error) { return nil, fail })
		if !errors.Is(err, fail) {
			t.Fatalf("attempt %d: expected collaborator error, got %v", i, err)
		}
	}

	if cb.State() != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %s", cb.State())
	}

	_, err := cb.Execute(func() (interface{}, error) {
		t.Error("call must not run while open")
		return nil, nil
	})
	if !IsOpen(err) {
		t.Errorf("expected open-state error, got %v", err)
	}
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	cb := New("test-cancel", Settings{ConsecutiveFailures: 1})

	for i := 0; i < 3; i++ {
		cb.Execute(func() (interface{}, error) { return nil, context.Canceled })
	}

	if cb.State() != gobreaker.StateClosed {
		t.Errorf("cancellation must not trip the breaker, state %s", cb.State())
	}
}

func TestIsOpen(t *testing.T) {
	if IsOpen(errors.New("other")) {
		t.Error("plain errors are not open-state errors")
	}
	if !IsOpen(gobreaker.ErrTooManyRequests) {
		t.Error("too-many-requests is an open-state error")
	}
}
