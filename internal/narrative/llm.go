package narrative

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/truthlens/truthlens/internal/breaker"
	"github.com/truthlens/truthlens/internal/domain"
	"github.com/truthlens/truthlens/internal/metrics"
)

// Generator sends a prompt to a text-generation service and returns the raw reply.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// LLMNarrator turns a Generator into a Narrator with a bounded timeout,
// a circuit breaker and placeholder results on failure.
type LLMNarrator struct {
	gen     Generator
	timeout time.Duration
	cb      *gobreaker.CircuitBreaker
}

// NewLLMNarrator wraps gen. A zero timeout defaults to 20 seconds.
func NewLLMNarrator(gen Generator, timeout time.Duration) *LLMNarrator {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &LLMNarrator{
		gen:     gen,
		timeout: timeout,
		cb:      breaker.New("narrative-"+gen.Name(), breaker.Settings{}),
	}
}

// Narrate implements Narrator.
func (n *LLMNarrator) Narrate(ctx context.Context, reviews []domain.Review) Result {
	if len(reviews) == 0 {
		return Placeholder(VerdictNoReviews)
	}

	prompt, err := BuildPrompt(reviews)
	if err != nil {
		return n.failed(err)
	}

	start := time.Now()
	out, err := n.cb.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()
		return n.gen.Generate(callCtx, prompt)
	})
	metrics.ObserveExternal("narrative-"+n.gen.Name(), err, time.Since(start))
	if err != nil {
		return n.failed(err)
	}

	text := out.(string)
	if text == "" {
		slog.Warn("narrative generator returned no text", "generator", n.gen.Name())
		metrics.ObserveFallback("narrative")
		return Placeholder(VerdictUnavailable)
	}

	narrative, err := Parse(text)
	if err != nil {
		return n.failed(err)
	}
	return Result{Narrative: narrative, OK: true}
}

func (n *LLMNarrator) failed(err error) Result {
	attrs := []any{"generator", n.gen.Name(), "error", err}
	if breaker.IsOpen(err) {
		attrs = append(attrs, "circuit", "open")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		attrs = append(attrs, "timeout", n.timeout.String())
	}
	slog.Warn("narrative generation failed", attrs...)
	metrics.ObserveFallback("narrative")
	return Placeholder(VerdictFailed)
}
