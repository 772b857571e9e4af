// Package sentiment maps review texts to polarity values in [-1, 1].
package sentiment

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/truthlens/truthlens/internal/domain"
	"github.com/truthlens/truthlens/internal/metrics"
)

// ErrUnavailable is returned when an estimator cannot score a batch.
var ErrUnavailable = errors.New("sentiment estimator unavailable")

// Estimator scores a batch of texts. The result has the same length and
// order as the input.
type Estimator interface {
	Name() string
	Estimate(ctx context.Context, texts []string) ([]float64, error)
}

// FallbackEstimator scores with Primary and, when Primary fails for any
// reason, rescores the whole batch with Fallback. Results are never mixed.
type FallbackEstimator struct {
	Primary  Estimator
	Fallback Estimator
}

// Name identifies the composite.
func (f *FallbackEstimator) Name() string {
	return f.Primary.Name() + "+" + f.Fallback.Name()
}

// Estimate implements Estimator.
func (f *FallbackEstimator) Estimate(ctx context.Context, texts []string) ([]float64, error) {
	out, err := f.Primary.Estimate(ctx, texts)
	if err == nil && len(out) == len(texts) {
		return out, nil
	}
	if err == nil {
		err = errors.New("result count mismatch")
	}

	slog.Warn("primary sentiment estimator failed, using fallback",
		"primary", f.Primary.Name(),
		"fallback", f.Fallback.Name(),
		"texts", len(texts),
		"error", err,
	)
	metrics.ObserveFallback("sentiment")

	return f.Fallback.Estimate(ctx, texts)
}

// Select picks the estimator once at process start. A configured model
// endpoint that answers its health check is used with the lexicon as
// fallback; otherwise the lexicon is used alone.
func Select(ctx context.Context, cfg domain.SentimentConfig, client *http.Client) Estimator {
	lexicon := NewLexiconEstimator()

	if cfg.ModelURL == "" {
		slog.Info("sentiment estimator selected", "estimator", lexicon.Name(), "reason", "no model configured")
		return lexicon
	}

	model := NewModelEstimator(cfg.ModelURL, cfg.Timeout, client)
	if err := model.Health(ctx); err != nil {
		slog.Warn("sentiment model unavailable, using lexicon",
			"model_url", cfg.ModelURL,
			"error", err,
		)
		return lexicon
	}

	est := &FallbackEstimator{Primary: model, Fallback: lexicon}
	slog.Info("sentiment estimator selected", "estimator", est.Name(), "model_url", cfg.ModelURL)
	return est
}

func clampPolarity(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
