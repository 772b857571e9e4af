package sentiment

import (
	"context"
	"log/slog"

	"github.com/jonreiter/govader"
)

// LexiconEstimator scores texts with the VADER lexicon. It needs no
// network and never fails a batch.
type LexiconEstimator struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

// NewLexiconEstimator loads the lexicon.
func NewLexiconEstimator() *LexiconEstimator {
	return &LexiconEstimator{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

// Name implements Estimator.
func (l *LexiconEstimator) Name() string { return "lexicon" }

// Estimate implements Estimator.
func (l *LexiconEstimator) Estimate(ctx context.Context, texts []string) ([]float64, error) {
	out := make([]float64, len(texts))
	for i, text := range texts {
		out[i] = l.score(text)
	}
	return out, nil
}

// score returns the compound polarity of text, or 0 if the analyzer fails.
func (l *LexiconEstimator) score(text string) (polarity float64) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("lexicon scoring failed", "error", r)
			polarity = 0
		}
	}()
	return clampPolarity(l.analyzer.PolarityScores(text).Compound)
}
