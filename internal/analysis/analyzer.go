// Package analysis scores a review set end to end: sentiment, heuristics,
// trust score and narrative.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/truthlens/truthlens/internal/domain"
	"github.com/truthlens/truthlens/internal/metrics"
	"github.com/truthlens/truthlens/internal/narrative"
	"github.com/truthlens/truthlens/internal/scoring"
	"github.com/truthlens/truthlens/internal/sentiment"
)

// Analyzer scores review sets. It is safe for concurrent use.
type Analyzer struct {
	estimator sentiment.Estimator
	composer  *scoring.Composer
	narrator  narrative.Narrator
}

// NewAnalyzer creates an analyzer. A nil narrator disables narratives.
func NewAnalyzer(estimator sentiment.Estimator, composer *scoring.Composer, narrator narrative.Narrator) *Analyzer {
	if narrator == nil {
		narrator = narrative.Disabled{}
	}
	return &Analyzer{
		estimator: estimator,
		composer:  composer,
		narrator:  narrator,
	}
}

// Report is an assessment together with how it was produced.
type Report struct {
	Assessment  domain.TrustAssessment
	Score       scoring.Result
	Estimator   string
	NarrativeOK bool
	SentimentMs int64
	NarrativeMs int64
}

// AnalyzeReviews returns the trust assessment for reviews. It never fails.
func (a *Analyzer) AnalyzeReviews(ctx context.Context, reviews []domain.Review) domain.TrustAssessment {
	return a.Analyze(ctx, reviews).Assessment
}

// Analyze scores reviews and generates the narrative concurrently.
// The narrative never influences the scores.
func (a *Analyzer) Analyze(ctx context.Context, reviews []domain.Review) Report {
	if len(reviews) == 0 {
		return Report{
			Assessment: domain.EmptyAssessment(narrative.VerdictNoReviews),
			Score:      scoring.Result{Label: domain.LabelUnknown},
			Estimator:  a.estimator.Name(),
		}
	}

	texts := domain.Texts(reviews)
	ratings := domain.Ratings(reviews)
	for i, r := range ratings {
		ratings[i] = domain.ClampRating(r)
	}

	var (
		report Report
		story  narrative.Result
		scored bool
		told   bool
	)
	report.Estimator = a.estimator.Name()

	// A panicking collaborator fails its own goroutine only; Wait reports it
	// and the missing half is filled with its fallback below. The group has
	// no shared context so one failure does not cancel the other call.
	var g errgroup.Group

	g.Go(func() (err error) {
		defer recoverAs("narrative", &err)
		start := time.Now()
		story = a.narrator.Narrate(ctx, reviews)
		report.NarrativeMs = time.Since(start).Milliseconds()
		told = true
		return nil
	})

	g.Go(func() (err error) {
		defer recoverAs("sentiment", &err)
		start := time.Now()
		polarities := a.estimate(ctx, texts)
		report.SentimentMs = time.Since(start).Milliseconds()
		report.Score = a.composer.Compose(polarities, ratings, texts)
		scored = true
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("review analysis degraded", "reviews", len(reviews), "error", err)
	}
	if !scored {
		metrics.ObserveFallback("sentiment")
		report.Score = a.composer.Compose(make([]float64, len(texts)), ratings, texts)
	}
	if !told {
		metrics.ObserveFallback("narrative")
		story = narrative.Placeholder(narrative.VerdictFailed)
	}

	report.NarrativeOK = story.OK
	report.Assessment = report.Score.Assessment().WithNarrative(story.Narrative)
	return report
}

func recoverAs(stage string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s panicked: %v", stage, r)
	}
}

// estimate returns neutral polarities when the estimator fails outright.
func (a *Analyzer) estimate(ctx context.Context, texts []string) []float64 {
	polarities, err := a.estimator.Estimate(ctx, texts)
	if err == nil && len(polarities) == len(texts) {
		return polarities
	}

	slog.Error("sentiment estimation failed, scoring with neutral polarity",
		"estimator", a.estimator.Name(),
		"texts", len(texts),
		"error", err,
	)
	metrics.ObserveFallback("sentiment")
	return make([]float64, len(texts))
}
