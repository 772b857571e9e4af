// Package scoring composes the trust score of a review set.
package scoring

import (
	"math"
	"strconv"

	"github.com/truthlens/truthlens/internal/domain"
	"github.com/truthlens/truthlens/internal/heuristics"
)

// Weights holds the blend weights, penalties and label thresholds.
type Weights struct {
	Sentiment float64
	Rating    float64
	Volume    float64

	// NeutralRating stands in for the rating component when no rating data exists.
	NeutralRating float64

	DiscrepancyThreshold float64
	DiscrepancyPenalty   float64 // per unit of discrepancy above the threshold

	DuplicatePenalty    float64 // per duplicate text
	MaxDuplicatePenalty float64

	LowEffortLength  float64 // mean characters per review
	LowEffortPenalty float64

	LowVolumeCount   int
	LowVolumePenalty float64

	AuthenticAt int
	ModerateAt  int
}

// DefaultWeights returns the production weights.
func DefaultWeights() Weights {
	return Weights{
		Sentiment:            0.45,
		Rating:               0.35,
		Volume:               0.20,
		NeutralRating:        50,
		DiscrepancyThreshold: 0.5,
		DiscrepancyPenalty:   30,
		DuplicatePenalty:     4,
		MaxDuplicatePenalty:  16,
		LowEffortLength:      15,
		LowEffortPenalty:     8,
		LowVolumeCount:       5,
		LowVolumePenalty:     5,
		AuthenticAt:          80,
		ModerateAt:           50,
	}
}

// Result is the scored part of an assessment plus the signals behind it.
type Result struct {
	TrustScore     int
	SentimentScore float64
	BotProbability int
	Label          domain.SafetyLabel
	Signals        heuristics.Signals

	// Base is the weighted score before penalties.
	Base float64
}

// Assessment returns the result as an assessment with an empty narrative.
func (r Result) Assessment() domain.TrustAssessment {
	return domain.TrustAssessment{
		TrustScore:     r.TrustScore,
		SentimentScore: r.SentimentScore,
		BotProbability: r.BotProbability,
		SafetyLabel:    r.Label,
		Pros:           []string{},
		Cons:           []string{},
	}
}

// Composer turns sentiments, ratings and texts into a trust score.
// It holds no mutable state and is safe for concurrent use.
type Composer struct {
	w Weights
}

// NewComposer creates a composer with the given weights.
func NewComposer(w Weights) *Composer {
	return &Composer{w: w}
}

// Weights returns the composer's weights.
func (c *Composer) Weights() Weights {
	return c.w
}

// Compose scores one review set. The three slices are indexed by review.
func (c *Composer) Compose(sentiments, ratings []float64, texts []string) Result {
	if len(texts) == 0 {
		return Result{Label: domain.LabelUnknown}
	}

	sig := heuristics.Evaluate(texts, ratings, sentiments)
	w := c.w

	sentimentComponent := (sig.AvgSentiment + 1) / 2 * 100
	ratingComponent := w.NeutralRating
	if sig.AvgRating > 0 {
		ratingComponent = sig.AvgRating / domain.MaxRating * 100
	}
	volumeComponent := VolumeComponent(sig.ReviewCount)

	base := w.Sentiment*sentimentComponent + w.Rating*ratingComponent + w.Volume*volumeComponent

	score := base
	if sig.Discrepancy > w.DiscrepancyThreshold {
		score -= (sig.Discrepancy - w.DiscrepancyThreshold) * w.DiscrepancyPenalty
	}
	if sig.DuplicateCount > 0 {
		score -= math.Min(float64(sig.DuplicateCount)*w.DuplicatePenalty, w.MaxDuplicatePenalty)
	}
	if sig.MeanTextLength < w.LowEffortLength {
		score -= w.LowEffortPenalty
	}
	if sig.ReviewCount < w.LowVolumeCount {
		score -= w.LowVolumePenalty
	}

	trust := int(math.RoundToEven(heuristics.Clamp(score, 0, 100)))

	return Result{
		TrustScore:     trust,
		SentimentScore: Round2(sig.AvgSentiment),
		BotProbability: sig.BotProbability,
		Label:          c.LabelFor(trust),
		Signals:        sig,
		Base:           base,
	}
}

// LabelFor maps a trust score to its safety label.
func (c *Composer) LabelFor(score int) domain.SafetyLabel {
	switch {
	case score >= c.w.AuthenticAt:
		return domain.LabelLikelyAuthentic
	case score >= c.w.ModerateAt:
		return domain.LabelModerateRisk
	default:
		return domain.LabelHighRisk
	}
}

// VolumeComponent is the review-volume confidence on a 0-100 scale.
func VolumeComponent(count int) float64 {
	switch {
	case count == 0:
		return 20
	case count < 5:
		return 45
	case count < 20:
		return 70
	case count < 50:
		return 85
	default:
		return 92
	}
}

// Round2 rounds to two decimals on the exact decimal value of v, so 0.065
// (stored just above the tie) becomes 0.07 and exact ties go to even.
func Round2(v float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	if err != nil {
		return v
	}
	return r
}
