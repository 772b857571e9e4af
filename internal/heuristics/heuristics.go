// Package heuristics derives fabricated-review signals from a review set.
package heuristics

import (
	"math"
	"unicode/utf8"

	"github.com/montanaflynn/stats"
)

// ShortTextRunes is the length below which a review counts as short.
const ShortTextRunes = 30

// Signals are the aggregate fraud indicators for one review set.
// They are computed once per call and never mutated.
type Signals struct {
	ReviewCount       int     `json:"review_count"`
	DuplicateCount    int     `json:"duplicate_count"`
	DuplicateFraction float64 `json:"duplicate_fraction"`
	ShortFraction     float64 `json:"short_fraction"`
	MeanTextLength    float64 `json:"mean_text_length"`
	AvgRating         float64 `json:"avg_rating"`
	RatingStd         float64 `json:"rating_std"`
	AvgSentiment      float64 `json:"avg_sentiment"`
	NormalizedRating  float64 `json:"normalized_rating"`
	Discrepancy       float64 `json:"discrepancy"`
	BotProbability    int     `json:"bot_probability"`
}

// Evaluate computes the signals for texts, their ratings and their
// sentiment polarities. All three slices are indexed by review.
func Evaluate(texts []string, ratings, sentiments []float64) Signals {
	n := len(texts)
	if n == 0 {
		return Signals{}
	}

	distinct := make(map[string]struct{}, n)
	short := 0
	totalRunes := 0
	for _, text := range texts {
		distinct[text] = struct{}{}
		runes := utf8.RuneCountInString(text)
		totalRunes += runes
		if runes < ShortTextRunes {
			short++
		}
	}

	s := Signals{
		ReviewCount:    n,
		DuplicateCount: n - len(distinct),
		MeanTextLength: float64(totalRunes) / float64(n),
		AvgRating:      mean(ratings),
		AvgSentiment:   mean(sentiments),
	}
	s.DuplicateFraction = float64(s.DuplicateCount) / float64(n)
	s.ShortFraction = float64(short) / float64(n)

	if len(ratings) >= 2 {
		if std, err := stats.StandardDeviationPopulation(ratings); err == nil {
			s.RatingStd = std
		}
	}

	s.NormalizedRating = (s.AvgRating - 2.5) / 2.5
	s.Discrepancy = math.Abs(s.NormalizedRating - s.AvgSentiment)
	s.BotProbability = botProbability(s)

	return s
}

func botProbability(s Signals) int {
	p := 60*s.DuplicateFraction + 30*s.ShortFraction

	if s.Discrepancy > 0.6 {
		p += math.Min(20, (s.Discrepancy-0.6)*50)
	}
	if s.ReviewCount >= 20 && s.RatingStd < 0.2 && s.AvgRating > 4.7 {
		p += 10
	}

	return int(math.RoundToEven(Clamp(p, 0, 100)))
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// mean is 0 for an empty sample.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m, err := stats.Mean(values)
	if err != nil {
		return 0
	}
	return m
}
