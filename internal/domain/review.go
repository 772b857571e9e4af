// Package domain defines the core interfaces and types for TruthLens.
package domain

// Review is one customer review of a product listing.
// Reviews have no identity beyond their position in the submitted sequence.
type Review struct {
	Text     string  `json:"text"`
	Rating   float64 `json:"rating"` // stars, 0-5
	Date     string  `json:"date"`
	Verified bool    `json:"verified"`
	Platform string  `json:"platform"`
}

// Star rating bounds.
const (
	MinRating = 0.0
	MaxRating = 5.0
)

// Texts returns the review texts in input order.
func Texts(reviews []Review) []string {
	out := make([]string, len(reviews))
	for i, r := range reviews {
		out[i] = r.Text
	}
	return out
}

// Ratings returns the star ratings in input order.
func Ratings(reviews []Review) []float64 {
	out := make([]float64, len(reviews))
	for i, r := range reviews {
		out[i] = r.Rating
	}
	return out
}

// ClampRating forces a rating into the [0,5] star scale.
func ClampRating(r float64) float64 {
	if r < MinRating {
		return MinRating
	}
	if r > MaxRating {
		return MaxRating
	}
	return r
}
