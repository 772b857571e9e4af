package scoring

import (
	"fmt"
	"testing"

	"github.com/truthlens/truthlens/internal/domain"
)

func longTexts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("Review %d: arrived on time and matches the description well.", i)
	}
	return out
}

func filled(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestComposeEmpty(t *testing.T) {
	c := NewComposer(DefaultWeights())
	r := c.Compose(nil, nil, nil)

	a := r.Assessment()
	if a.TrustScore != 0 || a.SentimentScore != 0 || a.BotProbability != 0 {
		t.Errorf("expected zero scores, got %+v", a)
	}
	if a.SafetyLabel != domain.LabelUnknown {
		t.Errorf("expected Unknown label, got %q", a.SafetyLabel)
	}
	if a.Pros == nil || a.Cons == nil {
		t.Error("pros and cons must be empty lists, not nil")
	}
}

func TestCompose(t *testing.T) {
	c := NewComposer(DefaultWeights())

	tests := []struct {
		name       string
		sentiments []float64
		ratings    []float64
		texts      []string
		wantScore  int
		wantLabel  domain.SafetyLabel
		wantBot    int
	}{
		{
			// base 40.5 + 32.2 + 17 = 89.7
			name:       "HealthyListing",
			sentiments: filled(0.8, 25),
			ratings:    filled(4.6, 25),
			texts:      longTexts(25),
			wantScore:  90,
			wantLabel:  domain.LabelLikelyAuthentic,
			wantBot:    0,
		},
		{
			// base 94, duplicate penalty capped at 16
			name:       "IdenticalFiveStarReviews",
			sentiments: filled(1, 10),
			ratings:    filled(5, 10),
			texts:      repeat("This product is absolutely wonderful, would buy again!", 10),
			wantScore:  78,
			wantLabel:  domain.LabelModerateRisk,
			wantBot:    54,
		},
		{
			// base 0 + 35 + 17 = 52, discrepancy 2 costs 45
			name:       "MaximumDiscrepancy",
			sentiments: filled(-1, 20),
			ratings:    filled(5, 20),
			texts:      longTexts(20),
			wantScore:  7,
			wantLabel:  domain.LabelHighRisk,
			wantBot:    30,
		},
		{
			// base 22.5 + 17.5 (neutral prior) + 14 = 54, discrepancy 1 costs 15
			name:       "NoRatings",
			sentiments: filled(0, 5),
			ratings:    filled(0, 5),
			texts:      longTexts(5),
			wantScore:  39,
			wantLabel:  domain.LabelHighRisk,
			wantBot:    20,
		},
		{
			// base 22.5 + 21 + 9 = 52.5, low effort -8, low volume -5 = 39.5
			name:       "FewShortReviewsRoundHalfEven",
			sentiments: filled(0, 3),
			ratings:    filled(3, 3),
			texts:      []string{"ok", "meh", "fine"},
			wantScore:  40,
			wantLabel:  domain.LabelHighRisk,
			wantBot:    30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := c.Compose(tt.sentiments, tt.ratings, tt.texts)
			if r.TrustScore != tt.wantScore {
				t.Errorf("trust score = %d, want %d (base %.4f)", r.TrustScore, tt.wantScore, r.Base)
			}
			if r.Label != tt.wantLabel {
				t.Errorf("label = %q, want %q", r.Label, tt.wantLabel)
			}
			if r.BotProbability != tt.wantBot {
				t.Errorf("bot probability = %d, want %d", r.BotProbability, tt.wantBot)
			}
		})
	}
}

func TestSentimentScoreRounding(t *testing.T) {
	c := NewComposer(DefaultWeights())
	r := c.Compose([]float64{0.123, 0.456, 0.789}, filled(4, 3), longTexts(3))
	if r.SentimentScore != 0.46 {
		t.Errorf("expected 0.46, got %v", r.SentimentScore)
	}
}

func TestRound2(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.065, 0.07},
		{0.125, 0.12},
		{0.375, 0.38},
		{-0.065, -0.07},
		{1.005, 1},
		{0.456, 0.46},
		{-1, -1},
	}

	for _, tt := range tests {
		if got := Round2(tt.in); got != tt.want {
			t.Errorf("Round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSentimentScoreNearTie(t *testing.T) {
	c := NewComposer(DefaultWeights())
	r := c.Compose([]float64{0.13, 0}, filled(4, 2), longTexts(2))
	if r.SentimentScore != 0.07 {
		t.Errorf("expected 0.07, got %v", r.SentimentScore)
	}
}

func TestScoreBounds(t *testing.T) {
	c := NewComposer(DefaultWeights())

	for _, s := range []float64{-1, -0.5, 0, 0.5, 1} {
		for _, rating := range []float64{0, 1, 2.5, 4, 5} {
			for _, n := range []int{1, 4, 19, 49, 60} {
				texts := repeat("x", n)
				r := c.Compose(filled(s, n), filled(rating, n), texts)
				if r.TrustScore < 0 || r.TrustScore > 100 {
					t.Errorf("trust score %d out of range (s=%v rating=%v n=%d)", r.TrustScore, s, rating, n)
				}
				if r.BotProbability < 0 || r.BotProbability > 100 {
					t.Errorf("bot probability %d out of range (s=%v rating=%v n=%d)", r.BotProbability, s, rating, n)
				}
			}
		}
	}
}

// Raising sentiment never lowers the score while sentiment stays within
// the discrepancy threshold above the normalized rating. With ratings of
// 3.75 stars or more that covers the whole polarity range.
func TestComposeMonotonicInSentiment(t *testing.T) {
	c := NewComposer(DefaultWeights())
	texts := longTexts(12)

	for _, rating := range []float64{3.75, 4, 4.5, 5} {
		prev := -1
		for i := 0; i <= 20; i++ {
			s := -1 + float64(i)*0.1
			r := c.Compose(filled(s, 12), filled(rating, 12), texts)
			if r.TrustScore < prev {
				t.Errorf("rating %v: score dropped from %d to %d at sentiment %.1f", rating, prev, r.TrustScore, s)
			}
			prev = r.TrustScore
		}
	}
}

func TestIdempotent(t *testing.T) {
	c := NewComposer(DefaultWeights())
	sentiments := []float64{0.3, -0.2, 0.9, 0.1}
	ratings := []float64{4, 2, 5, 3}
	texts := []string{"fine product overall", "not great", "superb quality and fast", "fine product overall"}

	first := c.Compose(sentiments, ratings, texts)
	second := c.Compose(sentiments, ratings, texts)
	if first != second {
		t.Errorf("results differ: %+v vs %+v", first, second)
	}
}

func TestVolumeComponent(t *testing.T) {
	tests := map[int]float64{0: 20, 1: 45, 4: 45, 5: 70, 19: 70, 20: 85, 49: 85, 50: 92, 500: 92}
	for n, want := range tests {
		if got := VolumeComponent(n); got != want {
			t.Errorf("VolumeComponent(%d) = %v, want %v", n, got, want)
		}
	}
}

func TestLabelFor(t *testing.T) {
	c := NewComposer(DefaultWeights())
	tests := map[int]domain.SafetyLabel{
		100: domain.LabelLikelyAuthentic,
		80:  domain.LabelLikelyAuthentic,
		79:  domain.LabelModerateRisk,
		50:  domain.LabelModerateRisk,
		49:  domain.LabelHighRisk,
		0:   domain.LabelHighRisk,
	}
	for score, want := range tests {
		if got := c.LabelFor(score); got != want {
			t.Errorf("LabelFor(%d) = %q, want %q", score, got, want)
		}
	}
}

func repeat(text string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = text
	}
	return out
}
