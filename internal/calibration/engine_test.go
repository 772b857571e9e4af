package calibration

import (
	"context"
	"testing"

	"github.com/truthlens/truthlens/internal/domain"
)

func newDefaultEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	if err := engine.LoadRules(domain.DefaultCalibrationRules()); err != nil {
		t.Fatalf("failed to load default rules: %v", err)
	}
	return engine
}

func TestLoadDefaultRules(t *testing.T) {
	engine := newDefaultEngine(t)
	if engine.RulesCount() != 2 {
		t.Errorf("expected 2 rules, got %d", engine.RulesCount())
	}
	rules := engine.Rules()
	if rules[0].ID != "safe-high-volume" || rules[1].ID != "safe-mid-volume" {
		t.Errorf("rules not ordered by id: %v", rules)
	}
}

func TestApply(t *testing.T) {
	engine := newDefaultEngine(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		in        Input
		wantScore int
		wantRules int
	}{
		{
			name:      "HighVolumeFloor",
			in:        Input{PhishingStatus: domain.VerdictSafe, ReviewCount: 60, SentimentScore: 0.5, BotProbability: 20, TrustScore: 64},
			wantScore: 80,
			wantRules: 2,
		},
		{
			name:      "MidVolumeFloor",
			in:        Input{PhishingStatus: domain.VerdictSafe, ReviewCount: 25, SentimentScore: 0.35, BotProbability: 70, TrustScore: 55},
			wantScore: 70,
			wantRules: 1,
		},
		{
			name:      "ScoreAlreadyAboveFloor",
			in:        Input{PhishingStatus: domain.VerdictSafe, ReviewCount: 80, SentimentScore: 0.9, BotProbability: 0, TrustScore: 91},
			wantScore: 91,
			wantRules: 2,
		},
		{
			name:      "NotSafeDomain",
			in:        Input{PhishingStatus: domain.VerdictSuspicious, ReviewCount: 60, SentimentScore: 0.5, BotProbability: 20, TrustScore: 64},
			wantScore: 64,
		},
		{
			name:      "TooManyBots",
			in:        Input{PhishingStatus: domain.VerdictSafe, ReviewCount: 60, SentimentScore: 0.5, BotProbability: 71, TrustScore: 40},
			wantScore: 40,
		},
		{
			name:      "SentimentAtBoundary",
			in:        Input{PhishingStatus: domain.VerdictSafe, ReviewCount: 20, SentimentScore: 0.3, BotProbability: 0, TrustScore: 60},
			wantScore: 60,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.Apply(ctx, tt.in)
			if got.Score != tt.wantScore {
				t.Errorf("score = %d, want %d", got.Score, tt.wantScore)
			}
			if len(got.Applied) != tt.wantRules {
				t.Errorf("applied = %v, want %d rules", got.Applied, tt.wantRules)
			}
		})
	}
}

func TestLoadRulesRejectsInvalid(t *testing.T) {
	engine := newDefaultEngine(t)

	tests := []domain.CalibrationRule{
		{ID: "syntax", Expression: "this is not valid CEL !!!", Floor: 50, Enabled: true},
		{ID: "non-bool", Expression: "trust_score + 10", Floor: 50, Enabled: true},
		{ID: "unknown-var", Expression: "price > 10.0", Floor: 50, Enabled: true},
		{ID: "floor", Expression: "true", Floor: 120, Enabled: true},
		{ID: "", Expression: "true", Floor: 10, Enabled: true},
	}

	for _, rule := range tests {
		if err := engine.LoadRules([]domain.CalibrationRule{rule}); err == nil {
			t.Errorf("rule %q: expected load error", rule.ID)
		}
	}

	if engine.RulesCount() != 2 {
		t.Errorf("failed loads must keep previous rules, got %d", engine.RulesCount())
	}
}

func TestDisabledRulesSkipped(t *testing.T) {
	engine, _ := NewEngine()
	err := engine.LoadRules([]domain.CalibrationRule{
		{ID: "off", Expression: "true", Floor: 99, Enabled: false},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := engine.Apply(context.Background(), Input{TrustScore: 10})
	if got.Score != 10 || len(got.Applied) != 0 {
		t.Errorf("disabled rule applied: %+v", got)
	}
}

func TestRuntimeErrorSkipsRule(t *testing.T) {
	engine, _ := NewEngine()
	err := engine.LoadRules([]domain.CalibrationRule{
		{ID: "div", Expression: "100 / (review_count - review_count) > 1", Floor: 90, Enabled: true},
		{ID: "ok", Expression: "review_count > 0", Floor: 30, Enabled: true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := engine.Apply(context.Background(), Input{ReviewCount: 3, TrustScore: 10})
	if got.Score != 30 || len(got.Applied) != 1 || got.Applied[0] != "ok" {
		t.Errorf("unexpected outcome: %+v", got)
	}
}

func TestValidateRule(t *testing.T) {
	engine, _ := NewEngine()
	if err := engine.ValidateRule(domain.CalibrationRule{ID: "x", Expression: `phishing_status == "Safe"`, Floor: 10}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if engine.RulesCount() != 0 {
		t.Error("validation must not load the rule")
	}
}
