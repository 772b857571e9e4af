// Package calibration applies score floors expressed as CEL rules.
package calibration

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/truthlens/truthlens/internal/domain"
	"github.com/truthlens/truthlens/internal/metrics"
)

// Engine evaluates calibration rules against a scored analysis.
type Engine struct {
	mu    sync.RWMutex
	env   *cel.Env
	rules []*compiledRule
}

type compiledRule struct {
	Config  domain.CalibrationRule
	Program cel.Program
}

// Input is what calibration rules can see.
type Input struct {
	PhishingStatus domain.DomainVerdict
	ReviewCount    int
	SentimentScore float64
	BotProbability int
	TrustScore     int
}

// Outcome is the calibrated score and the rules that matched.
type Outcome struct {
	Score   int
	Applied []string
}

// NewEngine creates an engine with no rules loaded.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("phishing_status", cel.StringType),
		cel.Variable("review_count", cel.IntType),
		cel.Variable("sentiment_score", cel.DoubleType),
		cel.Variable("bot_probability", cel.IntType),
		cel.Variable("trust_score", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Engine{env: env}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(rule domain.CalibrationRule) error {
	_, err := e.compile(rule)
	return err
}

// LoadRules replaces the loaded rules. Disabled rules are skipped. On any
// compile error the previous rules stay in place.
func (e *Engine) LoadRules(rules []domain.CalibrationRule) error {
	compiled := make([]*compiledRule, 0, len(rules))
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		c, err := e.compile(rule)
		if err != nil {
			return err
		}
		compiled = append(compiled, c)
	}

	sort.Slice(compiled, func(i, j int) bool {
		return compiled[i].Config.ID < compiled[j].Config.ID
	})

	e.mu.Lock()
	e.rules = compiled
	e.mu.Unlock()
	return nil
}

// Rules returns the loaded rules ordered by ID.
func (e *Engine) Rules() []domain.CalibrationRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]domain.CalibrationRule, len(e.rules))
	for i, r := range e.rules {
		out[i] = r.Config
	}
	return out
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// Apply raises the trust score to the highest floor among matching rules.
// A score already above every floor is unchanged. Rules that fail to
// evaluate are skipped.
func (e *Engine) Apply(ctx context.Context, in Input) Outcome {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	out := Outcome{Score: in.TrustScore}
	if len(rules) == 0 {
		return out
	}

	activation := map[string]any{
		"phishing_status": string(in.PhishingStatus),
		"review_count":    int64(in.ReviewCount),
		"sentiment_score": in.SentimentScore,
		"bot_probability": int64(in.BotProbability),
		"trust_score":     int64(in.TrustScore),
	}

	for _, rule := range rules {
		if ctx.Err() != nil {
			break
		}

		val, _, err := rule.Program.Eval(activation)
		if err != nil {
			slog.Warn("calibration rule failed", "rule_id", rule.Config.ID, "error", err)
			continue
		}
		if matched, ok := val.(types.Bool); !ok || !bool(matched) {
			continue
		}

		out.Applied = append(out.Applied, rule.Config.ID)
		if rule.Config.Floor > out.Score {
			out.Score = rule.Config.Floor
		}
		metrics.ObserveCalibration(rule.Config.ID)
	}

	return out
}

func (e *Engine) compile(rule domain.CalibrationRule) (*compiledRule, error) {
	if rule.ID == "" {
		return nil, fmt.Errorf("calibration rule id is required")
	}
	if rule.Floor < 0 || rule.Floor > 100 {
		return nil, fmt.Errorf("rule %s: floor must be within [0,100], got %d", rule.ID, rule.Floor)
	}

	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &compiledRule{Config: rule, Program: program}, nil
}
