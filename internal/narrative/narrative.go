// Package narrative produces pros, cons and a verdict sentence for a review set
// through an external text-generation service.
//
// Narratives are optional: every failure degrades to a placeholder result and
// never affects scores.
package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/truthlens/truthlens/internal/domain"
)

// MaxReviews is the number of leading reviews sent to the generator.
const MaxReviews = 15

// Placeholder verdicts.
const (
	VerdictUnavailable = "Analysis unavailable"
	VerdictFailed      = "AI Analysis failed (Statistical mode only)."
	VerdictMissing     = "No verdict provided."
	VerdictNoReviews   = "No reviews found to analyze."
)

var (
	// ErrEmptyResponse is returned when the generator answers with no text.
	ErrEmptyResponse = errors.New("empty generator response")

	fenceOpen  = regexp.MustCompile("```[a-zA-Z]*\n")
	fenceClose = regexp.MustCompile("```")
)

// Result is a narrative or a placeholder. Callers branch on OK.
type Result struct {
	domain.Narrative
	OK     bool
	Cached bool
}

// Narrator produces a narrative for a review set. It never fails; failures
// are reported through Result.OK.
type Narrator interface {
	Narrate(ctx context.Context, reviews []domain.Review) Result
}

// Placeholder returns a failed result with the given verdict.
func Placeholder(verdict string) Result {
	return Result{
		Narrative: domain.Narrative{
			Pros:    []string{},
			Cons:    []string{},
			Verdict: verdict,
		},
	}
}

// Disabled is the narrator used when no generator is configured.
type Disabled struct{}

// Narrate implements Narrator.
func (Disabled) Narrate(context.Context, []domain.Review) Result {
	return Placeholder(VerdictUnavailable)
}

// Head returns at most the first MaxReviews reviews.
func Head(reviews []domain.Review) []domain.Review {
	if len(reviews) > MaxReviews {
		return reviews[:MaxReviews]
	}
	return reviews
}

const promptTemplate = `Act as an E-Commerce Fraud Detection Expert. Analyze these reviews:
%s

Your Tasks:
1. Summarize the main pros buyers mention.
2. Summarize the main cons / complaints buyers mention.
3. Give a one-sentence buying advice verdict.

Do NOT estimate bot probability. Focus only on pros, cons, and verdict.

Output strictly VALID JSON with this structure and nothing else:
{
    "pros": ["short point 1", "short point 2"],
    "cons": ["short point 1", "short point 2"],
    "verdict": "<one sentence buying advice>"
}
`

// BuildPrompt renders the generation prompt for the leading reviews.
func BuildPrompt(reviews []domain.Review) (string, error) {
	data, err := json.MarshalIndent(Head(reviews), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode reviews: %w", err)
	}
	return fmt.Sprintf(promptTemplate, data), nil
}

// CleanJSON strips Markdown code fences around a JSON reply.
func CleanJSON(text string) string {
	text = fenceOpen.ReplaceAllString(text, "")
	text = fenceClose.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

type reply struct {
	Pros    []string `json:"pros"`
	Cons    []string `json:"cons"`
	Verdict *string  `json:"verdict"`
}

// Parse decodes a generator reply into a narrative.
// A reply without a verdict gets VerdictMissing.
func Parse(text string) (domain.Narrative, error) {
	var r reply
	if err := json.Unmarshal([]byte(CleanJSON(text)), &r); err != nil {
		return domain.Narrative{}, fmt.Errorf("failed to parse narrative: %w", err)
	}

	n := domain.Narrative{
		Pros:    r.Pros,
		Cons:    r.Cons,
		Verdict: VerdictMissing,
	}
	if n.Pros == nil {
		n.Pros = []string{}
	}
	if n.Cons == nil {
		n.Cons = []string{}
	}
	if r.Verdict != nil {
		n.Verdict = *r.Verdict
	}
	return n, nil
}
