// Package siterisk scores listings that carry no reviews from their domain
// verdict and the page text.
package siterisk

import (
	"sort"
	"strings"
	"sync"

	"github.com/cloudflare/ahocorasick"

	"github.com/truthlens/truthlens/internal/domain"
	"github.com/truthlens/truthlens/internal/heuristics"
	"github.com/truthlens/truthlens/internal/scoring"
)

// Score adjustments.
const (
	RedFlagPenalty    = 8
	MaxRedFlagPenalty = 40
	TrustBonus        = 3
	MaxTrustBonus     = 15
)

// DefaultRedFlags are phrases typical of scam storefronts.
func DefaultRedFlags() []string {
	return []string{
		"100% free",
		"act now",
		"limited time offer",
		"wire transfer",
		"western union",
		"bitcoin only",
		"no refund",
		"gift card",
		"lowest price guaranteed",
		"only today",
	}
}

// DefaultTrustSignals are phrases typical of legitimate shops.
func DefaultTrustSignals() []string {
	return []string{
		"return policy",
		"privacy policy",
		"customer service",
		"secure checkout",
		"contact us",
		"terms and conditions",
	}
}

var baseScores = map[domain.DomainVerdict]int{
	domain.VerdictSafe:            75,
	domain.VerdictSuspicious:      45,
	domain.VerdictUnknown:         40,
	domain.VerdictPhishingWarning: 10,
}

var verdicts = map[domain.SafetyLabel]string{
	domain.LabelLikelyAuthentic: "No reviews to analyze, but the site looks like an established marketplace.",
	domain.LabelModerateRisk:    "No reviews to analyze; verify the seller before buying.",
	domain.LabelHighRisk:        "No reviews to analyze and the site shows warning signs; avoid purchasing.",
	domain.LabelUnknown:         "No reviews found to analyze.",
}

// Assessment is the site-level result.
type Assessment struct {
	Score        int
	Label        domain.SafetyLabel
	Pros         []string
	Cons         []string
	Verdict      string
	RedFlags     []string
	TrustSignals []string
}

// TrustAssessment converts the result into the review-assessment shape.
func (a Assessment) TrustAssessment() domain.TrustAssessment {
	return domain.TrustAssessment{
		TrustScore:     a.Score,
		SentimentScore: 0,
		BotProbability: 0,
		SafetyLabel:    a.Label,
		Pros:           a.Pros,
		Cons:           a.Cons,
		Verdict:        a.Verdict,
	}
}

// Assessor scans page text for red-flag and trust phrases.
type Assessor struct {
	// ahocorasick.Matcher keeps per-call state, so Match is serialised.
	mu      sync.Mutex
	matcher *ahocorasick.Matcher

	phrases  []string
	redFlag  []bool
	labelFor func(int) domain.SafetyLabel
}

// NewAssessor creates an assessor with the default phrase lists and the
// composer's label thresholds.
func NewAssessor() *Assessor {
	return NewAssessorWith(DefaultRedFlags(), DefaultTrustSignals(), scoring.NewComposer(scoring.DefaultWeights()).LabelFor)
}

// NewAssessorWith creates an assessor with custom phrase lists. Phrases
// are matched case-insensitively.
func NewAssessorWith(redFlags, trustSignals []string, labelFor func(int) domain.SafetyLabel) *Assessor {
	a := &Assessor{labelFor: labelFor}
	seen := make(map[string]bool)
	add := func(p string, red bool) {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		a.phrases = append(a.phrases, p)
		a.redFlag = append(a.redFlag, red)
	}
	for _, p := range redFlags {
		add(p, true)
	}
	for _, p := range trustSignals {
		add(p, false)
	}
	if len(a.phrases) > 0 {
		a.matcher = ahocorasick.NewStringMatcher(a.phrases)
	}
	return a
}

// Assess scores a listing without reviews.
func (a *Assessor) Assess(verdict domain.DomainVerdict, pageText string) Assessment {
	base, ok := baseScores[verdict]
	if !ok {
		base = baseScores[domain.VerdictUnknown]
	}

	red, trust := a.scan(pageText)

	penalty := min(len(red)*RedFlagPenalty, MaxRedFlagPenalty)
	bonus := min(len(trust)*TrustBonus, MaxTrustBonus)
	score := int(heuristics.Clamp(float64(base-penalty+bonus), 0, 100))

	label := a.labelFor(score)
	if verdict == domain.VerdictUnknown && strings.TrimSpace(pageText) == "" {
		label = domain.LabelUnknown
	}

	pros := []string{}
	if verdict == domain.VerdictSafe {
		pros = append(pros, "Official marketplace domain")
	}
	for _, p := range trust {
		pros = append(pros, "Page mentions "+p)
	}

	cons := []string{}
	switch verdict {
	case domain.VerdictPhishingWarning:
		cons = append(cons, "Domain resembles a known marketplace (possible typosquatting)")
	case domain.VerdictSuspicious:
		cons = append(cons, "Domain is not a recognised marketplace")
	case domain.VerdictUnknown:
		cons = append(cons, "Listing URL could not be verified")
	}
	for _, p := range red {
		cons = append(cons, "Page uses red-flag phrase \""+p+"\"")
	}

	return Assessment{
		Score:        score,
		Label:        label,
		Pros:         pros,
		Cons:         cons,
		Verdict:      verdicts[label],
		RedFlags:     red,
		TrustSignals: trust,
	}
}

// scan returns the distinct red-flag and trust phrases found in text, sorted.
func (a *Assessor) scan(text string) (red, trust []string) {
	if a.matcher == nil || text == "" {
		return nil, nil
	}

	lowered := []byte(strings.ToLower(text))

	a.mu.Lock()
	hits := a.matcher.Match(lowered)
	a.mu.Unlock()

	for _, idx := range hits {
		if idx < 0 || idx >= len(a.phrases) {
			continue
		}
		if a.redFlag[idx] {
			red = append(red, a.phrases[idx])
		} else {
			trust = append(trust, a.phrases[idx])
		}
	}
	sort.Strings(red)
	sort.Strings(trust)
	return red, trust
}
