package domain

// SafetyLabel is the qualitative trust band of a listing.
type SafetyLabel string

const (
	LabelLikelyAuthentic SafetyLabel = "Likely Authentic"
	LabelModerateRisk    SafetyLabel = "Moderate Risk"
	LabelHighRisk        SafetyLabel = "High Risk / Caution"
	LabelUnknown         SafetyLabel = "Unknown"
)

// DomainVerdict classifies the registrable domain of a listing URL.
type DomainVerdict string

const (
	VerdictSafe            DomainVerdict = "Safe"
	VerdictPhishingWarning DomainVerdict = "Phishing Warning"
	VerdictSuspicious      DomainVerdict = "Suspicious"
	VerdictUnknown         DomainVerdict = "Unknown"
)

// Narrative is the human-readable part of an assessment.
type Narrative struct {
	Pros    []string `json:"pros"`
	Cons    []string `json:"cons"`
	Verdict string   `json:"verdict"`
}

// TrustAssessment is the scored result for a set of reviews.
type TrustAssessment struct {
	TrustScore     int         `json:"trust_score"`     // 0-100
	SentimentScore float64     `json:"sentiment_score"` // -1..1, two decimals
	BotProbability int         `json:"bot_probability"` // 0-100
	SafetyLabel    SafetyLabel `json:"safety_label"`
	Pros           []string    `json:"pros"`
	Cons           []string    `json:"cons"`
	Verdict        string      `json:"verdict"`
}

// EmptyAssessment is the fixed result for a review set with no reviews.
func EmptyAssessment(verdict string) TrustAssessment {
	return TrustAssessment{
		TrustScore:     0,
		SentimentScore: 0.0,
		BotProbability: 0,
		SafetyLabel:    LabelUnknown,
		Pros:           []string{},
		Cons:           []string{},
		Verdict:        verdict,
	}
}

// WithNarrative copies the narrative fields into the assessment.
func (a TrustAssessment) WithNarrative(n Narrative) TrustAssessment {
	a.Pros = nonNil(n.Pros)
	a.Cons = nonNil(n.Cons)
	a.Verdict = n.Verdict
	return a
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
