package domain

import (
	"time"
)

// AnalysisRequest is a listing submitted for assessment.
type AnalysisRequest struct {
	URL      string   `json:"url"`
	Title    string   `json:"title"`
	Reviews  []Review `json:"reviews"`
	PageText string   `json:"page_text,omitempty"`
}

// DefaultTitle is used when a request carries no product title.
const DefaultTitle = "Unknown Product"

// Analysis sources.
const (
	SourceReviews = "reviews" // scored from the review set
	SourceSite    = "site"    // no reviews, scored from domain and page text
)

// Analysis is the complete, stored result for one listing.
type Analysis struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenantId"`
	URL            string          `json:"url"`
	Title          string          `json:"title"`
	Source         string          `json:"source"`
	ReviewCount    int             `json:"reviewCount"`
	PhishingStatus DomainVerdict   `json:"phishingStatus"`
	Assessment     TrustAssessment `json:"assessment"`

	// BaseTrustScore is the score before calibration floors were applied.
	BaseTrustScore int `json:"baseTrustScore"`

	// CalibrationRules lists the IDs of the calibration rules that matched.
	CalibrationRules []string `json:"calibrationRules,omitempty"`

	Timestamp time.Time        `json:"timestamp"`
	Metadata  AnalysisMetadata `json:"metadata"`
}

// AnalysisMetadata contains processing information.
type AnalysisMetadata struct {
	TraceID       string `json:"traceId"`
	Estimator     string `json:"estimator,omitempty"`
	NarrativeOK   bool   `json:"narrativeOk"`
	SentimentMs   int64  `json:"sentimentMs"`
	NarrativeMs   int64  `json:"narrativeMs"`
	TotalMs       int64  `json:"totalMs"`
	EngineVersion string `json:"engineVersion"`
}

// AnalysisResponse is the API response for a listing assessment.
type AnalysisResponse struct {
	AnalysisID     string        `json:"analysis_id"`
	TrustScore     int           `json:"trust_score"`
	SentimentScore float64       `json:"sentiment_score"`
	BotProbability int           `json:"bot_probability"`
	SafetyLabel    SafetyLabel   `json:"safety_label"`
	Pros           []string      `json:"pros"`
	Cons           []string      `json:"cons"`
	Verdict        string        `json:"verdict"`
	PhishingStatus DomainVerdict `json:"phishing_status"`
}

// ToResponse converts an Analysis to an API response.
func (a *Analysis) ToResponse() *AnalysisResponse {
	return &AnalysisResponse{
		AnalysisID:     a.ID,
		TrustScore:     a.Assessment.TrustScore,
		SentimentScore: a.Assessment.SentimentScore,
		BotProbability: a.Assessment.BotProbability,
		SafetyLabel:    a.Assessment.SafetyLabel,
		Pros:           nonNil(a.Assessment.Pros),
		Cons:           nonNil(a.Assessment.Cons),
		Verdict:        a.Assessment.Verdict,
		PhishingStatus: a.PhishingStatus,
	}
}

// IsAlert reports whether the analysis should raise an alert event.
func (a *Analysis) IsAlert() bool {
	return a.PhishingStatus == VerdictPhishingWarning || a.Assessment.SafetyLabel == LabelHighRisk
}
