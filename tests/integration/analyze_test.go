//go:build integration
// +build integration

// Package integration provides end-to-end tests against a running TruthLens server.
//
// The pipeline under test:
//
//	Listing URL → Domain check → Sentiment + Heuristics → Trust score → Calibration → Narrative
//
// Run with:
//
//	go run ./cmd/truthlens &
//	go test -tags=integration -v ./tests/integration/...
//
// Set TRUTHLENS_TEST_URL to point at a different server. Tests that need
// persistence skip when the server runs with TRUTHLENS_REPOSITORY=none.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

// TestConfig holds test environment configuration
type TestConfig struct {
	BaseURL  string
	TenantID string
}

func getTestConfig() TestConfig {
	baseURL := os.Getenv("TRUTHLENS_TEST_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	return TestConfig{
		BaseURL:  baseURL,
		TenantID: "integration-tenant",
	}
}

type Review struct {
	Text   string  `json:"text"`
	Rating float64 `json:"rating"`
}

type AnalyzeRequest struct {
	URL     string   `json:"url"`
	Title   string   `json:"title,omitempty"`
	Reviews []Review `json:"reviews"`
}

type AnalyzeResponse struct {
	AnalysisID     string   `json:"analysis_id"`
	TrustScore     int      `json:"trust_score"`
	SentimentScore float64  `json:"sentiment_score"`
	BotProbability int      `json:"bot_probability"`
	SafetyLabel    string   `json:"safety_label"`
	Pros           []string `json:"pros"`
	Cons           []string `json:"cons"`
	Verdict        string   `json:"verdict"`
	PhishingStatus string   `json:"phishing_status"`
}

func send(t *testing.T, config TestConfig, method, path string, body any, tenant string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequest(method, config.BaseURL+path, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if tenant != "" {
		httpReq.Header.Set("X-Tenant-ID", tenant)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		t.Fatalf("Request failed (is TruthLens running at %s?): %v", config.BaseURL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp.StatusCode, respBody
}

func analyze(t *testing.T, config TestConfig, req AnalyzeRequest) AnalyzeResponse {
	t.Helper()

	status, body := send(t, config, http.MethodPost, "/analyze", req, config.TenantID)
	if status != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", status, string(body))
	}

	var result AnalyzeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("Failed to unmarshal response: %v (body: %s)", err, string(body))
	}
	return result
}

func repeated(text string, rating float64, n int) []Review {
	out := make([]Review, n)
	for i := range out {
		out[i] = Review{Text: text, Rating: rating}
	}
	return out
}

// ============================================================================
// SCENARIO 1: Healthy listing on a known marketplace
// ============================================================================

func TestHealthyListing_Authentic(t *testing.T) {
	config := getTestConfig()

	var reviews []Review
	for i := 0; i < 25; i++ {
		reviews = append(reviews, Review{
			Text:   fmt.Sprintf("Review %d: excellent build quality, works great and I love the battery life.", i),
			Rating: []float64{5, 4, 5, 4, 5}[i%5],
		})
	}

	result := analyze(t, config, AnalyzeRequest{
		URL:     "https://www.amazon.com/dp/B0HEALTHY",
		Title:   "Wireless Earbuds",
		Reviews: reviews,
	})

	if result.PhishingStatus != "Safe" {
		t.Errorf("Expected Safe domain, got %q", result.PhishingStatus)
	}
	if result.SafetyLabel == "High Risk / Caution" {
		t.Errorf("Expected a healthy listing not to be high risk (score %d)", result.TrustScore)
	}
	if result.SentimentScore <= 0 {
		t.Errorf("Expected positive sentiment, got %.2f", result.SentimentScore)
	}
	if result.BotProbability > 30 {
		t.Errorf("Expected low bot probability for distinct long reviews, got %d", result.BotProbability)
	}
	if result.Verdict == "" {
		t.Error("Expected a verdict")
	}
}

// ============================================================================
// SCENARIO 2: Templated five-star reviews
// ============================================================================

func TestDuplicateReviews_HighBotProbability(t *testing.T) {
	config := getTestConfig()

	result := analyze(t, config, AnalyzeRequest{
		URL:     "https://www.ebay.com/itm/templated",
		Reviews: repeated("Great product!!!", 5, 20),
	})

	// 19 of 20 are duplicates and every text is short.
	if result.BotProbability < 80 {
		t.Errorf("Expected bot probability >= 80, got %d", result.BotProbability)
	}
}

// ============================================================================
// SCENARIO 3: Typosquatted marketplace
// ============================================================================

func TestTyposquatDomain_PhishingWarning(t *testing.T) {
	config := getTestConfig()

	result := analyze(t, config, AnalyzeRequest{
		URL:     "https://amaz0n.com/deal",
		Reviews: repeated("Works exactly as described, arrived quickly.", 5, 10),
	})

	if result.PhishingStatus != "Phishing Warning" {
		t.Fatalf("Expected Phishing Warning, got %q", result.PhishingStatus)
	}
	if result.TrustScore > 10 {
		t.Errorf("Expected trust score capped at 10, got %d", result.TrustScore)
	}
	if result.SafetyLabel != "High Risk / Caution" {
		t.Errorf("Expected High Risk / Caution, got %q", result.SafetyLabel)
	}
}

func TestPhishingEndpoint(t *testing.T) {
	config := getTestConfig()

	tests := []struct {
		url    string
		expect string
	}{
		{"https://www.flipkart.com/p/1", "Safe"},
		{"https://flipkrt.com/p/1", "Phishing Warning"},
		{"https://random-boutique.example/p/1", "Suspicious"},
		{"not a url", "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			status, body := send(t, config, http.MethodPost, "/phishing", map[string]string{"url": tt.url}, config.TenantID)
			if status != http.StatusOK {
				t.Fatalf("Expected 200, got %d: %s", status, body)
			}
			var resp struct {
				PhishingStatus string `json:"phishing_status"`
			}
			if err := json.Unmarshal(body, &resp); err != nil {
				t.Fatalf("Failed to unmarshal: %v", err)
			}
			if resp.PhishingStatus != tt.expect {
				t.Errorf("Expected %q, got %q", tt.expect, resp.PhishingStatus)
			}
		})
	}
}

// ============================================================================
// SCENARIO 4: Listing without reviews
// ============================================================================

func TestNoReviews_SiteAssessment(t *testing.T) {
	config := getTestConfig()

	result := analyze(t, config, AnalyzeRequest{
		URL:     "https://www.walmart.com/ip/123",
		Reviews: []Review{},
	})

	if result.PhishingStatus != "Safe" {
		t.Errorf("Expected Safe, got %q", result.PhishingStatus)
	}
	if result.SafetyLabel == "Unknown" {
		t.Error("Expected a site assessment instead of an empty result")
	}
}

// ============================================================================
// SCENARIO 5: Validation
// ============================================================================

func TestMissingURL_Error(t *testing.T) {
	config := getTestConfig()

	status, body := send(t, config, http.MethodPost, "/analyze", map[string]any{"reviews": []Review{}}, config.TenantID)
	if status != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422, got %d: %s", status, body)
	}
}

func TestMissingTenantHeader_UsesPublic(t *testing.T) {
	config := getTestConfig()

	status, body := send(t, config, http.MethodPost, "/analyze", AnalyzeRequest{
		URL:     "https://www.amazon.in/dp/public",
		Reviews: repeated("Decent value for the price, would buy again.", 4, 3),
	}, "")
	if status != http.StatusOK {
		t.Errorf("Expected 200 without tenant header, got %d: %s", status, body)
	}
}

// ============================================================================
// SCENARIO 6: Stored analyses are tenant scoped
// ============================================================================

func TestStoredAnalysis_TenantIsolation(t *testing.T) {
	config := getTestConfig()

	result := analyze(t, config, AnalyzeRequest{
		URL:     "https://www.meesho.com/p/isolation",
		Reviews: repeated("Comfortable fabric and true to size.", 4, 5),
	})

	status, body := send(t, config, http.MethodGet, "/analyses/"+result.AnalysisID, nil, config.TenantID)
	if status == http.StatusServiceUnavailable {
		t.Skip("server runs without a repository")
	}
	if status != http.StatusOK {
		t.Fatalf("Expected 200 for own tenant, got %d: %s", status, body)
	}

	status, _ = send(t, config, http.MethodGet, "/analyses/"+result.AnalysisID, nil, "another-tenant")
	if status != http.StatusNotFound {
		t.Errorf("Expected 404 for another tenant, got %d", status)
	}
}

func TestCalibrationRules_Listed(t *testing.T) {
	config := getTestConfig()

	status, body := send(t, config, http.MethodGet, "/calibration/rules", nil, config.TenantID)
	if status != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", status, body)
	}

	var resp struct {
		Rules []struct {
			ID string `json:"id"`
		} `json:"rules"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("Failed to unmarshal: %v (body: %s)", err, body)
	}
	if len(resp.Rules) == 0 {
		t.Error("Expected at least the default calibration rules")
	}
}
