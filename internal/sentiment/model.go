package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/truthlens/truthlens/internal/breaker"
	"github.com/truthlens/truthlens/internal/metrics"
)

// ModelEstimator calls a binary sentiment classifier served over HTTP.
//
// The service accepts POST /predict with {"inputs": [...]} and answers with
// one {"label", "score"} object per input, in order.
type ModelEstimator struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
}

type predictRequest struct {
	Inputs []string `json:"inputs"`
}

type prediction struct {
	Label string   `json:"label"`
	Score *float64 `json:"score"`
}

// NewModelEstimator creates an estimator for the classifier at baseURL.
func NewModelEstimator(baseURL string, timeout time.Duration, client *http.Client) *ModelEstimator {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ModelEstimator{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client:  client,
		cb:      breaker.New("sentiment-model", breaker.Settings{}),
	}
}

// Name implements Estimator.
func (m *ModelEstimator) Name() string { return "model" }

// Health checks that the classifier is reachable.
func (m *ModelEstimator) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// Estimate implements Estimator. The whole batch is sent in one call with a
// bounded timeout and no retry.
func (m *ModelEstimator) Estimate(ctx context.Context, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return []float64{}, nil
	}

	start := time.Now()
	out, err := m.cb.Execute(func() (interface{}, error) {
		return m.predict(ctx, texts)
	})
	metrics.ObserveExternal("sentiment-model", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return out.([]float64), nil
}

func (m *ModelEstimator) predict(ctx context.Context, texts []string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	body, err := json.Marshal(predictRequest{Inputs: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var preds []prediction
	if err := json.NewDecoder(resp.Body).Decode(&preds); err != nil {
		return nil, fmt.Errorf("failed to decode predictions: %w", err)
	}
	if len(preds) != len(texts) {
		return nil, fmt.Errorf("expected %d predictions, got %d", len(texts), len(preds))
	}

	out := make([]float64, len(preds))
	for i, p := range preds {
		out[i] = Polarity(p.Label, p.Score)
	}
	return out, nil
}

// Polarity converts a classifier label and confidence into a signed value.
// POSITIVE with confidence s maps to 2s-1, any other label to 1-2s.
// A missing confidence counts as 0.5.
func Polarity(label string, score *float64) float64 {
	s := 0.5
	if score != nil {
		s = *score
	}
	if strings.EqualFold(label, "POSITIVE") {
		return clampPolarity(2*s - 1)
	}
	return clampPolarity(1 - 2*s)
}
