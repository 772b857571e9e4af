package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/truthlens/truthlens/internal/domain"
)

type stubEstimator struct {
	name   string
	values []float64
	err    error
	calls  int
}

func (s *stubEstimator) Name() string { return s.name }

func (s *stubEstimator) Estimate(ctx context.Context, texts []string) ([]float64, error) {
	s.calls++
	return s.values, s.err
}

func ptr(f float64) *float64 { return &f }

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestPolarity(t *testing.T) {
	tests := []struct {
		name  string
		label string
		score *float64
		want  float64
	}{
		{"FullPositive", "POSITIVE", ptr(1), 1},
		{"FullNegative", "NEGATIVE", ptr(1), -1},
		{"UndecidedPositive", "POSITIVE", ptr(0.5), 0},
		{"UndecidedNegative", "NEGATIVE", ptr(0.5), 0},
		{"LowercaseLabel", "positive", ptr(0.9), 0.8},
		{"OtherLabel", "NEUTRAL", ptr(0.75), -0.5},
		{"MissingScore", "POSITIVE", nil, 0},
		{"OutOfRangeScore", "POSITIVE", ptr(1.7), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Polarity(tt.label, tt.score); !almostEqual(got, tt.want) {
				t.Errorf("Polarity(%q) = %v, want %v", tt.label, got, tt.want)
			}
		})
	}
}

func newModelServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/predict", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestModelEstimator(t *testing.T) {
	ctx := context.Background()

	t.Run("MapsPredictions", func(t *testing.T) {
		srv := newModelServer(t, func(w http.ResponseWriter, r *http.Request) {
			var req predictRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("bad request body: %v", err)
			}
			if len(req.Inputs) != 2 {
				t.Errorf("expected 2 inputs, got %d", len(req.Inputs))
			}
			w.Write([]byte(`[{"label":"POSITIVE","score":0.95},{"label":"NEGATIVE","score":0.8}]`))
		})

		m := NewModelEstimator(srv.URL, time.Second, srv.Client())
		got, err := m.Estimate(ctx, []string{"great", "bad"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !almostEqual(got[0], 0.9) || !almostEqual(got[1], -0.6) {
			t.Errorf("unexpected polarities: %v", got)
		}
	})

	t.Run("ServerError", func(t *testing.T) {
		srv := newModelServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		m := NewModelEstimator(srv.URL, time.Second, srv.Client())
		if _, err := m.Estimate(ctx, []string{"x"}); !errors.Is(err, ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, got %v", err)
		}
	})

	t.Run("CountMismatch", func(t *testing.T) {
		srv := newModelServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[{"label":"POSITIVE","score":0.95}]`))
		})

		m := NewModelEstimator(srv.URL, time.Second, srv.Client())
		if _, err := m.Estimate(ctx, []string{"a", "b"}); err == nil {
			t.Error("expected error for short prediction list")
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		srv := newModelServer(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		})

		m := NewModelEstimator(srv.URL, 50*time.Millisecond, srv.Client())
		if _, err := m.Estimate(ctx, []string{"slow"}); err == nil {
			t.Error("expected timeout error")
		}
	})
}

func TestModelEstimatorCallerCancellation(t *testing.T) {
	srv := newModelServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req predictRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Inputs) == 1 && req.Inputs[0] == "hang" {
			<-r.Context().Done()
			return
		}
		w.Write([]byte(`[{"label":"POSITIVE","score":1}]`))
	})

	m := NewModelEstimator(srv.URL, 2*time.Second, srv.Client())

	for i := 0; i < 8; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(10*time.Millisecond, cancel)
		_, err := m.Estimate(ctx, []string{"hang"})
		cancel()
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("call %d: expected context.Canceled in the chain, got %v", i, err)
		}
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("call %d: expected ErrUnavailable in the chain, got %v", i, err)
		}
	}

	if state := m.cb.State(); state != gobreaker.StateClosed {
		t.Fatalf("caller cancellations must not trip the breaker, state %s", state)
	}

	got, err := m.Estimate(context.Background(), []string{"fine"})
	if err != nil {
		t.Fatalf("healthy model refused after cancellations: %v", err)
	}
	if !almostEqual(got[0], 1) {
		t.Errorf("unexpected polarity %v", got)
	}
}

func TestFallbackEstimator(t *testing.T) {
	ctx := context.Background()
	texts := []string{"a", "b", "c"}

	t.Run("PrimaryOK", func(t *testing.T) {
		primary := &stubEstimator{name: "p", values: []float64{0.1, 0.2, 0.3}}
		fallback := &stubEstimator{name: "f", values: []float64{-1, -1, -1}}
		f := &FallbackEstimator{Primary: primary, Fallback: fallback}

		got, err := f.Estimate(ctx, texts)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got[2] != 0.3 || fallback.calls != 0 {
			t.Errorf("expected primary output only, got %v (fallback calls %d)", got, fallback.calls)
		}
	})

	t.Run("PrimaryErrorDiscardsPartialResults", func(t *testing.T) {
		primary := &stubEstimator{name: "p", values: []float64{0.9, 0.9}, err: errors.New("boom")}
		fallback := &stubEstimator{name: "f", values: []float64{-0.5, -0.5, -0.5}}
		f := &FallbackEstimator{Primary: primary, Fallback: fallback}

		got, _ := f.Estimate(ctx, texts)
		for i, v := range got {
			if v != -0.5 {
				t.Errorf("index %d: expected fallback value, got %v", i, v)
			}
		}
	})

	t.Run("PrimaryWrongLength", func(t *testing.T) {
		primary := &stubEstimator{name: "p", values: []float64{0.9}}
		fallback := &stubEstimator{name: "f", values: []float64{0, 0, 0}}
		f := &FallbackEstimator{Primary: primary, Fallback: fallback}

		got, _ := f.Estimate(ctx, texts)
		if len(got) != 3 || fallback.calls != 1 {
			t.Errorf("expected whole-batch fallback, got %v", got)
		}
	})

	t.Run("Name", func(t *testing.T) {
		f := &FallbackEstimator{Primary: &stubEstimator{name: "model"}, Fallback: &stubEstimator{name: "lexicon"}}
		if f.Name() != "model+lexicon" {
			t.Errorf("unexpected name %q", f.Name())
		}
	})
}

func TestLexiconEstimator(t *testing.T) {
	l := NewLexiconEstimator()

	got, err := l.Estimate(context.Background(), []string{
		"I love this phone, it is amazing and works great!",
		"Terrible quality. Broke after a day, awful and useless.",
		"",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 values, got %d", len(got))
	}
	if got[0] <= 0 {
		t.Errorf("expected positive polarity, got %v", got[0])
	}
	if got[1] >= 0 {
		t.Errorf("expected negative polarity, got %v", got[1])
	}
	if got[2] != 0 {
		t.Errorf("expected neutral polarity for empty text, got %v", got[2])
	}
	for _, v := range got {
		if v < -1 || v > 1 {
			t.Errorf("polarity %v out of range", v)
		}
	}
}

func TestSelect(t *testing.T) {
	ctx := context.Background()

	t.Run("NoModelConfigured", func(t *testing.T) {
		est := Select(ctx, domain.SentimentConfig{}, nil)
		if est.Name() != "lexicon" {
			t.Errorf("expected lexicon, got %s", est.Name())
		}
	})

	t.Run("UnhealthyModel", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		est := Select(ctx, domain.SentimentConfig{ModelURL: srv.URL, Timeout: time.Second}, srv.Client())
		if est.Name() != "lexicon" {
			t.Errorf("expected lexicon, got %s", est.Name())
		}
	})

	t.Run("HealthyModel", func(t *testing.T) {
		srv := newModelServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[]`))
		})

		est := Select(ctx, domain.SentimentConfig{ModelURL: srv.URL + "/", Timeout: time.Second}, srv.Client())
		if _, ok := est.(*FallbackEstimator); !ok {
			t.Errorf("expected fallback composite, got %T", est)
		}
	})
}
