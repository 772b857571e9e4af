package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/truthlens/truthlens/internal/domain"
)

type stubGenerator struct {
	reply string
	err   error
	block bool

	mu      sync.Mutex
	calls   int
	prompts []string
}

func (s *stubGenerator) Name() string { return "stub" }

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()

	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.reply, s.err
}

func sampleReviews(n int) []domain.Review {
	out := make([]domain.Review, n)
	for i := range out {
		out[i] = domain.Review{
			Text:     fmt.Sprintf("review-text-%02d battery lasts all day", i),
			Rating:   4,
			Verified: true,
			Platform: "Amazon",
		}
	}
	return out
}

func TestCleanJSON(t *testing.T) {
	tests := map[string]string{
		"```json\n{\"verdict\":\"ok\"}\n```": `{"verdict":"ok"}`,
		"```\n{\"a\":1}```":                  `{"a":1}`,
		"  {\"a\":1}  ":                      `{"a":1}`,
	}
	for in, want := range tests {
		if got := CleanJSON(in); got != want {
			t.Errorf("CleanJSON(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParse(t *testing.T) {
	t.Run("Complete", func(t *testing.T) {
		n, err := Parse("```json\n{\"pros\":[\"fast\"],\"cons\":[\"loud\"],\"verdict\":\"Buy it.\"}\n```")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(n.Pros) != 1 || n.Pros[0] != "fast" || n.Cons[0] != "loud" || n.Verdict != "Buy it." {
			t.Errorf("unexpected narrative: %+v", n)
		}
	})

	t.Run("MissingKeys", func(t *testing.T) {
		n, err := Parse(`{"pros":["solid"]}`)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n.Verdict != VerdictMissing {
			t.Errorf("expected %q, got %q", VerdictMissing, n.Verdict)
		}
		if n.Cons == nil || len(n.Cons) != 0 {
			t.Errorf("expected empty cons, got %v", n.Cons)
		}
	})

	t.Run("NotJSON", func(t *testing.T) {
		if _, err := Parse("Sorry, I cannot help with that."); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("WrongShape", func(t *testing.T) {
		if _, err := Parse(`["pros"]`); err == nil {
			t.Error("expected parse error for array reply")
		}
	})
}

func TestBuildPromptUsesFirstReviews(t *testing.T) {
	prompt, err := BuildPrompt(sampleReviews(20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(prompt, "review-text-14") {
		t.Error("prompt should contain the 15th review")
	}
	if strings.Contains(prompt, "review-text-15") {
		t.Error("prompt must not contain the 16th review")
	}
	if !strings.Contains(prompt, `"verdict"`) {
		t.Error("prompt should describe the reply shape")
	}
}

func TestLLMNarrator(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		gen := &stubGenerator{reply: `{"pros":["sturdy"],"cons":[],"verdict":"Worth it."}`}
		res := NewLLMNarrator(gen, time.Second).Narrate(ctx, sampleReviews(3))
		if !res.OK || res.Verdict != "Worth it." || res.Pros[0] != "sturdy" {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("NoReviews", func(t *testing.T) {
		gen := &stubGenerator{}
		res := NewLLMNarrator(gen, time.Second).Narrate(ctx, nil)
		if res.OK || res.Verdict != VerdictNoReviews {
			t.Errorf("unexpected result: %+v", res)
		}
		if gen.calls != 0 {
			t.Error("generator must not be called for an empty review set")
		}
	})

	t.Run("GeneratorError", func(t *testing.T) {
		gen := &stubGenerator{err: errors.New("quota exceeded")}
		res := NewLLMNarrator(gen, time.Second).Narrate(ctx, sampleReviews(3))
		if res.OK || res.Verdict != VerdictFailed || len(res.Pros) != 0 || len(res.Cons) != 0 {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("MalformedReply", func(t *testing.T) {
		gen := &stubGenerator{reply: "here are the pros: fast"}
		res := NewLLMNarrator(gen, time.Second).Narrate(ctx, sampleReviews(3))
		if res.OK || res.Verdict != VerdictFailed {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("EmptyReply", func(t *testing.T) {
		gen := &stubGenerator{reply: ""}
		res := NewLLMNarrator(gen, time.Second).Narrate(ctx, sampleReviews(3))
		if res.OK || res.Verdict != VerdictUnavailable {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		gen := &stubGenerator{block: true}
		start := time.Now()
		res := NewLLMNarrator(gen, 50*time.Millisecond).Narrate(ctx, sampleReviews(3))
		if res.OK || res.Verdict != VerdictFailed {
			t.Errorf("unexpected result: %+v", res)
		}
		if time.Since(start) > time.Second {
			t.Error("timeout was not enforced")
		}
	})
}

func TestDisabled(t *testing.T) {
	res := Disabled{}.Narrate(context.Background(), sampleReviews(2))
	if res.OK || res.Verdict != VerdictUnavailable || res.Pros == nil {
		t.Errorf("unexpected result: %+v", res)
	}
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string][]byte)} }

func (m *mapCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data[key], nil
}

func (m *mapCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mapCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *mapCache) Ping(ctx context.Context) error { return nil }
func (m *mapCache) Close() error                   { return nil }

func TestCachedNarrator(t *testing.T) {
	ctx := context.Background()

	t.Run("ReusesSuccessfulNarratives", func(t *testing.T) {
		gen := &stubGenerator{reply: `{"pros":["quiet"],"cons":["pricey"],"verdict":"Good buy."}`}
		n := NewCachedNarrator(NewLLMNarrator(gen, time.Second), newMapCache(), time.Hour)

		first := n.Narrate(ctx, sampleReviews(5))
		second := n.Narrate(ctx, sampleReviews(5))

		if !first.OK || first.Cached {
			t.Errorf("first call should be a fresh success: %+v", first)
		}
		if !second.OK || !second.Cached || second.Verdict != "Good buy." {
			t.Errorf("second call should come from cache: %+v", second)
		}
		if gen.calls != 1 {
			t.Errorf("expected 1 generator call, got %d", gen.calls)
		}
	})

	t.Run("KeyIgnoresReviewsBeyondLimit", func(t *testing.T) {
		a, _ := CacheKey(sampleReviews(15))
		b, _ := CacheKey(sampleReviews(30))
		if a != b {
			t.Error("reviews past the limit must not change the key")
		}
		c, _ := CacheKey(sampleReviews(14))
		if a == c {
			t.Error("different review sets must have different keys")
		}
	})

	t.Run("FailuresAreNotCached", func(t *testing.T) {
		gen := &stubGenerator{err: errors.New("down")}
		cache := newMapCache()
		n := NewCachedNarrator(NewLLMNarrator(gen, time.Second), cache, time.Hour)

		n.Narrate(ctx, sampleReviews(2))
		n.Narrate(ctx, sampleReviews(2))
		if gen.calls != 2 || len(cache.data) != 0 {
			t.Errorf("failed narratives must not be cached (calls %d, entries %d)", gen.calls, len(cache.data))
		}
	})
}

func TestOpenAIGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "test-model" {
			t.Errorf("unexpected model %v", req["model"])
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]any{
					"role":    "assistant",
					"content": `{"pros":["bright screen"],"cons":[],"verdict":"Recommended."}`,
				},
			}},
		})
	}))
	defer srv.Close()

	gen := NewOpenAIGenerator("test-key", "test-model", srv.URL+"/v1")
	res := NewLLMNarrator(gen, time.Second).Narrate(context.Background(), sampleReviews(2))
	if !res.OK || res.Verdict != "Recommended." || res.Pros[0] != "bright screen" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     domain.NarrativeConfig
		want    string
		wantErr bool
	}{
		{"None", domain.NarrativeConfig{Provider: "none"}, "narrative.Disabled", false},
		{"GeminiWithoutKey", domain.NarrativeConfig{Provider: "gemini"}, "narrative.Disabled", false},
		{"OpenAI", domain.NarrativeConfig{Provider: "openai", OpenAIAPIKey: "k", OpenAIModel: "m"}, "*narrative.LLMNarrator", false},
		{"Unknown", domain.NarrativeConfig{Provider: "carrier-pigeon"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := New(ctx, tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := fmt.Sprintf("%T", n); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}
