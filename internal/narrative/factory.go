package narrative

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/truthlens/truthlens/internal/domain"
)

// New builds the configured narrator. An unknown provider is an error;
// "none" or a provider without credentials yields Disabled.
func New(ctx context.Context, cfg domain.NarrativeConfig) (Narrator, error) {
	switch cfg.Provider {
	case "", "none":
		return Disabled{}, nil

	case "gemini":
		if cfg.GeminiAPIKey == "" {
			slog.Warn("gemini narratives requested without GEMINI_API_KEY, narratives disabled")
			return Disabled{}, nil
		}
		gen, err := NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, err
		}
		return NewLLMNarrator(gen, cfg.Timeout), nil

	case "openai":
		if cfg.OpenAIAPIKey == "" && cfg.OpenAIBaseURL == "" {
			slog.Warn("openai narratives requested without OPENAI_API_KEY, narratives disabled")
			return Disabled{}, nil
		}
		gen := NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
		return NewLLMNarrator(gen, cfg.Timeout), nil

	default:
		return nil, fmt.Errorf("unsupported narrative provider: %s", cfg.Provider)
	}
}
