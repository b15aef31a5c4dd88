// Package providers implements concrete Model Client backends.
//
// The spec's recognized provider values (openai, openrouter, ollama, kimi)
// are all OpenAI-compatible chat-completion APIs that differ only in base
// URL and auth header, so one HTTP client serves all four.
package providers

import (
	"github.com/crystaldolphin/crystaldolphin/internal/config"
	"github.com/crystaldolphin/crystaldolphin/internal/schema"
)

// New constructs the schema.LLMProvider for cfg.Provider.
func New(cfg *config.Config) schema.LLMProvider {
	base := cfg.BaseURL
	apiKey := cfg.APIKey
	header := "Authorization"
	prefix := "Bearer "

	switch cfg.Provider {
	case "ollama":
		if base == "" {
			base = cfg.OllamaURL
		}
		if base == "" {
			base = "http://localhost:11434/v1"
		}
	case "openrouter":
		if base == "" {
			base = "https://openrouter.ai/api/v1"
		}
	case "kimi":
		if base == "" {
			base = "https://api.moonshot.cn/v1"
		}
	default: // "openai" and anything unrecognized falls back to the OpenAI API shape.
		if base == "" {
			base = "https://api.openai.com/v1"
		}
	}

	return NewOpenAIProvider(base, apiKey, header, prefix, cfg.Model)
}
