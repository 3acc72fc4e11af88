// Package ai is the text-completion capability used to write cover letters.
//
// OpenAI, Groq, Anthropic and Ollama are reached over their HTTP APIs; Gemini
// goes through the generative-ai-go SDK. Every failure is classified as one of
// ErrRateLimited, ErrTimeout, ErrInvalidKey or ErrProvider.
package ai

import (
	"context"
	"fmt"
	"time"
)

// Provider names accepted in configuration
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderGroq      = "groq"
	ProviderOllama    = "ollama"
)

// Providers lists every supported provider
var Providers = []string{ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderGroq, ProviderOllama}

var defaultModels = map[string]string{
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderAnthropic: "claude-3-5-sonnet-20241022",
	ProviderGemini:    "gemini-1.5-flash",
	ProviderGroq:      "llama-3.1-70b-versatile",
	ProviderOllama:    "llama3.2",
}

// DefaultModel returns the model used when none is configured
func DefaultModel(provider string) string {
	return defaultModels[provider]
}

// Completer turns a prompt into text
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Close() error
}

// Config selects and configures a provider
type Config struct {
	Provider string
	Model    string
	APIKey   string
	// BaseURL overrides the provider endpoint root
	BaseURL string
	// Timeout bounds each Complete call
	Timeout time.Duration
}

// New builds the Completer for cfg.Provider
func New(ctx context.Context, cfg Config) (Completer, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel(cfg.Provider)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Provider != ProviderOllama && cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: no API key configured for %s", ErrInvalidKey, cfg.Provider)
	}

	switch cfg.Provider {
	case ProviderOpenAI:
		return newOpenAICompatible(cfg, "OpenAI", "https://api.openai.com"), nil
	case ProviderGroq:
		return newOpenAICompatible(cfg, "Groq", "https://api.groq.com/openai"), nil
	case ProviderAnthropic:
		return newAnthropic(cfg), nil
	case ProviderOllama:
		return newOllama(cfg), nil
	case ProviderGemini:
		return newGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", cfg.Provider)
	}
}
