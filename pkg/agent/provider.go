package agent

import (
	"context"
	"fmt"
	"sort"

	"github.com/harun/gofer/internal/config"
	"github.com/rs/zerolog"
)

// Message is one chat message sent to an LLM provider
type Message struct {
	Role    string
	Content string
}

// LLMRequest contains the request parameters for an LLM call
type LLMRequest struct {
	Model        string
	Messages     []Message
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// LLMProvider is an interface for LLM API providers
type LLMProvider interface {
	// Call makes an LLM API call and returns the assistant's text
	Call(ctx context.Context, request LLMRequest) (string, error)

	// Provider returns the provider name
	Provider() string
}

// NewProviders builds providers from configuration, ordered by priority
// (lowest number first).
func NewProviders(cfgs []config.ProviderConfig) ([]LLMProvider, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}

	ordered := make([]config.ProviderConfig, len(cfgs))
	copy(ordered, cfgs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	providers := make([]LLMProvider, 0, len(ordered))
	for _, c := range ordered {
		switch c.Name {
		case "openai":
			providers = append(providers, NewOpenAIProvider(c.APIKey, c.BaseURL))
		case "anthropic":
			providers = append(providers, NewAnthropicProvider(c.APIKey))
		default:
			return nil, fmt.Errorf("unsupported provider: %s", c.Name)
		}
	}

	return providers, nil
}

// Complete tries each provider in order and returns the first successful
// response. Engines use it for planning; the daemon uses it for plain chat.
func Complete(ctx context.Context, providers []LLMProvider, req LLMRequest, logger zerolog.Logger) (string, error) {
	var lastErr error

	for _, p := range providers {
		content, err := p.Call(ctx, req)
		if err == nil {
			return content, nil
		}

		lastErr = err
		logger.Warn().
			Str("provider", p.Provider()).
			Err(err).
			Msg("Provider call failed, trying next")

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	return "", fmt.Errorf("all providers failed: %w", lastErr)
}
