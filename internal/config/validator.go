package config

import "fmt"

var validEngineKinds = map[string]bool{
	"direct": true,
	"team":   true,
}

var validProviderNames = map[string]bool{
	"openai":    true,
	"anthropic": true,
}

// Validate checks the configuration for values the daemon cannot start with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if !validEngineKinds[cfg.Engine.Kind] {
		return fmt.Errorf("invalid engine kind: %q (must be direct or team)", cfg.Engine.Kind)
	}
	if cfg.Engine.Model == "" {
		return fmt.Errorf("engine model cannot be empty")
	}
	if cfg.Engine.Temperature < 0 || cfg.Engine.Temperature > 1 {
		return fmt.Errorf("engine temperature must be between 0 and 1")
	}
	if cfg.Engine.MaxTokens < 0 {
		return fmt.Errorf("engine max_tokens cannot be negative")
	}
	if cfg.Engine.PlanRetries < 0 {
		return fmt.Errorf("engine plan_retries cannot be negative")
	}

	if len(cfg.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}
	for i, p := range cfg.Providers {
		if !validProviderNames[p.Name] {
			return fmt.Errorf("provider %d: unknown provider %q", i, p.Name)
		}
		if p.APIKey == "" && p.BaseURL == "" {
			return fmt.Errorf("provider %d (%s): api_key is required", i, p.Name)
		}
	}

	if cfg.Tools.RegistryPath == "" {
		return fmt.Errorf("tools registry_path cannot be empty")
	}
	if cfg.Tools.Timeout <= 0 {
		return fmt.Errorf("tools timeout must be positive")
	}

	if cfg.Agent.MaxSteps < 0 {
		return fmt.Errorf("agent max_steps cannot be negative")
	}
	if cfg.Agent.ChatHistoryLimit < 0 {
		return fmt.Errorf("agent chat_history_limit cannot be negative")
	}

	return nil
}
