package config

import "time"

// Config represents the main gofer configuration
type Config struct {
	// Telegram ingress
	Telegram TelegramConfig `json:"telegram" mapstructure:"telegram"`

	// Planning engine
	Engine EngineConfig `json:"engine" mapstructure:"engine"`

	// LLM provider credentials, tried in priority order
	Providers []ProviderConfig `json:"providers" mapstructure:"providers"`

	// Tool registry and runner
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Agent loop bounds
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory (sessions, logs)
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	BotToken  string  `json:"bot_token" mapstructure:"bot_token"`
	Allowlist []int64 `json:"allowlist" mapstructure:"allowlist"`
}

// EngineConfig selects and tunes the planning engine.
// Kind is "direct" (single-model planner) or "team" (planner + reviewer).
type EngineConfig struct {
	Kind        string  `json:"kind" mapstructure:"kind"`
	Model       string  `json:"model" mapstructure:"model"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
	PlanRetries int     `json:"plan_retries" mapstructure:"plan_retries"`
}

// ProviderConfig holds credentials for one LLM provider
type ProviderConfig struct {
	Name     string `json:"name" mapstructure:"name"` // "openai" or "anthropic"
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url" mapstructure:"base_url"` // OpenAI-compatible local backends
	Priority int    `json:"priority" mapstructure:"priority"`
}

// ToolsConfig holds tool registry and runner configuration
type ToolsConfig struct {
	RegistryPath string        `json:"registry_path" mapstructure:"registry_path"`
	Timeout      time.Duration `json:"timeout" mapstructure:"timeout"`
	Watch        bool          `json:"watch" mapstructure:"watch"`
}

// AgentConfig bounds one agent run
type AgentConfig struct {
	MaxSteps         int `json:"max_steps" mapstructure:"max_steps"`
	ChatHistoryLimit int `json:"chat_history_limit" mapstructure:"chat_history_limit"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Kind:        "direct",
			Model:       "gpt-4o-mini",
			Temperature: 0.2,
			MaxTokens:   4096,
			PlanRetries: 2,
		},
		Tools: ToolsConfig{
			RegistryPath: "tools.json",
			Timeout:      60 * time.Second,
			Watch:        true,
		},
		Agent: AgentConfig{
			MaxSteps:         8,
			ChatHistoryLimit: 12,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
	}
}
