package config

import "time"

// AnthropicConfig configures the Anthropic provider client.
type AnthropicConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// OpenAIConfig configures any OpenAI-compatible provider client: openai
// itself, cerebras, openrouter, or a local OpenAI-compatible server. BaseURL
// is what distinguishes them — the wire protocol is identical.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// GoogleConfig configures the Gemini provider client.
type GoogleConfig struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// RLMConfig holds the sandbox/iteration tunables described in spec.md §4 and
// the supplemented recursion controls from SPEC_FULL.md §C.
type RLMConfig struct {
	MaxIterations      int           `yaml:"max_iterations"`
	SandboxTimeout     time.Duration `yaml:"sandbox_timeout"`
	BatchConcurrency   int           `yaml:"batch_concurrency"`
	TruncationBudget   int           `yaml:"truncation_budget"`
	MaxRecursionDepth  int           `yaml:"max_recursion_depth"`
	EnablePayloadLog   bool          `yaml:"enable_payload_log"`
	PayloadLogTruncate int           `yaml:"payload_log_truncate"`
}

// Config is the root configuration object loaded by Load.
type Config struct {
	Provider   string         `yaml:"provider"`
	Anthropic  AnthropicConfig `yaml:"anthropic"`
	OpenAI     OpenAIConfig    `yaml:"openai"`
	Cerebras   OpenAIConfig    `yaml:"cerebras"`
	OpenRouter OpenAIConfig    `yaml:"openrouter"`
	Local      OpenAIConfig    `yaml:"local"`
	Google     GoogleConfig    `yaml:"google"`
	RLM        RLMConfig       `yaml:"rlm"`
}

// DefaultRLMConfig returns the spec-mandated defaults: 30s sandbox timeout,
// 8-way batched concurrency, a ~25000 char truncation budget, and a
// recursion ceiling of 3 (SPEC_FULL.md §C.1).
func DefaultRLMConfig() RLMConfig {
	return RLMConfig{
		MaxIterations:      10,
		SandboxTimeout:     30 * time.Second,
		BatchConcurrency:   8,
		TruncationBudget:   25000,
		MaxRecursionDepth:  3,
		EnablePayloadLog:   false,
		PayloadLogTruncate: 0,
	}
}
