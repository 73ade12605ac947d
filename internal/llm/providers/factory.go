// Package providers constructs an llm.Provider from a data-driven provider
// tag and config, per spec.md §6's "provider selection is data-driven" rule.
package providers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/rlm-core/rlm/internal/config"
	"github.com/rlm-core/rlm/internal/llm"
	"github.com/rlm-core/rlm/internal/llm/anthropic"
	"github.com/rlm-core/rlm/internal/llm/google"
	openaillm "github.com/rlm-core/rlm/internal/llm/openai"
)

// Build constructs an llm.Provider for the given tag. Credentials are
// resolved per config.ResolveCredential's explicit-argument → env-var → fail
// precedence before the underlying SDK client is constructed.
func Build(tag string, cfg config.Config, httpClient *http.Client) (llm.Provider, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	switch tag {
	case "openai":
		key, err := config.ResolveCredential("openai", cfg.OpenAI.APIKey)
		if err != nil {
			return nil, err
		}
		return openaillm.New(cfg.OpenAI, key, httpClient), nil
	case "cerebras":
		key, err := config.ResolveCredential("cerebras", cfg.Cerebras.APIKey)
		if err != nil {
			return nil, err
		}
		return openaillm.New(cfg.Cerebras, key, httpClient), nil
	case "openrouter":
		key, err := config.ResolveCredential("openrouter", cfg.OpenRouter.APIKey)
		if err != nil {
			return nil, err
		}
		return openaillm.New(cfg.OpenRouter, key, httpClient), nil
	case "local":
		// Local OpenAI-compatible servers (llama.cpp, mlx_lm.server, ...)
		// typically accept any non-empty bearer token.
		key := cfg.Local.APIKey
		if strings.TrimSpace(key) == "" {
			key = "local"
		}
		return openaillm.New(cfg.Local, key, httpClient), nil
	case "anthropic":
		key, err := config.ResolveCredential("anthropic", cfg.Anthropic.APIKey)
		if err != nil {
			return nil, err
		}
		return anthropic.New(cfg.Anthropic, key, httpClient), nil
	case "gemini", "google":
		key, err := config.ResolveCredential("gemini", cfg.Google.APIKey)
		if err != nil {
			return nil, err
		}
		return google.New(cfg.Google, key, httpClient)
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrUnknownProvider, tag)
	}
}
