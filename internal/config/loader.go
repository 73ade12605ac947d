package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrUnknownProvider is returned when a provider tag doesn't match any of the
// enumerated providers in spec.md §6.
var ErrUnknownProvider = errors.New("unknown provider tag")

// ErrMissingCredential is returned when a provider has no explicit api_key
// and its environment variable is unset.
var ErrMissingCredential = errors.New("missing provider credential")

// Load reads an optional YAML config file at path (skipped if empty or
// absent), then overlays a local .env file via godotenv onto the process
// environment. It does not resolve provider credentials: that happens when a
// provider is built, through ResolveCredential (explicit api_key →
// provider-specific environment variable → fail).
func Load(path string) (Config, error) {
	cfg := Config{RLM: DefaultRLMConfig()}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("reading config file %q: %w", path, err)
			}
		} else if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file %q: %w", path, err)
		}
	}

	// Best-effort: a missing .env is not an error, matching the teacher's
	// local-development convenience loading.
	_ = godotenv.Overload()

	if cfg.RLM.MaxIterations == 0 {
		cfg.RLM = DefaultRLMConfig()
	}

	return cfg, nil
}

// ResolveCredential applies the explicit-argument → env-var → fail
// precedence for a single provider tag, returning the resolved api_key.
func ResolveCredential(tag, explicit string) (string, error) {
	if k := strings.TrimSpace(explicit); k != "" {
		return k, nil
	}
	envVar, ok := credentialEnvVars[strings.ToLower(strings.TrimSpace(tag))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, tag)
	}
	if v := strings.TrimSpace(os.Getenv(envVar)); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s (set %s or pass api_key explicitly)", ErrMissingCredential, tag, envVar)
}

var credentialEnvVars = map[string]string{
	"cerebras":   "CEREBRAS_API_KEY",
	"openai":     "OPENAI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"gemini":     "GOOGLE_API_KEY",
	"google":     "GOOGLE_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}
