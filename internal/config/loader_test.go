package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveCredential_ExplicitWins(t *testing.T) {
	key, err := ResolveCredential("openai", "explicit-key")
	require.NoError(t, err)
	assert.Equal(t, "explicit-key", key)
}

func TestResolveCredential_FallsBackToEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	key, err := ResolveCredential("anthropic", "")
	require.NoError(t, err)
	assert.Equal(t, "env-key", key)
}

func TestResolveCredential_UnknownTag(t *testing.T) {
	_, err := ResolveCredential("bogus", "")
	require.ErrorIs(t, err, ErrUnknownProvider)
}

func TestResolveCredential_MissingCredential(t *testing.T) {
	os.Unsetenv("CEREBRAS_API_KEY")
	_, err := ResolveCredential("cerebras", "")
	require.ErrorIs(t, err, ErrMissingCredential)
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load("/nonexistent/path/to/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultRLMConfig(), cfg.RLM)
}
