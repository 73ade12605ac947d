package openai

import (
	"testing"

	sdk "github.com/openai/openai-go/v2"
	"github.com/stretchr/testify/assert"

	"github.com/rlm-core/rlm/internal/config"
	"github.com/rlm-core/rlm/internal/llm"
)

func TestAdaptMessages_MapsRoles(t *testing.T) {
	msgs := []llm.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}
	out := adaptMessages(msgs)
	assert.Len(t, out, 3)
}

func TestNew_DefaultsModel(t *testing.T) {
	c := New(config.OpenAIConfig{}, "test-key", nil)
	assert.Equal(t, "gpt-4o-mini", c.model)
}

func TestMessageFromCompletion_EmptyChoices(t *testing.T) {
	msg := messageFromCompletion(&sdk.ChatCompletion{})
	assert.Equal(t, "assistant", msg.Role)
	assert.Empty(t, msg.Content)
}
