package google

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"

	"github.com/rlm-core/rlm/internal/llm"
)

func TestToContents_PrefixesSystemMessages(t *testing.T) {
	msgs := []llm.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
	}
	contents := toContents(msgs)
	assert.Len(t, contents, 2)
	assert.Contains(t, contents[0].Parts[0].Text, "be brief")
}

func TestUsageFromResponse_FallsBackToEstimate(t *testing.T) {
	resp := &genai.GenerateContentResponse{}
	u := usageFromResponse(resp, "abcd")
	assert.Equal(t, 2, u.CompletionTokens)
	assert.Equal(t, 0, u.PromptTokens)
}
