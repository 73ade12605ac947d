package llm

import "context"

// Message is a single conversation turn. The RLM core only ever sends
// system/user/assistant roles; provider clients map these onto whatever
// shape their SDK expects.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// Usage carries the token accounting a provider response reported, or —
// when a provider doesn't supply usage — the caller's own chars/4 estimate.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

func (u Usage) Total() int { return u.PromptTokens + u.CompletionTokens }

// StreamHandler receives incremental output from ChatStream. The RLM
// iteration controller only consumes text deltas.
type StreamHandler interface {
	OnDelta(content string)
}

// Provider is the narrow completion contract the RLM core depends on: a
// single-shot chat call and a streaming variant, both returning usage
// alongside the model's reply so the caller can record it.
type Provider interface {
	Chat(ctx context.Context, msgs []Message, model string) (Message, Usage, error)
	ChatStream(ctx context.Context, msgs []Message, model string, h StreamHandler) (Usage, error)
}
