// Package anthropic adapts the RLM core's narrow llm.Provider contract onto
// the Anthropic Messages API.
package anthropic

import (
	"context"
	"net/http"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/rlm-core/rlm/internal/config"
	"github.com/rlm-core/rlm/internal/llm"
	"github.com/rlm-core/rlm/internal/observability"
)

const defaultMaxTokens int64 = 4096

// Client is an llm.Provider backed by the Anthropic Go SDK.
type Client struct {
	sdk     anthropicsdk.Client
	model   string
	tracker *llm.UsageTracker
}

// New constructs an Anthropic client. apiKey has already been resolved per
// the precedence rule in config.ResolveCredential.
func New(cfg config.AnthropicConfig, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(apiKey)),
		option.WithHTTPClient(httpClient),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/")))
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(anthropicsdk.ModelClaude3_7SonnetLatest)
	}
	return &Client{
		sdk:     anthropicsdk.NewClient(opts...),
		model:   model,
		tracker: llm.NewUsageTracker(),
	}
}

// Usage returns a snapshot of this client's per-model token accounting.
func (c *Client) Usage() map[string]llm.Usage { return c.tracker.Snapshot() }

func (c *Client) pickModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return c.model
}

func (c *Client) Chat(ctx context.Context, msgs []llm.Message, model string) (llm.Message, llm.Usage, error) {
	sys, converted := adaptMessages(msgs)
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(c.pickModel(model)),
		Messages:  converted,
		System:    sys,
		MaxTokens: defaultMaxTokens,
	}

	ctx, span := llm.StartRequestSpan(ctx, "anthropic.Chat", string(params.Model), len(msgs))
	defer span.End()
	c.tracker.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", string(params.Model)).Dur("duration", dur).Msg("anthropic_chat_error")
		return llm.Message{}, llm.Usage{}, err
	}

	c.tracker.LogRedactedResponse(ctx, resp)
	out := messageFromResponse(resp)
	u := llm.Usage{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}
	llm.RecordTokenAttributes(span, u)
	c.tracker.Record(string(params.Model), u)

	log.Debug().Str("model", string(params.Model)).Dur("duration", dur).
		Int("prompt_tokens", u.PromptTokens).Int("completion_tokens", u.CompletionTokens).
		Msg("anthropic_chat_ok")

	return out, u, nil
}

func (c *Client) ChatStream(ctx context.Context, msgs []llm.Message, model string, h llm.StreamHandler) (llm.Usage, error) {
	sys, converted := adaptMessages(msgs)
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(c.pickModel(model)),
		Messages:  converted,
		System:    sys,
		MaxTokens: defaultMaxTokens,
	}

	ctx, span := llm.StartRequestSpan(ctx, "anthropic.ChatStream", string(params.Model), len(msgs))
	defer span.End()
	c.tracker.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	stream := c.sdk.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var acc anthropicsdk.Message
	for stream.Next() {
		event := stream.Current()
		if err := acc.Accumulate(event); err != nil {
			log.Debug().Err(err).Msg("anthropic_accumulate_error")
		}
		if delta, ok := event.AsAny().(anthropicsdk.ContentBlockDeltaEvent); ok {
			if textDelta, ok := delta.Delta.AsAny().(anthropicsdk.TextDelta); ok && h != nil {
				h.OnDelta(textDelta.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", string(params.Model)).Msg("anthropic_stream_error")
		return llm.Usage{}, err
	}

	u := llm.Usage{
		PromptTokens:     int(acc.Usage.InputTokens),
		CompletionTokens: int(acc.Usage.OutputTokens),
	}
	llm.RecordTokenAttributes(span, u)
	c.tracker.Record(string(params.Model), u)
	c.tracker.LogRedactedResponse(ctx, acc)

	return u, nil
}

func adaptMessages(msgs []llm.Message) ([]anthropicsdk.TextBlockParam, []anthropicsdk.MessageParam) {
	var sys []anthropicsdk.TextBlockParam
	converted := make([]anthropicsdk.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			sys = append(sys, anthropicsdk.TextBlockParam{Text: m.Content})
		case "assistant":
			converted = append(converted, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(m.Content)))
		default:
			converted = append(converted, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(m.Content)))
		}
	}
	return sys, converted
}

func messageFromResponse(resp *anthropicsdk.Message) llm.Message {
	var b strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropicsdk.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	return llm.Message{Role: "assistant", Content: b.String()}
}
