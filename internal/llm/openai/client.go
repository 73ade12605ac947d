// Package openai adapts the RLM core's narrow llm.Provider contract onto the
// OpenAI Chat Completions API. Because cerebras, openrouter, and local
// OpenAI-compatible servers speak the same wire protocol, this one client
// serves all of them — BaseURL is the only thing that differs.
package openai

import (
	"context"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/rlm-core/rlm/internal/config"
	"github.com/rlm-core/rlm/internal/llm"
	"github.com/rlm-core/rlm/internal/observability"
)

type Client struct {
	sdk     sdk.Client
	model   string
	tracker *llm.UsageTracker
}

// New constructs an OpenAI-compatible client. apiKey has already been
// resolved per config.ResolveCredential's precedence rule.
func New(cfg config.OpenAIConfig, apiKey string, httpClient *http.Client) *Client {
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
		model = "gpt-4o-mini"
	}
	return &Client{sdk: sdk.NewClient(opts...), model: model, tracker: llm.NewUsageTracker()}
}

func (c *Client) Usage() map[string]llm.Usage { return c.tracker.Snapshot() }

func (c *Client) pickModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return c.model
}

func (c *Client) Chat(ctx context.Context, msgs []llm.Message, model string) (llm.Message, llm.Usage, error) {
	effectiveModel := c.pickModel(model)
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(effectiveModel),
		Messages: adaptMessages(msgs),
	}

	ctx, span := llm.StartRequestSpan(ctx, "openai.Chat", effectiveModel, len(msgs))
	defer span.End()
	c.tracker.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", effectiveModel).Dur("duration", dur).Msg("openai_chat_error")
		return llm.Message{}, llm.Usage{}, err
	}

	c.tracker.LogRedactedResponse(ctx, comp)
	out := messageFromCompletion(comp)
	u := llm.Usage{
		PromptTokens:     int(comp.Usage.PromptTokens),
		CompletionTokens: int(comp.Usage.CompletionTokens),
	}
	llm.RecordTokenAttributes(span, u)
	c.tracker.Record(effectiveModel, u)

	log.Debug().Str("model", effectiveModel).Dur("duration", dur).
		Int("prompt_tokens", u.PromptTokens).Int("completion_tokens", u.CompletionTokens).
		Msg("openai_chat_ok")

	return out, u, nil
}

func (c *Client) ChatStream(ctx context.Context, msgs []llm.Message, model string, h llm.StreamHandler) (llm.Usage, error) {
	effectiveModel := c.pickModel(model)
	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(effectiveModel),
		Messages: adaptMessages(msgs),
	}
	params.StreamOptions.IncludeUsage = sdk.Bool(true)

	ctx, span := llm.StartRequestSpan(ctx, "openai.ChatStream", effectiveModel, len(msgs))
	defer span.End()
	c.tracker.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	stream := c.sdk.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var full strings.Builder
	u := llm.Usage{}
	for stream.Next() {
		chunk := stream.Current()
		if chunk.Usage.TotalTokens > 0 {
			u.PromptTokens = int(chunk.Usage.PromptTokens)
			u.CompletionTokens = int(chunk.Usage.CompletionTokens)
		}
		for _, choice := range chunk.Choices {
			delta := choice.Delta.Content
			if delta == "" {
				continue
			}
			full.WriteString(delta)
			if h != nil {
				h.OnDelta(delta)
			}
		}
	}
	if err := stream.Err(); err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", effectiveModel).Msg("openai_stream_error")
		return llm.Usage{}, err
	}

	if u.CompletionTokens == 0 {
		u.CompletionTokens = llm.EstimateTokens(full.String())
	}
	llm.RecordTokenAttributes(span, u)
	c.tracker.Record(effectiveModel, u)

	return u, nil
}

func adaptMessages(msgs []llm.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, sdk.SystemMessage(m.Content))
		case "assistant":
			out = append(out, sdk.AssistantMessage(m.Content))
		default:
			out = append(out, sdk.UserMessage(m.Content))
		}
	}
	return out
}

func messageFromCompletion(comp *sdk.ChatCompletion) llm.Message {
	if len(comp.Choices) == 0 {
		return llm.Message{Role: "assistant"}
	}
	return llm.Message{Role: "assistant", Content: comp.Choices[0].Message.Content}
}
