// Package google adapts the RLM core's narrow llm.Provider contract onto
// the Gemini API via google.golang.org/genai.
package google

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/rlm-core/rlm/internal/config"
	"github.com/rlm-core/rlm/internal/llm"
	"github.com/rlm-core/rlm/internal/observability"
)

type Client struct {
	client  *genai.Client
	model   string
	tracker *llm.UsageTracker
}

func New(cfg config.GoogleConfig, apiKey string, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-1.5-flash"
	}

	httpOpts := genai.HTTPOptions{}
	if cfg.Timeout > 0 {
		t := cfg.Timeout
		httpOpts.Timeout = &t
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		httpOpts.BaseURL = strings.TrimSuffix(base, "/") + "/"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      strings.TrimSpace(apiKey),
		HTTPClient:  httpClient,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("init google client: %w", err)
	}

	return &Client{client: client, model: model, tracker: llm.NewUsageTracker()}, nil
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

	ctx, span := llm.StartRequestSpan(ctx, "google.Chat", effectiveModel, len(msgs))
	defer span.End()
	c.tracker.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	contents := toContents(msgs)

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, effectiveModel, contents, nil)
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", effectiveModel).Dur("duration", dur).Msg("google_chat_error")
		return llm.Message{}, llm.Usage{}, err
	}

	c.tracker.LogRedactedResponse(ctx, resp)
	out := messageFromResponse(resp)
	u := usageFromResponse(resp, out.Content)
	llm.RecordTokenAttributes(span, u)
	c.tracker.Record(effectiveModel, u)

	log.Debug().Str("model", effectiveModel).Dur("duration", dur).
		Int("prompt_tokens", u.PromptTokens).Int("completion_tokens", u.CompletionTokens).
		Msg("google_chat_ok")

	return out, u, nil
}

func (c *Client) ChatStream(ctx context.Context, msgs []llm.Message, model string, h llm.StreamHandler) (llm.Usage, error) {
	effectiveModel := c.pickModel(model)

	ctx, span := llm.StartRequestSpan(ctx, "google.ChatStream", effectiveModel, len(msgs))
	defer span.End()
	c.tracker.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	contents := toContents(msgs)
	stream := c.client.Models.GenerateContentStream(ctx, effectiveModel, contents, nil)

	var full strings.Builder
	var lastUsage *genai.GenerateContentResponseUsageMetadata
	for resp, err := range stream {
		if err != nil {
			span.RecordError(err)
			log.Error().Err(err).Str("model", effectiveModel).Msg("google_stream_error")
			return llm.Usage{}, err
		}
		if resp.UsageMetadata != nil {
			lastUsage = resp.UsageMetadata
		}
		delta := textFromResponse(resp)
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if h != nil {
			h.OnDelta(delta)
		}
	}

	u := llm.Usage{}
	if lastUsage != nil {
		u.PromptTokens = int(lastUsage.PromptTokenCount)
		u.CompletionTokens = int(lastUsage.CandidatesTokenCount)
	} else {
		u.CompletionTokens = llm.EstimateTokens(full.String())
	}
	llm.RecordTokenAttributes(span, u)
	c.tracker.Record(effectiveModel, u)

	return u, nil
}

func toContents(msgs []llm.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.RoleUser
		text := m.Content
		switch m.Role {
		case "assistant":
			role = genai.RoleModel
		case "system":
			text = "[system] " + text
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		contents = append(contents, genai.NewContentFromText(text, role))
	}
	return contents
}

func textFromResponse(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

func messageFromResponse(resp *genai.GenerateContentResponse) llm.Message {
	return llm.Message{Role: "assistant", Content: textFromResponse(resp)}
}

func usageFromResponse(resp *genai.GenerateContentResponse, completionText string) llm.Usage {
	if resp.UsageMetadata == nil {
		return llm.Usage{CompletionTokens: llm.EstimateTokens(completionText)}
	}
	return llm.Usage{
		PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
		CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
	}
}
