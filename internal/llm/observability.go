package llm

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rlm-core/rlm/internal/observability"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// UsageTracker accumulates prompt/completion token counts for a single
// provider client instance. Each client owns one: per spec, usage counters
// are scoped to the call's own client instance rather than shared globally,
// so concurrent sub-queries against independent clients never contend on a
// package-level lock.
type UsageTracker struct {
	mu        sync.Mutex
	perModel  map[string]Usage
	enableLog bool
	truncate  int
}

// NewUsageTracker returns a tracker with payload logging disabled. Call
// ConfigureLogging to enable redacted prompt/response debug logging.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{perModel: make(map[string]Usage)}
}

// ConfigureLogging sets this tracker's prompt/response debug-logging
// behavior. truncate of 0 disables truncation.
func (t *UsageTracker) ConfigureLogging(enable bool, truncate int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enableLog = enable
	t.truncate = truncate
}

func (t *UsageTracker) shouldLog() (bool, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enableLog, t.truncate
}

// Record adds the given usage to this tracker's per-model running totals.
func (t *UsageTracker) Record(model string, u Usage) {
	if model == "" || (u.PromptTokens == 0 && u.CompletionTokens == 0) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	cur := t.perModel[model]
	cur.PromptTokens += u.PromptTokens
	cur.CompletionTokens += u.CompletionTokens
	t.perModel[model] = cur
}

// Snapshot returns a copy of this tracker's current per-model totals.
func (t *UsageTracker) Snapshot() map[string]Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]Usage, len(t.perModel))
	for k, v := range t.perModel {
		out[k] = v
	}
	return out
}

// StartRequestSpan starts a tracer span for an LLM request and sets common attributes.
func StartRequestSpan(ctx context.Context, operation string, model string, messages int) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("internal/llm").Start(ctx, operation)
	span.SetAttributes(attribute.String("llm.model", model), attribute.Int("llm.messages", messages))
	return ctx, span
}

// LogRedactedPrompt logs a redacted copy of the prompt/messages at debug
// level using this tracker's logging configuration. No-op when logging is
// disabled for this tracker.
func (t *UsageTracker) LogRedactedPrompt(ctx context.Context, msgs []Message) {
	ok, limit := t.shouldLog()
	if !ok {
		return
	}
	log := observability.LoggerWithTrace(ctx)
	b, err := json.Marshal(msgs)
	if err != nil {
		return
	}
	red := observability.RedactJSON(b)
	logRedacted(log, "prompt", "llm_request", red, limit)
}

// LogRedactedResponse logs a redacted copy of the response payload at debug level.
func (t *UsageTracker) LogRedactedResponse(ctx context.Context, resp any) {
	ok, limit := t.shouldLog()
	if !ok {
		return
	}
	log := observability.LoggerWithTrace(ctx)
	b, err := json.Marshal(resp)
	if err != nil {
		return
	}
	red := observability.RedactJSON(b)
	logRedacted(log, "response", "llm_response", red, limit)
}

func logRedacted(log *zerolog.Logger, field, msg string, red []byte, limit int) {
	if limit > 0 && len(red) > limit {
		previewObj := map[string]any{"truncated": true, "preview": string(red[:limit])}
		if pb, err := json.Marshal(previewObj); err == nil {
			red = pb
		}
	}
	tmp := log.With().RawJSON(field, red).Logger()
	tmp.Debug().Msg(msg)
}

// RecordTokenAttributes sets token count attributes on the provided span.
func RecordTokenAttributes(span trace.Span, u Usage) {
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", u.PromptTokens),
		attribute.Int("llm.completion_tokens", u.CompletionTokens),
		attribute.Int("llm.total_tokens", u.Total()),
	)
}
