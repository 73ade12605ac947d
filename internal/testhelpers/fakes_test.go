package testhelpers

import (
	"context"
	"testing"

	"github.com/rlm-core/rlm/internal/llm"
)

type collectHandler struct {
	Deltas []string
}

func (c *collectHandler) OnDelta(s string) { c.Deltas = append(c.Deltas, s) }

func TestFakeProvider_Chat(t *testing.T) {
	fp := &FakeProvider{Resp: llm.Message{Role: "assistant", Content: "ok"}}
	m, _, err := fp.Chat(context.Background(), nil, "model")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if m.Content != "ok" {
		t.Fatalf("unexpected content: %q", m.Content)
	}
}

func TestFakeProvider_ChatStream(t *testing.T) {
	fp := &FakeProvider{StreamDeltas: []string{"a", "b", "c"}}
	h := &collectHandler{}
	if _, err := fp.ChatStream(context.Background(), nil, "m", h); err != nil {
		t.Fatalf("stream err: %v", err)
	}
	if len(h.Deltas) != 3 {
		t.Fatalf("expected 3 deltas, got %d", len(h.Deltas))
	}
}

func TestFakeProvider_ChatReturnsConfiguredError(t *testing.T) {
	fp := &FakeProvider{Err: context.DeadlineExceeded}
	if _, _, err := fp.Chat(context.Background(), nil, "m"); err == nil {
		t.Fatal("expected configured error, got nil")
	}
}
