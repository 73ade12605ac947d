package testhelpers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/rlm-core/rlm/internal/llm"
)

// FakeProvider is a simple llm.Provider for tests. It can be configured
// with a fixed response or a streaming sequence.
type FakeProvider struct {
	Resp  llm.Message
	Usage llm.Usage
	Err   error

	// For streaming tests
	StreamDeltas []string
}

func (f *FakeProvider) Chat(ctx context.Context, msgs []llm.Message, model string) (llm.Message, llm.Usage, error) {
	if f.Err != nil {
		return llm.Message{}, llm.Usage{}, f.Err
	}
	return f.Resp, f.Usage, nil
}

func (f *FakeProvider) ChatStream(ctx context.Context, msgs []llm.Message, model string, h llm.StreamHandler) (llm.Usage, error) {
	if f.Err != nil {
		return llm.Usage{}, f.Err
	}
	for _, d := range f.StreamDeltas {
		h.OnDelta(d)
	}
	return f.Usage, nil
}

// NewTestServer returns an httptest.Server for the given handler func.
func NewTestServer(handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(handler))
}

// WaitGroupDoneOnce returns a function that will call wg.Done() only once; useful for
// tests that need to ensure a WaitGroup is decremented a single time from multiple places.
func WaitGroupDoneOnce(wg *sync.WaitGroup) func() {
	once := sync.Once{}
	return func() { once.Do(wg.Done) }
}
