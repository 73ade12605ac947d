package rlm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlm-core/rlm/internal/llm"
	"github.com/rlm-core/rlm/internal/rlm/sandbox"
)

type scriptedProvider struct {
	responses []string
	calls     int
	seenMsgs  [][]llm.Message
}

func (p *scriptedProvider) Chat(ctx context.Context, msgs []llm.Message, model string) (llm.Message, llm.Usage, error) {
	p.seenMsgs = append(p.seenMsgs, append([]llm.Message(nil), msgs...))
	if p.calls >= len(p.responses) {
		p.calls++
		return llm.Message{Role: "assistant", Content: "FINAL(\"out of script\")"}, llm.Usage{}, nil
	}
	resp := p.responses[p.calls]
	p.calls++
	return llm.Message{Role: "assistant", Content: resp}, llm.Usage{PromptTokens: 5, CompletionTokens: 5}, nil
}

func (p *scriptedProvider) ChatStream(ctx context.Context, msgs []llm.Message, model string, h llm.StreamHandler) (llm.Usage, error) {
	return llm.Usage{}, nil
}

type fakeSandboxRunner struct {
	locals map[string]string
}

func (f *fakeSandboxRunner) Execute(fragment string) sandbox.Result {
	return sandbox.Result{Stdout: "executed: " + fragment, Locals: f.locals}
}

func (f *fakeSandboxRunner) Lookup(name string) (string, bool) {
	v, ok := f.locals[name]
	return v, ok
}

func (f *fakeSandboxRunner) Close() {}

func fakeSandboxFactory(locals map[string]string) SandboxFactory {
	return func(docContext sandbox.Context, dispatcher sandbox.Dispatcher, depth int) SandboxRunner {
		return &fakeSandboxRunner{locals: locals}
	}
}

func TestController_SingleShotFinal(t *testing.T) {
	p := &scriptedProvider{responses: []string{`FINAL("the answer is 42")`}}
	c := &Controller{
		Provider:      p,
		Model:         "test-model",
		MaxIterations: 5,
		NewSandbox:    fakeSandboxFactory(nil),
	}
	answer, err := c.Run(context.Background(), "doc", "what is the answer?")
	require.NoError(t, err)
	assert.Equal(t, `"the answer is 42"`, answer)
	assert.Equal(t, 1, p.calls)
}

func TestController_CodeBlockThenFinalVar(t *testing.T) {
	p := &scriptedProvider{responses: []string{
		"```repl\nresult = 99\n```",
		"FINAL_VAR(result)",
	}}
	c := &Controller{
		Provider:      p,
		Model:         "test-model",
		MaxIterations: 5,
		NewSandbox:    fakeSandboxFactory(map[string]string{"result": "99"}),
	}
	answer, err := c.Run(context.Background(), "doc", "compute something")
	require.NoError(t, err)
	assert.Equal(t, "99", answer)
	assert.Equal(t, 2, p.calls)
}

func TestController_BudgetExhaustionReturnsLastResponseVerbatim(t *testing.T) {
	p := &scriptedProvider{responses: []string{
		"still thinking, no code here",
		"still thinking, almost there",
	}}
	c := &Controller{
		Provider:      p,
		Model:         "test-model",
		MaxIterations: 2,
		NewSandbox:    fakeSandboxFactory(nil),
	}
	answer, err := c.Run(context.Background(), "doc", "a hard question")
	require.NoError(t, err)
	assert.Equal(t, "still thinking, almost there", answer)
	assert.Equal(t, 2, p.calls)
}

func TestController_BudgetExhaustionEmitsCompleteNotError(t *testing.T) {
	p := &scriptedProvider{responses: []string{
		"still thinking, no code here",
		"still thinking, no code here",
	}}
	logger := NewStreamLogger(8)
	c := &Controller{
		Provider:      p,
		Model:         "test-model",
		MaxIterations: 2,
		NewSandbox:    fakeSandboxFactory(nil),
		Logger:        logger,
	}

	done := make(chan struct{})
	var events []Event
	go func() {
		for e := range logger.Events() {
			events = append(events, e)
		}
		close(done)
	}()

	answer, err := c.Run(context.Background(), "doc", "a hard question")
	require.NoError(t, err)
	assert.Equal(t, "still thinking, no code here", answer)
	logger.SignalComplete()
	<-done

	for _, e := range events {
		assert.NotEqual(t, EventError, e.Type, "exhaustion is a soft failure, not an error event")
	}
	assert.Equal(t, EventComplete, events[len(events)-1].Type)
	for _, e := range events {
		if e.Type == EventIteration {
			assert.Nil(t, e.IterationData.FinalAnswer)
		}
	}
}

func TestController_EmptyResponseInjectsNoMagicNudge(t *testing.T) {
	p := &scriptedProvider{responses: []string{
		"still thinking, no code here",
		`FINAL("done")`,
	}}
	c := &Controller{
		Provider:      p,
		Model:         "test-model",
		MaxIterations: 5,
		NewSandbox:    fakeSandboxFactory(nil),
	}
	answer, err := c.Run(context.Background(), "doc", "a hard question")
	require.NoError(t, err)
	assert.Equal(t, `"done"`, answer)

	require.Len(t, p.seenMsgs, 2)
	for _, m := range p.seenMsgs[1] {
		assert.NotContains(t, m.Content, "No code was executed")
		assert.NotContains(t, m.Content, "Continue")
	}
}

func TestController_LogsMetadataAndIterationsToStreamLogger(t *testing.T) {
	p := &scriptedProvider{responses: []string{`FINAL("done")`}}
	logger := NewStreamLogger(8)
	c := &Controller{
		Provider:      p,
		Model:         "test-model",
		MaxIterations: 3,
		NewSandbox:    fakeSandboxFactory(nil),
		Logger:        logger,
		ProviderTag:   "test",
	}

	done := make(chan struct{})
	var events []Event
	go func() {
		for e := range logger.Events() {
			events = append(events, e)
		}
		close(done)
	}()

	answer, err := c.Run(context.Background(), "doc", "question")
	require.NoError(t, err)
	assert.Equal(t, `"done"`, answer)
	logger.SignalComplete()
	<-done

	require.NotEmpty(t, events)
	assert.Equal(t, EventMetadata, events[0].Type)
	assert.Equal(t, EventIteration, events[1].Type)
	assert.Equal(t, EventComplete, events[len(events)-1].Type)
}

func TestController_DispatchFallsBackToFlatCompletionPastDepthCeiling(t *testing.T) {
	p := &scriptedProvider{responses: []string{"flat sub-answer"}}
	c := &Controller{
		Provider:          p,
		Model:             "test-model",
		MaxRecursionDepth: 2,
	}
	answer, _, err := c.Dispatch(context.Background(), "sub question", 3)
	require.NoError(t, err)
	assert.Equal(t, "flat sub-answer", answer)
}

func TestController_DispatchRecursesIntoChildRunUnderCeiling(t *testing.T) {
	p := &scriptedProvider{responses: []string{`FINAL("nested answer")`}}
	c := &Controller{
		Provider:          p,
		Model:             "test-model",
		MaxIterations:     10,
		MaxRecursionDepth: 3,
		NewSandbox:        fakeSandboxFactory(nil),
		docContext:        "doc",
	}
	answer, _, err := c.Dispatch(context.Background(), "sub question", 1)
	require.NoError(t, err)
	assert.Equal(t, `"nested answer"`, answer)
}
