package rlm

import (
	"context"
	"fmt"
	"time"

	"github.com/rlm-core/rlm/internal/llm"
	"github.com/rlm-core/rlm/internal/rlm/sandbox"
)

const systemPromptTemplate = `You are working through a document step by step using a JavaScript sandbox.

Write code in fenced ` + "```repl" + ` blocks to inspect the document bound to the
"context" global, call llm_query(prompt) or llm_query_batched(prompts) to
delegate sub-questions to yourself, and print intermediate results. Values
you assign at the top level persist into your next turn.

When you have the answer, write FINAL(answer) with the answer as literal
text (it is not evaluated), or FINAL_VAR(name) to return a variable already
bound in the sandbox, on a line by itself.`

// SandboxRunner is the subset of sandbox.Sandbox the controller depends on,
// so tests can substitute a fake without spinning up a goja runtime.
type SandboxRunner interface {
	Execute(fragment string) sandbox.Result
	Lookup(name string) (string, bool)
	Close()
}

// SandboxFactory builds a fresh sandbox for one Run call, wired to dispatch
// nested llm_query calls back through the given Dispatcher at depth.
type SandboxFactory func(docContext sandbox.Context, dispatcher sandbox.Dispatcher, depth int) SandboxRunner

// NewGojaSandbox is the production SandboxFactory, backed by a goja runtime.
func NewGojaSandbox(provider llm.Provider, model string, timeout time.Duration, batchConcurrency int) SandboxFactory {
	return func(docContext sandbox.Context, dispatcher sandbox.Dispatcher, depth int) SandboxRunner {
		return sandbox.New(sandbox.Config{
			Provider:         provider,
			Model:            model,
			Dispatcher:       dispatcher,
			Depth:            depth,
			FragmentTimeout:  timeout,
			BatchConcurrency: batchConcurrency,
		}, docContext)
	}
}

func toSandboxContext(c Context) sandbox.Context {
	return sandbox.Context{Str: c.Str, Data: c.Data, Seq: c.Seq}
}

func resultFromSandbox(r sandbox.Result) REPLResult {
	calls := make([]SubCall, len(r.RLMCalls))
	for i, sc := range r.RLMCalls {
		calls[i] = SubCall{
			Prompt:       sc.Prompt,
			Response:     sc.Response,
			InputTokens:  sc.InputTokens,
			OutputTokens: sc.OutputTokens,
			Elapsed:      sc.Elapsed,
		}
	}
	return REPLResult{
		Stdout:        r.Stdout,
		Stderr:        r.Stderr,
		Locals:        r.Locals,
		ExecutionTime: r.ExecutionTime,
		RLMCalls:      calls,
	}
}

// Controller drives the iteration loop described in spec.md: prompt the
// model, execute any ```repl blocks it wrote, feed results back, repeat
// until FINAL/FINAL_VAR or the iteration budget is exhausted.
type Controller struct {
	Provider llm.Provider
	Model    string
	Logger   *StreamLogger

	NewSandbox SandboxFactory

	MaxIterations     int
	SandboxTimeout    time.Duration
	BatchConcurrency  int
	MaxRecursionDepth int
	TruncationBudget  int

	ProviderTag string
	Environment string

	// Depth is this controller's own nesting level. Root runs start at 0;
	// a Dispatch call to handle a sub-query constructs a child Controller
	// with Depth = parent depth + 1 and a halved iteration budget.
	Depth int

	docContext any // set by Run, forwarded to child controllers spawned by Dispatch
}

// Run executes the full loop for one root prompt over the supplied context
// document and returns the synthesized final answer.
func (c *Controller) Run(ctx context.Context, docContext any, rootPrompt string) (string, error) {
	coerced, err := CoerceContext(docContext)
	if err != nil {
		return "", fmt.Errorf("rlm: coercing context: %w", err)
	}
	c.docContext = docContext

	if c.Logger != nil {
		c.Logger.LogMetadata(RLMMetadata{
			Model:         c.Model,
			Provider:      c.ProviderTag,
			Environment:   c.Environment,
			MaxIterations: c.MaxIterations,
			StartTime:     time.Now(),
		})
	}

	sb := c.NewSandbox(toSandboxContext(coerced), c, c.Depth)
	defer sb.Close()

	messages := []llm.Message{
		{Role: "system", Content: systemPromptTemplate},
		{Role: "user", Content: rootPrompt},
	}

	var lastResponse string

	for i := 0; i < c.MaxIterations; i++ {
		iterStart := time.Now()

		resp, _, err := c.Provider.Chat(ctx, messages, c.Model)
		if err != nil {
			if c.Logger != nil {
				c.Logger.LogError(err)
			}
			return "", fmt.Errorf("rlm: model call on iteration %d: %w", i+1, err)
		}
		lastResponse = resp.Content

		it := RLMIteration{
			Prompt:   lastUserContent(messages),
			Response: resp.Content,
		}

		blocks := FindCodeBlocks(resp.Content)
		for _, code := range blocks {
			result := resultFromSandbox(sb.Execute(code))
			it.CodeBlocks = append(it.CodeBlocks, CodeBlock{Code: code, Result: result})
			if c.Logger != nil {
				c.Logger.LogCodeResult(i+1, code, result)
			}
		}

		if answer, found := FindFinalAnswer(resp.Content, sb.Lookup); found {
			it.FinalAnswer = &answer
			it.IterationTime = time.Since(iterStart)
			if c.Logger != nil {
				c.Logger.Log(it)
			}
			return answer, nil
		}

		it.IterationTime = time.Since(iterStart)
		if c.Logger != nil {
			c.Logger.Log(it)
		}

		assistantTurn, userTurn := FormatIterationTurns(it, c.TruncationBudget)
		messages = append(messages, llm.Message{Role: "assistant", Content: assistantTurn})
		if len(blocks) > 0 {
			messages = append(messages, llm.Message{Role: "user", Content: userTurn})
		}
		// Empty response, no code executed: nothing to append. The next
		// iteration's prompt is the conversation as already accumulated,
		// with no controller-authored nudge text injected.
	}

	// Budget exhausted without FINAL/FINAL_VAR: a soft failure, not an
	// error. Return the model's last response verbatim rather than
	// synthesizing one.
	return lastResponse, nil
}

// Dispatch implements sandbox.Dispatcher: a nested llm_query call either
// spawns a bounded recursive sub-run (when under the depth ceiling) or, at
// the base case, degrades to one flat completion.
func (c *Controller) Dispatch(ctx context.Context, prompt string, depth int) (string, llm.Usage, error) {
	if depth > c.MaxRecursionDepth {
		resp, usage, err := c.Provider.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, c.Model)
		return resp.Content, usage, err
	}

	child := &Controller{
		Provider:          c.Provider,
		Model:             c.Model,
		NewSandbox:        c.NewSandbox,
		MaxIterations:     maxInt(c.MaxIterations/2, 5),
		SandboxTimeout:    c.SandboxTimeout,
		BatchConcurrency:  c.BatchConcurrency,
		MaxRecursionDepth: c.MaxRecursionDepth,
		TruncationBudget:  c.TruncationBudget,
		ProviderTag:       c.ProviderTag,
		Environment:       c.Environment,
		Depth:             depth,
	}
	answer, err := child.Run(ctx, c.docContext, prompt)
	return answer, llm.Usage{}, err
}

func lastUserContent(messages []llm.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
