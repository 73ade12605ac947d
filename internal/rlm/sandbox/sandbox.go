// Package sandbox implements the RLM code sandbox (spec.md's execution
// primitive): a persistent goja JavaScript runtime that a controller feeds
// one fenced code fragment at a time, accumulating scope across calls within
// one run.
package sandbox

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"golang.org/x/sync/errgroup"

	"github.com/rlm-core/rlm/internal/llm"
)

// maxLocalValue bounds how much of a single local's printed form is kept in
// a Result; the overall response is truncated again by the parser's
// truncation budget.
const maxLocalValue = 4000

// Context mirrors the coerced document shape the controller hands to a
// sandbox. Kept independent of package rlm so a Controller (which embeds
// sandboxes as a Dispatcher) can import this package without a cycle.
type Context struct {
	Str  *string
	Data map[string]any
	Seq  []string
}

// SubCall is captured whenever sandboxed code calls llm_query or
// llm_query_batched.
type SubCall struct {
	Prompt       string
	Response     string
	InputTokens  int
	OutputTokens int
	Elapsed      time.Duration
}

// Result is the outcome of one code-fragment execution.
type Result struct {
	Stdout        string
	Stderr        string
	Locals        map[string]string
	ExecutionTime time.Duration
	RLMCalls      []SubCall
}

// Dispatcher lets a sandbox hand a sub-question back up to the controller
// that owns it, so llm_query/llm_query_batched can themselves run a bounded,
// recursive RLM pass instead of a single flat completion — the "recursive"
// half of the execution core. Depth is the sandbox's own nesting level; the
// dispatcher decides whether depth+1 still fits under the configured ceiling
// and falls back to a flat completion at the base case.
type Dispatcher interface {
	Dispatch(ctx context.Context, prompt string, depth int) (answer string, usage llm.Usage, err error)
}

// Config configures one Sandbox instance. Dispatcher may be nil (llm_query
// then always does a flat call); a zero FragmentTimeout becomes 30s and a
// zero BatchConcurrency becomes 8.
type Config struct {
	Provider         llm.Provider
	Model            string
	Dispatcher       Dispatcher
	Depth            int
	FragmentTimeout  time.Duration
	BatchConcurrency int
}

// Sandbox wraps one persistent goja runtime. Not safe for concurrent use:
// the controller drives fragments through it serially, matching goja's
// single-goroutine execution model.
type Sandbox struct {
	vm   *goja.Runtime
	cfg  Config
	base map[string]bool // global property names present before user code ever ran

	stdout *strings.Builder
	stderr *strings.Builder

	mu       sync.Mutex
	subCalls []SubCall
}

// New constructs a Sandbox, injects the context document and the llm_query /
// llm_query_batched primitives, and snapshots the baseline global scope so
// later fragments' locals can be diffed against it.
func New(cfg Config, docContext Context) *Sandbox {
	if cfg.FragmentTimeout <= 0 {
		cfg.FragmentTimeout = 30 * time.Second
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 8
	}

	vm := goja.New()
	sb := &Sandbox{vm: vm, cfg: cfg}

	sb.injectPrintFuncs()
	sb.injectContext(docContext)
	sb.injectLLMPrimitives()

	sb.base = map[string]bool{}
	for _, k := range vm.GlobalObject().Keys() {
		sb.base[k] = true
	}
	return sb
}

func (sb *Sandbox) injectPrintFuncs() {
	write := func(w *strings.Builder) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, a := range call.Arguments {
				parts[i] = a.String()
			}
			w.WriteString(strings.Join(parts, " "))
			w.WriteString("\n")
			return goja.Undefined()
		}
	}
	sb.stdout = &strings.Builder{}
	sb.stderr = &strings.Builder{}
	_ = sb.vm.Set("print", write(sb.stdout))

	console := sb.vm.NewObject()
	_ = console.Set("log", write(sb.stdout))
	_ = console.Set("error", write(sb.stderr))
	_ = console.Set("warn", write(sb.stderr))
	_ = sb.vm.Set("console", console)
}

func (sb *Sandbox) injectContext(c Context) {
	switch {
	case c.Str != nil:
		_ = sb.vm.Set("context", *c.Str)
	case c.Data != nil:
		_ = sb.vm.Set("context", c.Data)
	case c.Seq != nil:
		_ = sb.vm.Set("context", c.Seq)
	default:
		_ = sb.vm.Set("context", goja.Undefined())
	}
}

func (sb *Sandbox) injectLLMPrimitives() {
	_ = sb.vm.Set("llm_query", func(prompt string) string {
		answer, _, err := sb.dispatch(context.Background(), prompt)
		if err != nil {
			return fmt.Sprintf("Error: %s", err)
		}
		return answer
	})
	_ = sb.vm.Set("llm_query_batched", func(prompts []string) []string {
		return sb.dispatchBatch(context.Background(), prompts)
	})
}

func (sb *Sandbox) dispatch(ctx context.Context, prompt string) (string, llm.Usage, error) {
	start := time.Now()
	var answer string
	var usage llm.Usage
	var err error

	if sb.cfg.Dispatcher != nil {
		answer, usage, err = sb.cfg.Dispatcher.Dispatch(ctx, prompt, sb.cfg.Depth+1)
	} else {
		var resp llm.Message
		resp, usage, err = sb.cfg.Provider.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, sb.cfg.Model)
		answer = resp.Content
	}

	sb.mu.Lock()
	sb.subCalls = append(sb.subCalls, SubCall{
		Prompt:       prompt,
		Response:     answer,
		InputTokens:  usage.PromptTokens,
		OutputTokens: usage.CompletionTokens,
		Elapsed:      time.Since(start),
	})
	sb.mu.Unlock()
	return answer, usage, err
}

// dispatchBatch runs up to cfg.BatchConcurrency dispatches concurrently,
// preserving input order in the output slice. A failed slot gets an
// "Error: ..." sentinel string rather than aborting its siblings.
func (sb *Sandbox) dispatchBatch(ctx context.Context, prompts []string) []string {
	out := make([]string, len(prompts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sb.cfg.BatchConcurrency)
	for i, p := range prompts {
		i, p := i, p
		g.Go(func() error {
			answer, _, err := sb.dispatch(gctx, p)
			if err != nil {
				out[i] = fmt.Sprintf("Error: %s", err)
				return nil
			}
			out[i] = answer
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Execute runs one code fragment against the persistent runtime, enforcing
// FragmentTimeout via goja's interrupt mechanism, and reports the locals
// this fragment bound or rebound (excluding any name starting with "_").
func (sb *Sandbox) Execute(fragment string) Result {
	sb.stdout.Reset()
	sb.stderr.Reset()
	sb.mu.Lock()
	sb.subCalls = nil
	sb.mu.Unlock()

	before := sb.snapshotGlobals()

	timer := time.AfterFunc(sb.cfg.FragmentTimeout, func() {
		sb.vm.Interrupt("fragment execution timed out")
	})
	start := time.Now()
	_, runErr := sb.vm.RunString(fragment)
	elapsed := time.Since(start)
	timer.Stop()

	if runErr != nil {
		sb.stderr.WriteString(runErr.Error())
		sb.stderr.WriteString("\n")
	}

	after := sb.snapshotGlobals()
	locals := diffLocals(before, after)

	sb.mu.Lock()
	calls := sb.subCalls
	sb.mu.Unlock()

	return Result{
		Stdout:        sb.stdout.String(),
		Stderr:        sb.stderr.String(),
		Locals:        locals,
		ExecutionTime: elapsed,
		RLMCalls:      calls,
	}
}

// snapshotGlobals exports every non-base, non-underscore global to its
// printable form.
func (sb *Sandbox) snapshotGlobals() map[string]string {
	out := map[string]string{}
	obj := sb.vm.GlobalObject()
	keys := obj.Keys()
	sort.Strings(keys)
	for _, k := range keys {
		if sb.base[k] || strings.HasPrefix(k, "_") {
			continue
		}
		v := obj.Get(k)
		if v == nil {
			continue
		}
		out[k] = printableValue(v)
	}
	return out
}

// printableValue renders v for locals-diff display, truncated to
// maxLocalValue. Truncation is a display concern only — Lookup (final-answer
// resolution) uses rawPrintable instead, untruncated.
func printableValue(v goja.Value) string {
	s := rawPrintable(v)
	if len(s) > maxLocalValue {
		return s[:maxLocalValue] + "...[truncated]"
	}
	return s
}

func rawPrintable(v goja.Value) string {
	return v.String()
}

// diffLocals returns the entries in after that are new or changed relative
// to before: "bound or rebound by this fragment".
func diffLocals(before, after map[string]string) map[string]string {
	out := map[string]string{}
	for k, v := range after {
		if prev, ok := before[k]; !ok || prev != v {
			out[k] = v
		}
	}
	return out
}

// Close releases the runtime's interrupt state. Idempotent.
func (sb *Sandbox) Close() {
	sb.vm.ClearInterrupt()
}

// Lookup resolves a bound global's untruncated printable value, for the
// final-answer parser's FINAL(name)/FINAL_VAR(name) resolution. Unlike
// locals-diff display, a final answer is never truncated.
func (sb *Sandbox) Lookup(name string) (string, bool) {
	v := sb.vm.GlobalObject().Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return "", false
	}
	return rawPrintable(v), true
}
