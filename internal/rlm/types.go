// Package rlm implements the Recursive Language-Model execution core: an
// iterative controller that lets a model analyze a document by writing and
// executing small code fragments in a sandboxed JavaScript runtime,
// recursively delegating sub-questions to further model invocations.
package rlm

import "time"

// SubCall is captured when code inside the sandbox calls llm_query or
// llm_query_batched: one nested model invocation.
type SubCall struct {
	Prompt          string        `json:"prompt"`
	Response        string        `json:"response"`
	InputTokens     int           `json:"input_tokens"`
	OutputTokens    int           `json:"output_tokens"`
	Elapsed         time.Duration `json:"elapsed"`
	ParentIteration int           `json:"parent_iteration"`
}

// REPLResult is the outcome of one code-fragment execution.
type REPLResult struct {
	Stdout        string            `json:"stdout"`
	Stderr        string            `json:"stderr"`
	Locals        map[string]string `json:"locals"`
	ExecutionTime time.Duration     `json:"execution_time"`
	RLMCalls      []SubCall         `json:"rlm_calls"`
}

// CodeBlock pairs one fenced ```repl block's raw source with its execution
// result. 1:1 with each fenced block the parser accepts.
type CodeBlock struct {
	Code   string     `json:"code"`
	Result REPLResult `json:"result"`
}

// RLMIteration is one round-trip of the control loop.
type RLMIteration struct {
	IterationNumber int           `json:"iteration_number"`
	Prompt          string        `json:"prompt"`
	Response        string        `json:"response"`
	CodeBlocks      []CodeBlock   `json:"code_blocks"`
	FinalAnswer     *string       `json:"final_answer,omitempty"`
	IterationTime   time.Duration `json:"iteration_time"`
}

// RLMMetadata is emitted once at run start.
type RLMMetadata struct {
	Model         string    `json:"model"`
	Provider      string    `json:"provider"`
	Environment   string    `json:"environment"`
	MaxIterations int       `json:"max_iterations"`
	StartTime     time.Time `json:"start_time"`
}

// ModelUsageSummary holds per-model cumulative counters plus the most
// recent call's counters.
type ModelUsageSummary struct {
	TotalCalls        int `json:"total_calls"`
	TotalInputTokens  int `json:"total_input_tokens"`
	TotalOutputTokens int `json:"total_output_tokens"`
	LastInputTokens   int `json:"last_input_tokens"`
	LastOutputTokens  int `json:"last_output_tokens"`
}

// UsageSummary maps model identifier to its cumulative usage.
type UsageSummary map[string]ModelUsageSummary
