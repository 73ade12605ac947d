package rlm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const defaultTruncationBudget = 25000

// fenceRe matches fenced blocks whose opening tag is exactly "repl"
// (case-sensitive). Nested fences are not supported: the first closing
// ``` after an opening ```repl ends the block.
var fenceRe = regexp.MustCompile("(?s)```repl\\s*\\n(.*?)```")

// FindCodeBlocks extracts the bodies of fenced ```repl regions, in source
// order, fence lines removed. Other language tags are ignored.
func FindCodeBlocks(response string) []string {
	matches := fenceRe.FindAllStringSubmatch(response, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// looksLikeVariable reports whether s matches the bare identifier grammar.
func looksLikeVariable(s string) bool {
	return s != "" && identifierRe.MatchString(s)
}

// finalVarRe matches FINAL_VAR(name) at line start, name bare/single/double quoted.
var finalVarRe = regexp.MustCompile(`(?m)^\s*FINAL_VAR\(\s*(?:"([^"]*)"|'([^']*)'|([A-Za-z_][A-Za-z0-9_]*))\s*\)`)

// finalStartRe locates the start of a line-initial FINAL( call so the
// balanced-parenthesis payload (which may span lines) can be extracted.
var finalStartRe = regexp.MustCompile(`(?m)^\s*FINAL\(`)

// ScopeLookup resolves a variable name to its printable value from the
// sandbox scope. ok is false when the name is unbound.
type ScopeLookup func(name string) (value string, ok bool)

// FindFinalAnswer implements §4.2's final-answer detection precedence:
// FINAL_VAR wins over FINAL when both could match; FINAL_VAR without a
// scope (lookup == nil) intentionally yields no answer even if FINAL could
// have resolved, per spec.md §9's open-question resolution.
func FindFinalAnswer(response string, lookup ScopeLookup) (answer string, found bool) {
	if loc := finalVarRe.FindStringSubmatchIndex(response); loc != nil {
		groups := submatches(response, loc)
		name := firstNonEmpty(groups[1], groups[2], groups[3])
		if lookup == nil {
			return "", false
		}
		val, ok := lookup(name)
		if !ok {
			return fmt.Sprintf("Error: variable %q not found in sandbox scope", name), true
		}
		return val, true
	}

	if loc := finalStartRe.FindStringIndex(response); loc != nil {
		openParen := loc[1] - 1
		content, ok := extractBalancedParen(response, openParen)
		if !ok {
			return "", false
		}
		content = strings.TrimSpace(content)
		if looksLikeVariable(content) && lookup != nil {
			if val, ok := lookup(content); ok && len(val) > len(content) {
				return val, true
			}
		}
		return content, true
	}

	return "", false
}

func submatches(s string, loc []int) []string {
	out := make([]string, len(loc)/2)
	for i := range out {
		start, end := loc[2*i], loc[2*i+1]
		if start < 0 {
			continue
		}
		out[i] = s[start:end]
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// extractBalancedParen returns the text between the parenthesis at
// openParenIdx (response[openParenIdx] == '(') and its matching close,
// exclusive of both parens. ok is false if unbalanced.
func extractBalancedParen(s string, openParenIdx int) (string, bool) {
	depth := 0
	for i := openParenIdx; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[openParenIdx+1 : i], true
			}
		}
	}
	return "", false
}

// FormatIterationTurns produces the two prompt messages appended to the
// conversation after an iteration: the assistant's original response, and a
// user-role message with each code block's result rendered and truncated.
func FormatIterationTurns(it RLMIteration, truncationBudget int) (assistant, user string) {
	if truncationBudget <= 0 {
		truncationBudget = defaultTruncationBudget
	}
	var b strings.Builder
	for i, block := range it.CodeBlocks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("```repl\n")
		b.WriteString(block.Code)
		b.WriteString("\n```\n")
		b.WriteString(formatResult(block.Result, truncationBudget))
	}
	return it.Response, b.String()
}

func formatResult(r REPLResult, budget int) string {
	var b strings.Builder
	hasOutput := false
	if strings.TrimSpace(r.Stdout) != "" {
		b.WriteString(truncate(r.Stdout, budget))
		hasOutput = true
	}
	if strings.TrimSpace(r.Stderr) != "" {
		if hasOutput {
			b.WriteString("\n")
		}
		b.WriteString("stderr: ")
		b.WriteString(truncate(r.Stderr, budget))
		hasOutput = true
	}
	if len(r.Locals) > 0 {
		if hasOutput {
			b.WriteString("\n")
		}
		b.WriteString("locals: ")
		names := make([]string, 0, len(r.Locals))
		for name := range r.Locals {
			names = append(names, name)
		}
		for i, name := range names {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(name)
			b.WriteString("=")
			b.WriteString(truncate(r.Locals[name], budget))
		}
		hasOutput = true
	}
	if !hasOutput {
		return "No output"
	}
	return b.String()
}

func truncate(s string, budget int) string {
	if budget <= 0 || len(s) <= budget {
		return s
	}
	return s[:budget] + "\n...[truncated, " + strconv.Itoa(len(s)-budget) + " more chars]"
}

// Context is the coerced shape of the caller-supplied document handed to the
// sandbox, per spec §4.2's context-coercion rule.
type Context struct {
	Str  *string
	Data map[string]any
	Seq  []string
}

// CoerceContext applies §4.2's rule: a string passes through as Str; a
// mapping becomes Data; a sequence of strings becomes Seq; a sequence of
// message-shaped mappings (each with a "content" field) flattens to Seq of
// their contents. Anything else is an error.
func CoerceContext(raw any) (Context, error) {
	switch v := raw.(type) {
	case string:
		return Context{Str: &v}, nil
	case map[string]any:
		return Context{Data: v}, nil
	case []string:
		return Context{Seq: v}, nil
	case []any:
		seq := make([]string, 0, len(v))
		for _, item := range v {
			switch iv := item.(type) {
			case string:
				seq = append(seq, iv)
			case map[string]any:
				content, ok := iv["content"].(string)
				if !ok {
					return Context{}, fmt.Errorf("rlm: message-shaped context entry missing string %q field", "content")
				}
				seq = append(seq, content)
			default:
				return Context{}, fmt.Errorf("rlm: unsupported context sequence element type %T", item)
			}
		}
		return Context{Seq: seq}, nil
	default:
		return Context{}, fmt.Errorf("rlm: unsupported context shape %T", raw)
	}
}
