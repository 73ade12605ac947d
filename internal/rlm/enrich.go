package rlm

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/rlm-core/rlm/internal/util"
)

// Phase classifies what an iteration appears to be doing, for display
// purposes only — it never influences control flow.
type Phase string

const (
	PhaseAnswering    Phase = "answering"
	PhaseSynthesizing Phase = "synthesizing"
	PhaseAnalyzing    Phase = "analyzing"
	PhaseExploring    Phase = "exploring"
)

// phaseRules are tried in order; the first regex to match the response
// text wins. Exploring is the fallback when nothing else matches.
var phaseRules = []struct {
	phase Phase
	re    *regexp.Regexp
}{
	{PhaseAnswering, regexp.MustCompile(`(?i)\bFINAL(_VAR)?\s*\(`)},
	{PhaseSynthesizing, regexp.MustCompile(`(?i)\b(summar\w*|combin\w*|synthesiz\w*|in conclusion)\b`)},
	{PhaseAnalyzing, regexp.MustCompile("```repl")},
}

// ClassifyPhase applies the fixed first-match-wins rule set.
func ClassifyPhase(response string) Phase {
	for _, rule := range phaseRules {
		if rule.re.MatchString(response) {
			return rule.phase
		}
	}
	return PhaseExploring
}

// annotation describes one fixed pattern the code annotator recognizes in a
// code fragment, paired with the human-readable note to attach.
type annotation struct {
	note string
	re   *regexp.Regexp
}

var codeAnnotations = []annotation{
	{"delegates a sub-question to another model call", regexp.MustCompile(`\bllm_query(_batched)?\s*\(`)},
	{"reads the supplied document", regexp.MustCompile(`\bcontext\b`)},
	{"returns the final answer", regexp.MustCompile(`\bFINAL(_VAR)?\s*\(`)},
	{"iterates over a collection", regexp.MustCompile(`\bfor\s*\(`)},
	{"defines a function", regexp.MustCompile(`\bfunction\s+\w+\s*\(`)},
}

// AnnotateCode returns the notes (in rule order, each at most once) that
// apply to a code fragment.
func AnnotateCode(code string) []string {
	var notes []string
	for _, a := range codeAnnotations {
		if a.re.MatchString(code) {
			notes = append(notes, a.note)
		}
	}
	return notes
}

// Education is the enrichment attached to one iteration for display: never
// mutates the iteration itself, never affects control flow.
type Education struct {
	Phase           Phase    `json:"phase"`
	CodeNotes       []string `json:"code_notes,omitempty"`
	SummaryLine     string   `json:"summary_line"`
	ResponseWordLen int      `json:"response_word_len"`
}

// Enrich derives an Education record from a finished RLMIteration. Pure
// function: same iteration always yields the same record.
//
// ResponseWordLen uses util.CountTokens, a word/punctuation heuristic distinct
// from llm.EstimateTokens's chars/4 billing estimate — this one is for a
// human-readable "how much did the model write this turn" display, not usage
// accounting.
func Enrich(it RLMIteration) Education {
	phase := ClassifyPhase(it.Response)

	var notes []string
	for _, block := range it.CodeBlocks {
		notes = append(notes, AnnotateCode(block.Code)...)
	}

	return Education{
		Phase:           phase,
		CodeNotes:       notes,
		SummaryLine:     summaryLine(it, phase),
		ResponseWordLen: util.CountTokens(it.Response),
	}
}

func summaryLine(it RLMIteration, phase Phase) string {
	subCalls := 0
	for _, b := range it.CodeBlocks {
		subCalls += len(b.Result.RLMCalls)
	}

	switch {
	case it.FinalAnswer != nil:
		return "produced a final answer"
	case len(it.CodeBlocks) == 0:
		return "reasoned without running code"
	case subCalls > 0:
		return pluralCallsSummary(len(it.CodeBlocks), subCalls)
	default:
		return codeOnlySummary(len(it.CodeBlocks), phase)
	}
}

func pluralCallsSummary(blocks, subCalls int) string {
	var b strings.Builder
	b.WriteString("ran ")
	b.WriteString(pluralize(blocks, "code block"))
	b.WriteString(" and delegated ")
	b.WriteString(pluralize(subCalls, "sub-question"))
	return b.String()
}

func codeOnlySummary(blocks int, phase Phase) string {
	return "ran " + pluralize(blocks, "code block") + " while " + string(phase)
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
