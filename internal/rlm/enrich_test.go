package rlm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyPhase_FinalWinsOverAnalyzing(t *testing.T) {
	resp := "```repl\nx = 1\n```\nFINAL(x)"
	assert.Equal(t, PhaseAnswering, ClassifyPhase(resp))
}

func TestClassifyPhase_Synthesizing(t *testing.T) {
	assert.Equal(t, PhaseSynthesizing, ClassifyPhase("In conclusion, the three reports agree."))
}

func TestClassifyPhase_Analyzing(t *testing.T) {
	assert.Equal(t, PhaseAnalyzing, ClassifyPhase("```repl\ncount(context)\n```"))
}

func TestClassifyPhase_ExploringIsFallback(t *testing.T) {
	assert.Equal(t, PhaseExploring, ClassifyPhase("Let me think about this differently."))
}

func TestAnnotateCode_DetectsDelegation(t *testing.T) {
	notes := AnnotateCode(`sub = llm_query("what is x?")`)
	assert.Contains(t, notes, "delegates a sub-question to another model call")
}

func TestAnnotateCode_DetectsFinal(t *testing.T) {
	notes := AnnotateCode(`FINAL_VAR(answer)`)
	assert.Contains(t, notes, "returns the final answer")
}

func TestAnnotateCode_NoMatchesIsEmpty(t *testing.T) {
	notes := AnnotateCode(`x = 1 + 1`)
	assert.Empty(t, notes)
}

func TestEnrich_FinalAnswerSummary(t *testing.T) {
	answer := "42"
	it := RLMIteration{Response: `FINAL(42)`, FinalAnswer: &answer}
	edu := Enrich(it)
	assert.Equal(t, PhaseAnswering, edu.Phase)
	assert.Equal(t, "produced a final answer", edu.SummaryLine)
}

func TestEnrich_ResponseWordLenCountsWords(t *testing.T) {
	it := RLMIteration{Response: "four distinct words"}
	edu := Enrich(it)
	assert.Equal(t, 3, edu.ResponseWordLen)
}

func TestEnrich_NoCodeSummary(t *testing.T) {
	it := RLMIteration{Response: "still exploring the document"}
	edu := Enrich(it)
	assert.Equal(t, "reasoned without running code", edu.SummaryLine)
}

func TestEnrich_SubCallsSummary(t *testing.T) {
	it := RLMIteration{
		Response: "```repl\nsub_a = llm_query(\"a\")\n```",
		CodeBlocks: []CodeBlock{
			{Code: `sub_a = llm_query("a")`, Result: REPLResult{RLMCalls: []SubCall{{Prompt: "a"}, {Prompt: "b"}}}},
		},
	}
	edu := Enrich(it)
	assert.Equal(t, "ran 1 code block and delegated 2 sub-questions", edu.SummaryLine)
	assert.Contains(t, edu.CodeNotes, "delegates a sub-question to another model call")
}
