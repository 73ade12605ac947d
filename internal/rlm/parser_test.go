package rlm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindCodeBlocks_ExtractsInOrder(t *testing.T) {
	resp := "Let's check.\n```repl\nx = 1\n```\nNow another:\n```repl\ny = 2\n```\n"
	blocks := FindCodeBlocks(resp)
	require.Len(t, blocks, 2)
	assert.Equal(t, "x = 1\n", blocks[0])
	assert.Equal(t, "y = 2\n", blocks[1])
}

func TestFindCodeBlocks_IgnoresOtherLanguageTags(t *testing.T) {
	resp := "```python\nprint(1)\n```\n```repl\nx = 1\n```"
	blocks := FindCodeBlocks(resp)
	require.Len(t, blocks, 1)
	assert.Equal(t, "x = 1\n", blocks[0])
}

func TestFindFinalAnswer_FinalVarTakesPrecedence(t *testing.T) {
	resp := "FINAL_VAR(answer)\nFINAL(\"ignored\")"
	lookup := func(name string) (string, bool) {
		if name == "answer" {
			return "the real answer", true
		}
		return "", false
	}
	ans, found := FindFinalAnswer(resp, lookup)
	require.True(t, found)
	assert.Equal(t, "the real answer", ans)
}

func TestFindFinalAnswer_FinalVarMissingNameIsErrorShaped(t *testing.T) {
	resp := "FINAL_VAR(missing)"
	lookup := func(name string) (string, bool) { return "", false }
	ans, found := FindFinalAnswer(resp, lookup)
	require.True(t, found)
	assert.Contains(t, ans, "missing")
}

func TestFindFinalAnswer_PlainFinalLiteral(t *testing.T) {
	resp := "FINAL(\"done computing\")"
	ans, found := FindFinalAnswer(resp, nil)
	require.True(t, found)
	assert.Equal(t, `"done computing"`, ans)
}

func TestFindFinalAnswer_SmartSubstitutionPrefersLongerScopeValue(t *testing.T) {
	resp := "FINAL(summary)"
	lookup := func(name string) (string, bool) {
		if name == "summary" {
			return "a much longer final answer than the bare variable name", true
		}
		return "", false
	}
	ans, found := FindFinalAnswer(resp, lookup)
	require.True(t, found)
	assert.Equal(t, "a much longer final answer than the bare variable name", ans)
}

func TestFindFinalAnswer_ShortScopeValueKeepsLiteral(t *testing.T) {
	resp := "FINAL(x)"
	lookup := func(name string) (string, bool) { return "1", true }
	ans, found := FindFinalAnswer(resp, lookup)
	require.True(t, found)
	assert.Equal(t, "x", ans)
}

func TestFindFinalAnswer_NoneFound(t *testing.T) {
	_, found := FindFinalAnswer("just thinking out loud", nil)
	assert.False(t, found)
}

func TestFormatResult_NoOutputNoLocals(t *testing.T) {
	out := formatResult(REPLResult{}, defaultTruncationBudget)
	assert.Equal(t, "No output", out)
}

func TestFormatResult_TruncatesLongStdout(t *testing.T) {
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'a'
	}
	out := formatResult(REPLResult{Stdout: string(long)}, 10)
	assert.Contains(t, out, "...[truncated")
	assert.True(t, len(out) < len(long)+40)
}

func TestCoerceContext_String(t *testing.T) {
	c, err := CoerceContext("hello")
	require.NoError(t, err)
	require.NotNil(t, c.Str)
	assert.Equal(t, "hello", *c.Str)
}

func TestCoerceContext_Mapping(t *testing.T) {
	c, err := CoerceContext(map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1}, c.Data)
}

func TestCoerceContext_MessageShapedSequenceFlattens(t *testing.T) {
	raw := []any{
		map[string]any{"role": "user", "content": "hi"},
		map[string]any{"role": "assistant", "content": "there"},
	}
	c, err := CoerceContext(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"hi", "there"}, c.Seq)
}

func TestCoerceContext_UnsupportedShapeErrors(t *testing.T) {
	_, err := CoerceContext(42)
	assert.Error(t, err)
}
