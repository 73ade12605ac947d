package llm

import "testing"

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abcd", 2},
		{"hello world", 3},
	}
	for _, c := range cases {
		if got := EstimateTokens(c.in); got != c.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestEstimateTokensForMessages(t *testing.T) {
	msgs := []Message{{Role: "user", Content: "abcd"}, {Role: "assistant", Content: "abcd"}}
	if got, want := EstimateTokensForMessages(msgs), 4; got != want {
		t.Errorf("EstimateTokensForMessages() = %d, want %d", got, want)
	}
}
