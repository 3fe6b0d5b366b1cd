package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},        // < 4 chars → 1
		{"abcd", 1},     // exactly 4 chars → 1
		{"abcde", 1},    // 5 chars → 1
		{"abcdefgh", 2}, // 8 chars → 2
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		got := Estimate(tc.input)
		if got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_EstimateMessages(t *testing.T) {
	t.Parallel()
	msgs := []*schema.Message{
		schema.UserMessage("hello world"),
		schema.UserMessage("hello world"),
	}
	// Each message: 4 overhead + Estimate("user")=1 + Estimate("hello world")=2 = 7
	if got := EstimateMessages(msgs); got != 14 {
		t.Errorf("EstimateMessages = %d, want 14", got)
	}
}

func Test_Check(t *testing.T) {
	t.Parallel()
	msgs := []*schema.Message{schema.UserMessage(strings.Repeat("x", 400))}

	tokens, over := Check(msgs, 50)
	if tokens != 105 || !over {
		t.Errorf("Check(limit 50) = %d, %v; want 105, true", tokens, over)
	}
	if _, over := Check(msgs, DefaultMaxPromptTokens); over {
		t.Error("Check(default limit) reported over budget")
	}
	if _, over := Check(msgs, 0); over {
		t.Error("Check(limit 0) should be disabled")
	}
}
