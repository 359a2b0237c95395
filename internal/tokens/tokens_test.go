package tokens

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"

	"github.com/tjfontaine/rag-chat-proxy/internal/api/openai"
)

func TestCounter_CountText(t *testing.T) {
	c := NewCounter()

	tests := []struct {
		text      string
		minTokens int
		maxTokens int
	}{
		{"", 0, 0},
		{"hello", 1, 2},
		{"Hello, World!", 3, 6},
		{"The quick brown fox", 4, 8},
		{"supercalifragilisticexpialidocious", 3, 12},
	}

	for _, model := range []string{"gpt-4o-mini", "gpt-4", "some-future-model"} {
		for _, tt := range tests {
			t.Run(model+"/"+tt.text, func(t *testing.T) {
				got, err := c.CountText(model, tt.text)
				if err != nil {
					t.Fatalf("CountText() error = %v", err)
				}
				if got < tt.minTokens || got > tt.maxTokens {
					t.Errorf("CountText(%q) = %d, want between %d and %d",
						tt.text, got, tt.minTokens, tt.maxTokens)
				}
			})
		}
	}
}

func TestCounter_CountMessages(t *testing.T) {
	c := NewCounter()

	short := []openai.ChatCompletionMessage{
		{Role: "user", Content: openai.TextContent("Hello")},
	}
	long := []openai.ChatCompletionMessage{
		{Role: "system", Content: openai.TextContent("You are a helpful assistant.")},
		{Role: "user", Content: openai.TextContent("What are my recent labs?")},
		{Role: "assistant", ToolCalls: []openai.ToolCall{{
			ID: "call_1", Type: "function",
			Function: openai.FunctionCall{Name: "get_resources", Arguments: `{"resourceCategories":["labs"]}`},
		}}},
		{Role: "tool", ToolCallID: "call_1", Content: openai.TextContent("All labs normal.")},
	}

	s, err := c.CountMessages("gpt-4o-mini", short)
	if err != nil {
		t.Fatalf("CountMessages() error = %v", err)
	}
	// 3 priming + 4 framing + at least 1 content token
	if s < 8 || s > 12 {
		t.Errorf("short count = %d, want 8..12", s)
	}

	l, err := c.CountMessages("gpt-4o-mini", long)
	if err != nil {
		t.Fatalf("CountMessages() error = %v", err)
	}
	if l <= s {
		t.Errorf("long count = %d, want more than short count %d", l, s)
	}
}

func TestCounter_Truncate(t *testing.T) {
	c := NewCounter()
	text := strings.Repeat("Spinal fusion recovery guidance. ", 50)

	out, err := c.Truncate("gpt-4o", text, 20)
	if err != nil {
		t.Fatalf("Truncate() error = %v", err)
	}
	if !strings.HasPrefix(text, out) {
		t.Errorf("truncated text is not a prefix: %q", out)
	}
	n, _ := c.CountText("gpt-4o", out)
	if n > 20 {
		t.Errorf("truncated count = %d, want <= 20", n)
	}

	same, err := c.Truncate("gpt-4o", "short", 20)
	if err != nil || same != "short" {
		t.Errorf("Truncate(short) = %q, %v", same, err)
	}

	empty, _ := c.Truncate("gpt-4o", text, 0)
	if empty != "" {
		t.Errorf("Truncate(0) = %q, want empty", empty)
	}
}

func TestCounter_TruncateKeepsValidUTF8(t *testing.T) {
	c := NewCounter()
	text := strings.Repeat("脊椎融合術後の回復。", 20)

	for max := 1; max < 15; max++ {
		out, err := c.Truncate("gpt-4o", text, max)
		if err != nil {
			t.Fatalf("Truncate() error = %v", err)
		}
		if !utf8.ValidString(out) {
			t.Errorf("Truncate(%d) produced invalid UTF-8", max)
		}
	}
}

func TestBudget_Truncate(t *testing.T) {
	text := strings.Repeat("word ", 500)

	var nilBudget *Budget
	if got := nilBudget.Truncate(text); got != text {
		t.Error("nil budget should not truncate")
	}
	if got := (&Budget{}).Truncate(text); got != text {
		t.Error("zero budget should not truncate")
	}

	b := &Budget{Counter: NewCounter(), Model: "gpt-4o-mini", MaxTokens: 10}
	got := b.Truncate(text)
	if len(got) >= len(text) || !strings.HasPrefix(text, got) {
		t.Errorf("Truncate() = %q", got)
	}
}

func TestEstimateTruncate(t *testing.T) {
	if got := estimateTruncate("abcdefghij", 2); got != "abcdefgh" {
		t.Errorf("estimateTruncate = %q", got)
	}
	if got := estimateTruncate("abc", 2); got != "abc" {
		t.Errorf("estimateTruncate = %q", got)
	}
}

func TestModelMapping(t *testing.T) {
	tests := []struct {
		model    string
		encoding tokenizer.Encoding
	}{
		{"gpt-4o", tokenizer.O200kBase},
		{"gpt-4o-mini", tokenizer.O200kBase},
		{"GPT-4.1-mini", tokenizer.O200kBase},
		{"gpt-4", tokenizer.Cl100kBase},
		{"gpt-3.5-turbo", tokenizer.Cl100kBase},
		{"text-embedding-3-small", tokenizer.Cl100kBase},
		{"unknown", tokenizer.O200kBase},
	}
	for _, tt := range tests {
		if got := modelToEncoding(tt.model); got != tt.encoding {
			t.Errorf("modelToEncoding(%q) = %v, want %v", tt.model, got, tt.encoding)
		}
	}

	if got := mapModelName("gpt-4o-2024-08-06"); got != tokenizer.GPT4o {
		t.Errorf("mapModelName(gpt-4o-...) = %v", got)
	}
}

func BenchmarkCounter_CountMessages(b *testing.B) {
	c := NewCounter()
	msgs := []openai.ChatCompletionMessage{
		{Role: "system", Content: openai.TextContent("You are a helpful assistant that provides detailed answers.")},
		{Role: "user", Content: openai.TextContent("Can you explain spinal fusion recovery in simple terms?")},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.CountMessages("gpt-4o", msgs)
	}
}
