package ui

import (
	"bytes"
	"strings"
	"testing"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"truncated", 5, "trun…"},
		{"日本語テキスト", 4, "日本語…"},
		{"abc", 1, "…"},
		{"abc", 0, "abc"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestRenderMarkdown_NilRendererReturnsInput(t *testing.T) {
	if got := RenderMarkdown(nil, "**bold**"); got != "**bold**" {
		t.Errorf("got %q", got)
	}
}

func TestRenderMarkdown(t *testing.T) {
	got := RenderMarkdown(NewMarkdownRenderer(0), "# Title\n\nbody text")
	if !strings.Contains(got, "Title") || !strings.Contains(got, "body text") {
		t.Errorf("got %q", got)
	}
}

func TestPrintHelpers(t *testing.T) {
	var buf bytes.Buffer
	prev := Out
	Out = &buf
	defer func() { Out = prev }()

	PrintSuccess("indexed %d", 3)
	PrintError("failed: %s", "boom")
	PrintWarning("careful")
	PrintInfo("note")
	PrintBold("HEADER")

	out := buf.String()
	for _, want := range []string{"✓ indexed 3", "✗ failed: boom", "⚠ careful", "ℹ note", "HEADER"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
