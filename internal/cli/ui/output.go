// Package ui holds ragctl's terminal styling and message helpers.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// Styles are the shared lipgloss styles.
var Styles = struct {
	Bold    lipgloss.Style
	Dim     lipgloss.Style
	Accent  lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
}{
	Bold:    lipgloss.NewStyle().Bold(true),
	Dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	Accent:  lipgloss.NewStyle().Foreground(lipgloss.Color("86")),
	Success: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
	Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
	Info:    lipgloss.NewStyle().Foreground(lipgloss.Color("86")),
}

// Out is where the Print helpers write. Tests swap it.
var Out io.Writer = os.Stdout

// PrintSuccess prints a success message
func PrintSuccess(format string, args ...any) {
	fmt.Fprintln(Out, Styles.Success.Render("✓ "+fmt.Sprintf(format, args...)))
}

// PrintError prints an error message
func PrintError(format string, args ...any) {
	fmt.Fprintln(Out, Styles.Error.Render("✗ "+fmt.Sprintf(format, args...)))
}

// PrintWarning prints a warning message
func PrintWarning(format string, args ...any) {
	fmt.Fprintln(Out, Styles.Warning.Render("⚠ "+fmt.Sprintf(format, args...)))
}

// PrintInfo prints an info message
func PrintInfo(format string, args ...any) {
	fmt.Fprintln(Out, Styles.Info.Render("ℹ "+fmt.Sprintf(format, args...)))
}

// PrintBold prints a bold line
func PrintBold(format string, args ...any) {
	fmt.Fprintln(Out, Styles.Bold.Render(fmt.Sprintf(format, args...)))
}

// NewMarkdownRenderer returns a glamour renderer wrapping at width, or nil if
// one cannot be built. RenderMarkdown accepts the nil renderer.
func NewMarkdownRenderer(width int) *glamour.TermRenderer {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}

// RenderMarkdown renders content with r, falling back to the raw text.
func RenderMarkdown(r *glamour.TermRenderer, content string) string {
	if r == nil {
		return content
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
