package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/tjfontaine/rag-chat-proxy/internal/chat"
	"github.com/tjfontaine/rag-chat-proxy/internal/cli/tui"
	"github.com/tjfontaine/rag-chat-proxy/internal/cli/ui"
)

const comparePanelWidth = 60

// compareCmd is the compare command
var compareCmd = &cobra.Command{
	Use:   "compare [prompt]",
	Short: "compare answers with and without retrieval",
	Long: `Send every prompt to two sessions at once, one with retrieval and one
without, and show the replies side by side.

Without a prompt an interactive view opens. With a prompt both answers are
printed once and the command exits.`,
	Example: `  # Interactive comparison
  $ ragctl compare

  # One-shot comparison
  $ ragctl compare "What exercises are safe this week?"

  # Keyboard controls:
  • Enter sends to both sessions
  • Tab shows the retrieved context
  • Ctrl+R resets both conversations
  • Esc quits`,
	RunE: runCompare,
}

func init() {
	compareCmd.SilenceUsage = true
}

func runCompare(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := cliLogger()
	withRag := newSession(cfg, "rag", true, logger)
	withoutRag := newSession(cfg, "no-rag", false, logger)

	if len(args) == 0 {
		program := tui.NewCompareProgram(cmd.Context(),
			tui.Panel{Title: "With RAG", Session: withRag},
			tui.Panel{Title: "Without RAG", Session: withoutRag},
		)
		return program.Run()
	}

	prompt := strings.Join(args, " ")
	if err := chat.Compare(cmd.Context(), prompt, withRag, withoutRag); err != nil {
		ui.PrintWarning("%v", err)
	}

	md := ui.NewMarkdownRenderer(comparePanelWidth - 4)
	column := func(title string, s *chat.Session) string {
		snap := s.Snapshot()
		body := ui.RenderMarkdown(md, lastAssistantText(snap.Messages))
		header := ui.Styles.Bold.Render(title)
		if rc := snap.RagContext; rc.HasContext() {
			header += " " + ui.Styles.Dim.Render(fmt.Sprintf("(%d chars of context)", rc.ContextLength))
		}
		return lipgloss.NewStyle().
			Width(comparePanelWidth).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Render(header + "\n" + strings.TrimSpace(body))
	}

	fmt.Fprintln(cmd.OutOrStdout(), lipgloss.JoinHorizontal(lipgloss.Top,
		column("With RAG", withRag),
		column("Without RAG", withoutRag),
	))
	return nil
}
