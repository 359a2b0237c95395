package commands

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/tjfontaine/rag-chat-proxy/internal/cli/ui"
	"github.com/tjfontaine/rag-chat-proxy/internal/storage"
)

var (
	interactionsLimit  int
	interactionsOffset int
)

// interactionsCmd is the interactions command
var interactionsCmd = &cobra.Command{
	Use:   "interactions [id]",
	Short: "show the proxy's interaction log",
	Long: `List recorded chat calls, newest first, or show one call in detail.

Reads the proxy's storage directly, so it needs the same storage settings
as the running proxy.`,
	Example: `  # Last 20 calls
  $ ragctl interactions

  # One call
  $ ragctl interactions 6f1c2b8e-...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInteractions,
}

func init() {
	interactionsCmd.SilenceUsage = true
	interactionsCmd.Flags().IntVarP(&interactionsLimit, "limit", "n", 20, "maximum rows")
	interactionsCmd.Flags().IntVar(&interactionsOffset, "offset", 0, "rows to skip")
}

func runInteractions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		it, err := store.GetInteraction(cmd.Context(), args[0])
		if errors.Is(err, storage.ErrNotFound) {
			ui.PrintError("interaction %s not found", args[0])
			return fmt.Errorf("not found")
		}
		if err != nil {
			ui.PrintError("failed to load interaction: %v", err)
			return fmt.Errorf("lookup failed")
		}
		fmt.Fprint(out, formatInteraction(it))
		return nil
	}

	list, err := store.ListInteractions(cmd.Context(), storage.InteractionListOptions{
		Limit:  interactionsLimit,
		Offset: interactionsOffset,
	})
	if err != nil {
		ui.PrintError("failed to list interactions: %v", err)
		return fmt.Errorf("list failed")
	}
	if len(list) == 0 {
		ui.PrintInfo("no interactions recorded")
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TIME", "MODEL", "MSGS", "RAG", "STATUS", "DURATION")
	for _, it := range list {
		rag := "off"
		if it.RagEnabled {
			rag = strconv.Itoa(it.RagContextLength)
		}
		t.Row(
			ui.Truncate(it.ID, 12),
			it.CreatedAt.Local().Format("01-02 15:04:05"),
			it.Model,
			strconv.Itoa(it.MessageCount),
			rag,
			it.Status,
			it.Duration.Round(time.Millisecond).String(),
		)
	}
	fmt.Fprintln(out, t.Render())
	return nil
}

func formatInteraction(it *storage.Interaction) string {
	label := func(s string) string { return ui.Styles.Bold.Render(fmt.Sprintf("%-15s", s)) }
	s := fmt.Sprintf("%s %s\n", label("ID"), it.ID)
	s += fmt.Sprintf("%s %s\n", label("Request ID"), it.RequestID)
	s += fmt.Sprintf("%s %s\n", label("Time"), it.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	s += fmt.Sprintf("%s %s\n", label("Model"), it.Model)
	s += fmt.Sprintf("%s %d\n", label("Messages"), it.MessageCount)
	s += fmt.Sprintf("%s %t\n", label("Streaming"), it.Streaming)
	s += fmt.Sprintf("%s %t (%d chars)\n", label("Retrieval"), it.RagEnabled, it.RagContextLength)
	s += fmt.Sprintf("%s %s\n", label("Status"), it.Status)
	if it.FinishReason != "" {
		s += fmt.Sprintf("%s %s\n", label("Finish reason"), it.FinishReason)
	}
	if it.ErrorMessage != "" {
		s += fmt.Sprintf("%s %s: %s\n", label("Error"), it.ErrorType, it.ErrorMessage)
	}
	s += fmt.Sprintf("%s %s\n", label("Duration"), it.Duration)
	return s
}
