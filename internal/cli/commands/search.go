package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/rag-chat-proxy/internal/cli/ui"
	"github.com/tjfontaine/rag-chat-proxy/internal/rag"
)

var (
	searchLimit int
	searchStudy string
	searchRaw   bool
)

// searchCmd is the search command
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "query the knowledge base",
	Long: `Run a retrieval query against the local index and show the passages the
proxy would inject for it.`,
	Example: `  # Top passages for a question
  $ ragctl search "walking after fusion surgery"

  # Print the exact context block sent to the model
  $ ragctl search --raw "pain medication"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.SilenceUsage = true
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum passages (default rag.limit)")
	searchCmd.Flags().StringVar(&searchStudy, "study", "", "study to search (default rag.study_id)")
	searchCmd.Flags().BoolVar(&searchRaw, "raw", false, "print the formatted context block only")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	limit := searchLimit
	if limit <= 0 {
		limit = cfg.RAG.Limit
	}

	idx, err := openLocalIndex(cfg, cliLogger())
	if err != nil {
		ui.PrintError("%v", err)
		return fmt.Errorf("index unavailable")
	}
	defer idx.store.Close()
	if searchStudy != "" {
		idx.retriever.StudyID = searchStudy
	}

	query := strings.Join(args, " ")
	passages, err := idx.retriever.Retrieve(cmd.Context(), query, limit)
	if err != nil {
		ui.PrintError("search failed: %v", err)
		return fmt.Errorf("search failed")
	}

	out := cmd.OutOrStdout()
	if searchRaw {
		fmt.Fprintln(out, rag.FormatPassages(passages))
		return nil
	}
	if len(passages) == 0 {
		ui.PrintWarning("no passages matched %q", query)
		return nil
	}
	for i, p := range passages {
		header := fmt.Sprintf("[%d] %s | chunk %d", i+1, p.Source, p.ChunkIndex)
		if p.Score != 0 {
			header += fmt.Sprintf(" | score %.3f", p.Score)
		}
		fmt.Fprintln(out, ui.Styles.Accent.Render(header))
		fmt.Fprintln(out, ui.Truncate(strings.TrimSpace(p.Text), 400))
		fmt.Fprintln(out)
	}
	return nil
}
