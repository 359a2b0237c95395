package commands

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/tjfontaine/rag-chat-proxy/internal/cli/ui"
)

var documentsStudy string

// documentsCmd is the documents command
var documentsCmd = &cobra.Command{
	Use:     "documents",
	Aliases: []string{"docs"},
	Short:   "list indexed documents",
	Example: `  $ ragctl documents --study spineai`,
	Args:    cobra.NoArgs,
	RunE:    runDocuments,
}

func init() {
	documentsCmd.SilenceUsage = true
	documentsCmd.Flags().StringVar(&documentsStudy, "study", "", "study to list (default rag.study_id)")
}

func runDocuments(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	study := documentsStudy
	if study == "" {
		study = cfg.RAG.StudyID
	}

	idx, err := openLocalIndex(cfg, cliLogger())
	if err != nil {
		ui.PrintError("%v", err)
		return fmt.Errorf("index unavailable")
	}
	defer idx.store.Close()

	docs, err := idx.store.ListDocuments(cmd.Context(), study)
	if err != nil {
		ui.PrintError("failed to list documents: %v", err)
		return fmt.Errorf("list failed")
	}
	if len(docs) == 0 {
		ui.PrintInfo("no documents indexed for %q", study)
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("SOURCE", "CHUNKS", "INDEXED")
	for _, d := range docs {
		t.Row(d.Source, strconv.Itoa(d.Chunks), d.IndexedAt.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return nil
}
