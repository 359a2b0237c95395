package commands

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/rag-chat-proxy/internal/cli/ui"
	"github.com/tjfontaine/rag-chat-proxy/internal/rag"
	"github.com/tjfontaine/rag-chat-proxy/internal/watcher"
)

var indexStudy string

// indexCmd is the index command
var indexCmd = &cobra.Command{
	Use:   "index <path>...",
	Short: "index documents into the knowledge base",
	Long: `Extract, clean, chunk and store documents for retrieval.

Directories are walked recursively. Only .pdf, .txt and .md files are
indexed. Re-indexing a file replaces the chunks stored for it, the same way
the proxy's document watcher does.`,
	Example: `  # Index one file into the configured study
  $ ragctl index guide.pdf

  # Index a directory into another study
  $ ragctl index ./docs --study cardio`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.SilenceUsage = true
	indexCmd.Flags().StringVar(&indexStudy, "study", "", "study to index into (default rag.study_id)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	study := indexStudy
	if study == "" {
		study = cfg.RAG.StudyID
	}

	files, err := collectDocuments(args)
	if err != nil {
		ui.PrintError("%v", err)
		return fmt.Errorf("no documents to index")
	}
	if len(files) == 0 {
		ui.PrintWarning("no .pdf, .txt or .md files found")
		return nil
	}

	idx, err := openLocalIndex(cfg, cliLogger())
	if err != nil {
		ui.PrintError("%v", err)
		return fmt.Errorf("index unavailable")
	}
	defer idx.store.Close()

	var failed, chunks int
	for _, file := range files {
		source := watcher.SourceFor(study, filepath.Base(file))
		res := idx.indexer.IndexFile(cmd.Context(), study, file, source)
		if !res.Success {
			failed++
			ui.PrintError("%s: %s", file, res.Error)
			continue
		}
		chunks += res.ChunksIndexed
		ui.PrintSuccess("%s (%d chunks)", source, res.ChunksIndexed)
	}

	ui.PrintInfo("indexed %d of %d documents into %q, %d chunks", len(files)-failed, len(files), study, chunks)
	if failed > 0 {
		return fmt.Errorf("%d documents failed to index", failed)
	}
	return nil
}

// collectDocuments expands paths into the indexable files beneath them.
func collectDocuments(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if !rag.SupportedExtension(p) {
				ui.PrintWarning("skipping %s: unsupported file type", p)
				continue
			}
			add(p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && rag.SupportedExtension(path) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Strings(files)
	return files, nil
}
