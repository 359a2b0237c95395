package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/rag-chat-proxy/internal/cli/ui"
	"github.com/tjfontaine/rag-chat-proxy/internal/config"
)

const version = "0.1.0"

var (
	configPath string
	debug      bool
)

// rootCmd is the root command
var rootCmd = &cobra.Command{
	Use:     "ragctl",
	Short:   "Retrieval-augmented chat proxy CLI",
	Version: version,
	Long: `A command-line tool for the retrieval-augmented chat proxy. Indexes study
documents, queries the knowledge base, and chats through the proxy with or
without retrieved context.`,
	Example: `  # Index a study's documents
  $ ragctl index ./docs/spineai/rag_files

  # Search the knowledge base
  $ ragctl search "walking after fusion surgery"

  # Ask one question through the proxy
  $ ragctl ask "When can I return to work?"

  # Compare answers with and without retrieval
  $ ragctl compare

  # Hash a client key for server.api_keys
  $ ragctl keygen`,
}

// Execute executes the root command. Cancelling ctx stops in-flight work.
func Execute(ctx context.Context) error {
	rootCmd.SetVersionTemplate(formatVersion())
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(documentsCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(interactionsCmd)
	rootCmd.AddCommand(keygenCmd)

	rootCmd.SetUsageTemplate(usageTemplate())
	rootCmd.SetHelpTemplate(usageTemplate())
}

func usageTemplate() string {
	return `{{if .Long}}{{.Long}}

{{end}}` + ui.Styles.Bold.Render("USAGE") + `
  {{.UseLine}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}

{{if .HasExample}}` + ui.Styles.Bold.Render("EXAMPLES") + `
{{.Example}}

{{end}}{{if .HasAvailableSubCommands}}` + ui.Styles.Bold.Render("COMMANDS") + `{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

{{end}}{{if .HasAvailableLocalFlags}}` + ui.Styles.Bold.Render("OPTIONS") + `
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableInheritedFlags}}` + ui.Styles.Bold.Render("GLOBAL OPTIONS") + `
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

{{end}}{{if .HasAvailableSubCommands}}Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`
}

func formatVersion() string {
	return fmt.Sprintf("ragctl version %s\n", version)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		ui.PrintError("failed to load config: %v", err)
		return nil, fmt.Errorf("config load failed")
	}
	return cfg, nil
}

// cliLogger keeps library logs on stderr and out of the way unless --debug.
func cliLogger() *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
