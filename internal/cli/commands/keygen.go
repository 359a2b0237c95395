package commands

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/rag-chat-proxy/internal/auth"
	"github.com/tjfontaine/rag-chat-proxy/internal/cli/ui"
)

const keyPrefix = "rcp-"

var keygenName string

// keygenCmd is the keygen command
var keygenCmd = &cobra.Command{
	Use:   "keygen [api-key]",
	Short: "generate or hash a client API key",
	Long: `Print the SHA-256 hash of a client API key in the form server.api_keys
expects. Without an argument a new random key is generated.`,
	Example: `  # New key for the web client
  $ ragctl keygen --name web

  # Hash an existing key
  $ ragctl keygen my-existing-key`,
	Args: cobra.MaximumNArgs(1),
	RunE: runKeygen,
}

func init() {
	keygenCmd.SilenceUsage = true
	keygenCmd.Flags().StringVar(&keygenName, "name", "", "label for the key in logs")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	key := ""
	if len(args) == 1 {
		key = args[0]
	} else {
		generated, err := generateKey()
		if err != nil {
			ui.PrintError("failed to generate key: %v", err)
			return fmt.Errorf("keygen failed")
		}
		key = generated
	}

	entry := auth.HashAPIKey(key)
	if keygenName != "" {
		entry = keygenName + ":" + entry
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", ui.Styles.Bold.Render("API Key:"), key)
	fmt.Fprintf(out, "%s %s\n", ui.Styles.Bold.Render("Entry:  "), entry)
	fmt.Fprintln(out, "\nAdd this to your config.yaml:")
	fmt.Fprintln(out, "  server:")
	fmt.Fprintln(out, "    api_keys:")
	fmt.Fprintf(out, "      - %q\n", entry)
	return nil
}

func generateKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return keyPrefix + hex.EncodeToString(b), nil
}
