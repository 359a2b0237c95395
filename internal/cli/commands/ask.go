package commands

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/rag-chat-proxy/internal/chat"
	"github.com/tjfontaine/rag-chat-proxy/internal/cli/ui"
)

var (
	askNoRag       bool
	askShowContext bool
	askMarkdown    bool
	askModel       string
)

// askCmd is the ask command
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "ask one question through the proxy",
	Long: `Send a single question to the proxy at client.base_url and stream the answer.

The model may call the get_resources tool to read the patient's record;
tool calls are answered locally and the conversation continues until the
model replies with text.`,
	Example: `  # Ask with retrieval
  $ ragctl ask "When can I drive after surgery?"

  # Ask without retrieval
  $ ragctl ask --no-rag "When can I drive after surgery?"

  # Render the final answer as markdown
  $ ragctl ask --markdown "Summarize my medications"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.SilenceUsage = true
	askCmd.Flags().BoolVar(&askNoRag, "no-rag", false, "disable retrieval for this question")
	askCmd.Flags().BoolVar(&askShowContext, "show-context", false, "print the retrieved context after the answer")
	askCmd.Flags().BoolVar(&askMarkdown, "markdown", false, "render the final answer as markdown instead of streaming")
	askCmd.Flags().StringVarP(&askModel, "model", "m", "", "model to request (default client.model)")
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if askModel != "" {
		cfg.Client.Model = askModel
	}

	out := cmd.OutOrStdout()
	session := newSession(cfg, "ask", !askNoRag, cliLogger())
	if !askMarkdown {
		session.OnChange = streamPrinter(out)
	}

	question := strings.Join(args, " ")
	err = session.SendMessage(cmd.Context(), question)
	snap := session.Snapshot()

	if err != nil {
		fmt.Fprintln(out)
		ui.PrintError("%v", err)
		return fmt.Errorf("ask failed")
	}

	answer := lastAssistantText(snap.Messages)
	if askMarkdown {
		fmt.Fprint(out, ui.RenderMarkdown(ui.NewMarkdownRenderer(100), answer))
	} else {
		fmt.Fprintln(out)
	}

	if askShowContext {
		printRagContext(out, snap.RagContext)
	}
	return nil
}

// streamPrinter returns a session observer that writes streamed text as it
// grows. A new completion pass restarts the stream on a fresh line.
func streamPrinter(w io.Writer) func(chat.Snapshot) {
	var (
		mu      sync.Mutex
		printed string
	)
	return func(snap chat.Snapshot) {
		mu.Lock()
		defer mu.Unlock()

		text := snap.Streaming
		if text == "" {
			return
		}
		if suffix, ok := strings.CutPrefix(text, printed); ok {
			fmt.Fprint(w, suffix)
		} else {
			fmt.Fprint(w, "\n"+text)
		}
		printed = text
	}
}

func printRagContext(w io.Writer, rc *chat.RagContext) {
	fmt.Fprintln(w)
	if rc == nil || !rc.Enabled {
		fmt.Fprintln(w, ui.Styles.Dim.Render("retrieval disabled"))
		return
	}
	if !rc.HasContext() {
		fmt.Fprintln(w, ui.Styles.Dim.Render("no context retrieved"))
		return
	}
	fmt.Fprintln(w, ui.Styles.Bold.Render(fmt.Sprintf("RETRIEVED CONTEXT (%d chars)", rc.ContextLength)))
	fmt.Fprintln(w, ui.Styles.Dim.Render(rc.Context))
}
