// Package tui implements ragctl's side-by-side comparison view: the same
// prompt goes to a session with retrieval and one without, and both replies
// stream into adjacent panels.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/tjfontaine/rag-chat-proxy/internal/chat"
	"github.com/tjfontaine/rag-chat-proxy/internal/cli/ui"
)

const (
	defaultWindowWidth  = 120
	defaultWindowHeight = 40
	inputCharLimit      = 4000
	chromeHeight        = 7
	minPanelHeight      = 5
	updateBuffer        = 64
)

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	boldStyle   = lipgloss.NewStyle().Bold(true)
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	activeTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
)

// Panel pairs a session with its column title.
type Panel struct {
	Title   string
	Session *chat.Session
}

// CompareProgram runs the comparison view.
type CompareProgram struct {
	model  compareModel
	cancel context.CancelFunc
}

// NewCompareProgram wires each panel's session to the view. The sessions'
// OnChange hooks are replaced.
func NewCompareProgram(ctx context.Context, panels ...Panel) *CompareProgram {
	ctx, cancel := context.WithCancel(ctx)
	return &CompareProgram{model: newCompareModel(ctx, panels), cancel: cancel}
}

// Run blocks until the user quits. Turns still in flight are cancelled.
func (p *CompareProgram) Run() error {
	defer p.cancel()
	_, err := tea.NewProgram(p.model, tea.WithAltScreen()).Run()
	return err
}

type (
	// snapshotMsg carries a session state change into the update loop.
	snapshotMsg struct {
		panel int
		snap  chat.Snapshot
	}
	// compareDoneMsg reports the end of one comparison turn.
	compareDoneMsg struct{ err error }
)

type compareModel struct {
	ctx     context.Context
	panels  []Panel
	snaps   []chat.Snapshot
	views   []viewport.Model
	updates chan snapshotMsg

	input   textinput.Model
	spinner spinner.Model
	md      *glamour.TermRenderer
	mdWidth int

	busy    bool
	err     error
	showRag bool
	width   int
	height  int
}

func newCompareModel(ctx context.Context, panels []Panel) compareModel {
	input := textinput.New()
	input.Placeholder = "Ask both sessions..."
	input.Focus()
	input.CharLimit = inputCharLimit
	input.Prompt = "> "

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := compareModel{
		ctx:     ctx,
		panels:  panels,
		snaps:   make([]chat.Snapshot, len(panels)),
		views:   make([]viewport.Model, len(panels)),
		updates: make(chan snapshotMsg, updateBuffer),
		input:   input,
		spinner: sp,
		width:   defaultWindowWidth,
		height:  defaultWindowHeight,
	}

	for i, p := range panels {
		m.views[i] = viewport.New(0, 0)
		p.Session.OnChange = func(snap chat.Snapshot) {
			select {
			case m.updates <- snapshotMsg{panel: i, snap: snap}:
			case <-ctx.Done():
			}
		}
		m.snaps[i] = p.Session.Snapshot()
	}
	m.resize(m.width, m.height)
	return m
}

func (m compareModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForUpdate())
}

func (m compareModel) waitForUpdate() tea.Cmd {
	updates, ctx := m.updates, m.ctx
	return func() tea.Msg {
		select {
		case msg := <-updates:
			return msg
		case <-ctx.Done():
			return nil
		}
	}
}

func (m compareModel) send(prompt string) tea.Cmd {
	sessions := make([]*chat.Session, len(m.panels))
	for i, p := range m.panels {
		sessions[i] = p.Session
	}
	ctx := m.ctx
	return func() tea.Msg {
		return compareDoneMsg{err: chat.Compare(ctx, prompt, sessions...)}
	}
}

func (m compareModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyEnter:
			prompt := strings.TrimSpace(m.input.Value())
			if prompt != "" && !m.busy {
				m.input.SetValue("")
				m.busy = true
				m.err = nil
				cmds = append(cmds, m.send(prompt), m.spinner.Tick)
			}

		case tea.KeyCtrlR:
			if !m.busy {
				for _, p := range m.panels {
					p.Session.Reset()
				}
			}

		case tea.KeyTab:
			m.showRag = !m.showRag
			m.refresh()

		case tea.KeyPgUp:
			for i := range m.views {
				m.views[i].HalfViewUp()
			}

		case tea.KeyPgDown:
			for i := range m.views {
				m.views[i].HalfViewDown()
			}
		}

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case snapshotMsg:
		m.snaps[msg.panel] = msg.snap
		m.refresh()
		cmds = append(cmds, m.waitForUpdate())

	case compareDoneMsg:
		m.busy = false
		m.err = msg.err

	case spinner.TickMsg:
		if m.busy {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *compareModel) resize(width, height int) {
	m.width, m.height = width, height
	n := len(m.panels)
	if n == 0 {
		return
	}

	// Each panel border takes two columns and two rows.
	panelWidth := width/n - 2
	if panelWidth < 10 {
		panelWidth = 10
	}
	panelHeight := height - chromeHeight
	if panelHeight < minPanelHeight {
		panelHeight = minPanelHeight
	}
	for i := range m.views {
		m.views[i].Width = panelWidth
		m.views[i].Height = panelHeight
	}
	m.input.Width = width - 4

	if m.mdWidth != panelWidth {
		m.md = ui.NewMarkdownRenderer(panelWidth - 2)
		m.mdWidth = panelWidth
	}
	m.refresh()
}

func (m *compareModel) refresh() {
	for i := range m.views {
		m.views[i].SetContent(m.renderTranscript(m.snaps[i]))
		m.views[i].GotoBottom()
	}
}

// renderTranscript renders the user and assistant turns of snap. Tool
// traffic is summarized rather than shown.
func (m *compareModel) renderTranscript(snap chat.Snapshot) string {
	var b strings.Builder
	for _, msg := range snap.Messages {
		switch msg.Role {
		case chat.RoleUser:
			b.WriteString(userStyle.Render("You: ") + msg.Text() + "\n\n")
		case chat.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				names := make([]string, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					names[i] = tc.Name
				}
				b.WriteString(dimStyle.Render("⚙ called "+strings.Join(names, ", ")) + "\n\n")
				continue
			}
			text := msg.Text()
			if strings.HasPrefix(text, "Error: ") {
				b.WriteString(errorStyle.Render(text) + "\n\n")
				continue
			}
			b.WriteString(strings.TrimRight(ui.RenderMarkdown(m.md, text), "\n") + "\n\n")
		}
	}
	if snap.Loading {
		if snap.Streaming != "" {
			b.WriteString(snap.Streaming)
		} else {
			b.WriteString(dimStyle.Render("thinking..."))
		}
		b.WriteString("\n")
	}
	if m.showRag {
		b.WriteString("\n" + ragSummary(snap.RagContext, true) + "\n")
	}
	return b.String()
}

// ragSummary describes the retrieval outcome of the latest turn.
func ragSummary(rc *chat.RagContext, full bool) string {
	switch {
	case rc == nil:
		return dimStyle.Render("context: none")
	case !rc.Enabled:
		return dimStyle.Render("context: retrieval disabled")
	case !rc.HasContext():
		return dimStyle.Render("context: no matches")
	case full:
		return dimStyle.Render(fmt.Sprintf("context (%d chars):\n%s", rc.ContextLength, rc.Context))
	default:
		return dimStyle.Render(fmt.Sprintf("context: %d chars", rc.ContextLength))
	}
}

func (m compareModel) View() string {
	columns := make([]string, len(m.panels))
	for i, p := range m.panels {
		title := activeTitle.Render(p.Title) + "  " + ragSummary(m.snaps[i].RagContext, false)
		columns[i] = panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, title, m.views[i].View()))
	}

	status := dimStyle.Render("enter send · tab toggle context · ctrl+r reset · pgup/pgdn scroll · esc quit")
	switch {
	case m.busy:
		status = m.spinner.View() + " " + boldStyle.Render("waiting for both sessions")
	case m.err != nil:
		status = errorStyle.Render("✗ " + m.err.Error())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, columns...),
		m.input.View(),
		status,
	)
}
