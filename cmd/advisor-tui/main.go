package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/PabloGalante/carbon-advisor/internal/adapters/llm"
	"github.com/PabloGalante/carbon-advisor/internal/app/advisor"
	"github.com/PabloGalante/carbon-advisor/internal/config"
	"github.com/PabloGalante/carbon-advisor/internal/domain"
	"github.com/PabloGalante/carbon-advisor/internal/observability"
)

const (
	appTitle    = "Gemini Impact Intel"
	appSubtitle = "Carbon-Ed Bond advisor"
	chromeLines = 7 // header + status + input panel
)

type theme struct {
	header      lipgloss.Style
	subtitle    lipgloss.Style
	tabActive   lipgloss.Style
	tabInactive lipgloss.Style
	user        lipgloss.Style
	assistant   lipgloss.Style
	citation    lipgloss.Style
	status      lipgloss.Style
	help        lipgloss.Style
	inputPanel  lipgloss.Style
	modeAccent  map[domain.Mode]lipgloss.Color
}

func newTheme() theme {
	emerald := lipgloss.Color("#10b981")
	purple := lipgloss.Color("#a855f7")
	blue := lipgloss.Color("#3b82f6")
	slate := lipgloss.Color("#94a3b8")
	text := lipgloss.Color("#f8fafc")

	return theme{
		header:      lipgloss.NewStyle().Foreground(text).Bold(true),
		subtitle:    lipgloss.NewStyle().Foreground(slate),
		tabActive:   lipgloss.NewStyle().Foreground(emerald).Bold(true).Padding(0, 1),
		tabInactive: lipgloss.NewStyle().Foreground(slate).Padding(0, 1),
		user:        lipgloss.NewStyle().Foreground(emerald).Bold(true),
		assistant:   lipgloss.NewStyle().Foreground(blue).Bold(true),
		citation:    lipgloss.NewStyle().Foreground(slate).Italic(true),
		status:      lipgloss.NewStyle().Foreground(emerald).Bold(true),
		help:        lipgloss.NewStyle().Foreground(slate),
		inputPanel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(slate).
			Padding(0, 1),
		modeAccent: map[domain.Mode]lipgloss.Color{
			domain.ModeSearch:   emerald,
			domain.ModeThinking: purple,
			domain.ModeMaps:     blue,
		},
	}
}

// replyMsg delivers the assistant turn of an accepted send.
type replyMsg struct {
	msg domain.Message
}

type model struct {
	session  *advisor.Session
	input    textinput.Model
	timeline viewport.Model
	spinner  spinner.Model
	theme    theme
	width    int
	ready    bool
}

func newModel(session *advisor.Session) model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 4000
	input.Placeholder = session.Mode().Placeholder()
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#10b981"))

	return model{
		session:  session,
		input:    input,
		timeline: viewport.New(0, 0),
		spinner:  sp,
		theme:    newTheme(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func waitReply(ch <-chan domain.Message) tea.Cmd {
	return func() tea.Msg {
		return replyMsg{msg: <-ch}
	}
}

// nextMode cycles through domain.Modes in display order.
func nextMode(current domain.Mode) domain.Mode {
	modes := domain.Modes()
	for i, m := range modes {
		if m == current {
			return modes[(i+1)%len(modes)]
		}
	}
	return domain.DefaultMode
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.timeline.Width = msg.Width
		m.timeline.Height = max(msg.Height-chromeLines, 3)
		m.input.Width = max(msg.Width-6, 10)
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab":
			next := nextMode(m.session.Mode())
			if err := m.session.SetMode(next); err == nil {
				m.input.Placeholder = next.Placeholder()
			}
			return m, nil
		case "enter":
			if m.session.Pending() {
				return m, nil
			}
			turn, ok := m.session.Send(context.Background(), m.input.Value())
			if !ok {
				return m, nil
			}
			m.input.Reset()
			m.input.Blur()
			m.refresh()
			return m, waitReply(turn.Reply)
		case "pgup", "pgdown", "up", "down":
			var cmd tea.Cmd
			m.timeline, cmd = m.timeline.Update(msg)
			return m, cmd
		}

	case replyMsg:
		m.input.Focus()
		m.refresh()
		return m, textinput.Blink

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// refresh re-renders the timeline from the session and scrolls to the end.
func (m *model) refresh() {
	if !m.ready {
		return
	}
	m.timeline.SetContent(renderTimeline(m.session.Snapshot().Messages, m.theme, m.width))
	m.timeline.GotoBottom()
}

func (m model) View() string {
	if !m.ready {
		return "starting..."
	}

	snap := m.session.Snapshot()

	var b strings.Builder
	b.WriteString(m.renderHeader(snap.Mode))
	b.WriteString("\n")
	b.WriteString(m.timeline.View())
	b.WriteString("\n")

	if snap.Pending {
		b.WriteString(m.spinner.View() + " " + m.theme.status.Render(strings.ToUpper(snap.Mode.PendingLabel())))
	} else {
		b.WriteString(m.theme.help.Render("enter send • tab switch mode • pgup/pgdown scroll • esc quit"))
	}
	b.WriteString("\n")
	b.WriteString(m.theme.inputPanel.Width(max(m.width-2, 10)).Render(m.input.View()))
	return b.String()
}

func (m model) renderHeader(active domain.Mode) string {
	title := lipgloss.NewStyle().
		Foreground(m.theme.modeAccent[active]).
		Bold(true).
		Render("⚡ ") + m.theme.header.Render(strings.ToUpper(appTitle))

	tabs := make([]string, 0, len(domain.Modes()))
	for _, mode := range domain.Modes() {
		label := strings.ToUpper(string(mode))
		if mode == active {
			tabs = append(tabs, m.theme.tabActive.Render(label))
		} else {
			tabs = append(tabs, m.theme.tabInactive.Render(label))
		}
	}

	return lipgloss.JoinHorizontal(lipgloss.Top,
		title, "  ", m.theme.subtitle.Render(appSubtitle), "   ", strings.Join(tabs, ""),
	)
}

// renderTimeline draws messages in log order with their citations.
func renderTimeline(msgs []domain.Message, th theme, width int) string {
	body := lipgloss.NewStyle()
	if width > 4 {
		body = body.Width(width - 2)
	}

	var b strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			b.WriteString("\n")
		}
		if msg.Role == domain.RoleUser {
			b.WriteString(th.user.Render("you"))
		} else {
			b.WriteString(th.assistant.Render("advisor"))
		}
		b.WriteString("\n")
		b.WriteString(body.Render(msg.Text))
		b.WriteString("\n")
		for _, c := range msg.Citations {
			b.WriteString(th.citation.Render(renderCitation(c)))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func renderCitation(c domain.Citation) string {
	title := c.Title
	if title == "" {
		title = c.URI
	}
	return fmt.Sprintf("  ↗ [%s] %s <%s>", c.Kind, title, c.URI)
}

type options struct {
	configPath string
	logPath    string
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "advisor-tui",
		Short:         "Chat with the Carbon-Ed Bond advisor in the terminal",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", os.Getenv("ADVISOR_CONFIG"), "path to advisor.yaml")
	cmd.Flags().StringVar(&opts.logPath, "log", "", "write logs to this file (default: discard)")
	return cmd
}

func run(ctx context.Context, opts *options) error {
	path, err := config.FindConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// stdout belongs to the terminal UI.
	var logOut io.Writer = io.Discard
	if opts.logPath != "" {
		f, err := os.OpenFile(opts.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	level, _ := observability.ParseLogLevel(cfg.LogLevel)
	observability.SetLogger(observability.New(logOut, level, cfg.LogFormat))

	gen, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("generator: %w", err)
	}

	session := advisor.Activate(advisor.NewRouter(gen, advisor.WithCallTimeout(cfg.LLM.CallTimeout)))
	defer func() {
		session.Close()
		session.Wait()
	}()

	p := tea.NewProgram(newModel(session), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	return err
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "advisor-tui:", err)
		os.Exit(1)
	}
}
