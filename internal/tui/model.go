// Package tui implements the terminal chat over a document session.
//
// Plain input is sent to the session as a question. Commands:
//
//	/load <path>  process a PDF from disk and make it the active document
//	/reset        forget the active document
//	/quit         exit (Ctrl+C and Ctrl+D also quit)
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Session is the TUI-facing subset of the document session.
type Session interface {
	ProcessFile(ctx context.Context, path string) (string, error)
	Chat(ctx context.Context, message string) (string, error)
	Reset()
	Loaded() bool
}

// replyMsg carries the result of a Chat call.
type replyMsg struct {
	text string
	err  error
}

// processedMsg carries the result of a ProcessFile call.
type processedMsg struct {
	path   string
	status string
	err    error
}

// entry is one line of the transcript.
type entry struct {
	role string
	text string
}

// Model is the Bubble Tea model for the chat UI.
type Model struct {
	ctx      context.Context
	session  Session
	title    string
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	history  []entry
	status   string
	busy     bool
	ready    bool
	width    int
}

// New creates a chat model over sess. ctx bounds every session call.
func New(ctx context.Context, sess Session, title string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question, or /load <file.pdf>"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	status := "Load a PDF with /load <path>."
	if sess.Loaded() {
		status = "Ready."
	}
	return Model{
		ctx:      ctx,
		session:  sess,
		title:    title,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   status,
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and session events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		_, fh := transcriptStyle.GetFrameSize()
		_, qh := inputStyle.GetFrameSize()
		// header, status and the input line
		reserved := 3 + qh
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-fh)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			return m.submit()
		}

	case replyMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.history = append(m.history, entry{role: "error", text: msg.err.Error()})
		} else {
			m.status = "Ready."
			m.history = append(m.history, entry{role: "bot", text: msg.text})
		}
		m.refresh()
		return m, nil

	case processedMsg:
		m.busy = false
		if msg.err != nil {
			m.status = fmt.Sprintf("Could not process %s: %v", msg.path, msg.err)
		} else {
			m.status = msg.status
			m.history = append(m.history, entry{role: "system", text: fmt.Sprintf("Loaded %s", msg.path)})
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit handles the Enter key.
func (m Model) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	if line == "" || m.busy {
		return m, nil
	}
	m.input.Reset()

	switch {
	case line == "/quit" || line == "/exit":
		return m, tea.Quit

	case line == "/reset":
		m.session.Reset()
		m.history = nil
		m.status = "Session cleared. Load a PDF with /load <path>."
		m.refresh()
		return m, nil

	case strings.HasPrefix(line, "/load"):
		path := strings.TrimSpace(strings.TrimPrefix(line, "/load"))
		if path == "" {
			m.status = "Usage: /load <path-to-pdf>"
			return m, nil
		}
		m.busy = true
		m.status = "Processing " + path + "..."
		return m, tea.Batch(m.spinner.Tick, m.process(path))

	case strings.HasPrefix(line, "/"):
		m.status = fmt.Sprintf("Unknown command %q", line)
		return m, nil
	}

	m.history = append(m.history, entry{role: "user", text: line})
	m.busy = true
	m.status = "Thinking..."
	m.refresh()
	return m, tea.Batch(m.spinner.Tick, m.chat(line))
}

func (m Model) chat(message string) tea.Cmd {
	ctx, sess := m.ctx, m.session
	return func() tea.Msg {
		reply, err := sess.Chat(ctx, message)
		return replyMsg{text: reply, err: err}
	}
}

func (m Model) process(path string) tea.Cmd {
	ctx, sess := m.ctx, m.session
	return func() tea.Msg {
		status, err := sess.ProcessFile(ctx, path)
		return processedMsg{path: path, status: status, err: err}
	}
}

// refresh re-renders the transcript and scrolls to the end.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

func (m Model) renderHistory() string {
	if len(m.history) == 0 {
		return mutedStyle.Render("No messages yet.")
	}
	wrap := lipgloss.NewStyle().Width(max(20, m.viewport.Width))
	lines := make([]string, 0, len(m.history))
	for _, e := range m.history {
		var text string
		switch e.role {
		case "user":
			text = userStyle.Render("You: ") + e.text
		case "bot":
			text = botStyle.Render("Bot: ") + e.text
		case "error":
			text = errorStyle.Render("Error: " + e.text)
		default:
			text = mutedStyle.Render(e.text)
		}
		lines = append(lines, wrap.Render(text))
	}
	return strings.Join(lines, "\n")
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render(m.title)
	status := m.status
	if m.busy {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" +
		transcriptStyle.Render(m.viewport.View()) + "\n" +
		inputStyle.Render(m.input.View()) + "\n" +
		statusStyle.Render(status)
}

var (
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	botStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	mutedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Run starts the chat program on the terminal and blocks until it exits.
func Run(ctx context.Context, sess Session, title string) error {
	_, err := tea.NewProgram(New(ctx, sess, title), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
