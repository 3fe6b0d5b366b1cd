package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

// ---------------------------------------------------------------------------
// Fake session
// ---------------------------------------------------------------------------

type fakeSession struct {
	loaded   bool
	resets   int
	chatErr  error
	procErr  error
	asked    []string
	procPath string
}

func (f *fakeSession) ProcessFile(_ context.Context, path string) (string, error) {
	f.procPath = path
	if f.procErr != nil {
		return "", f.procErr
	}
	f.loaded = true
	return "PDF processed successfully.", nil
}

func (f *fakeSession) Chat(_ context.Context, message string) (string, error) {
	f.asked = append(f.asked, message)
	if f.chatErr != nil {
		return "", f.chatErr
	}
	return "answer to " + message, nil
}

func (f *fakeSession) Reset()       { f.loaded = false; f.resets++ }
func (f *fakeSession) Loaded() bool { return f.loaded }

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newSizedModel(t *testing.T, sess Session) Model {
	t.Helper()
	m := New(context.Background(), sess, "pdfrag")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model)
}

// typeLine sets the input and presses Enter, returning the model and the
// resulting command.
func typeLine(m Model, line string) (Model, tea.Cmd) {
	m.input.SetValue(line)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

// runCmd executes cmd and feeds every session result back into m. Batched
// spinner ticks are ignored.
func runCmd(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		return m
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			if c == nil {
				continue
			}
			switch inner := c().(type) {
			case replyMsg, processedMsg:
				next, _ := m.Update(inner)
				m = next.(Model)
			}
		}
		return m
	}
	next, _ := m.Update(msg)
	return next.(Model)
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestModel_LoadThenChat(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{}
	m := newSizedModel(t, sess)

	m, cmd := typeLine(m, "/load ./manual.pdf")
	if !m.busy {
		t.Fatal("expected busy while processing")
	}
	m = runCmd(t, m, cmd)
	if sess.procPath != "./manual.pdf" {
		t.Errorf("ProcessFile path = %q", sess.procPath)
	}
	if m.status != "PDF processed successfully." {
		t.Errorf("status = %q", m.status)
	}

	m, cmd = typeLine(m, "What is the MTOW?")
	m = runCmd(t, m, cmd)
	if len(sess.asked) != 1 || sess.asked[0] != "What is the MTOW?" {
		t.Fatalf("asked = %q", sess.asked)
	}
	if m.busy {
		t.Error("expected idle after reply")
	}
	view := m.renderHistory()
	if !strings.Contains(view, "answer to What is the MTOW?") {
		t.Errorf("transcript missing reply: %s", view)
	}
	if m.input.Value() != "" {
		t.Errorf("input not cleared: %q", m.input.Value())
	}
}

func TestModel_ChatError(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{loaded: true, chatErr: errors.New("upstream model error")}
	m := newSizedModel(t, sess)

	m, cmd := typeLine(m, "hello")
	m = runCmd(t, m, cmd)
	if !strings.HasPrefix(m.status, "Error: ") {
		t.Errorf("status = %q, want an error", m.status)
	}
}

func TestModel_ProcessErrorKeepsTranscript(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{procErr: errors.New("malformed PDF")}
	m := newSizedModel(t, sess)

	m, cmd := typeLine(m, "/load broken.pdf")
	m = runCmd(t, m, cmd)
	if !strings.Contains(m.status, "malformed PDF") {
		t.Errorf("status = %q", m.status)
	}
	if len(m.history) != 0 {
		t.Errorf("history = %v, want empty", m.history)
	}
}

func TestModel_Commands(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{loaded: true}
	m := newSizedModel(t, sess)

	m, cmd := typeLine(m, "/reset")
	if cmd != nil {
		t.Error("reset should not return a command")
	}
	if sess.resets != 1 || sess.loaded {
		t.Errorf("reset not applied: %+v", sess)
	}

	m, _ = typeLine(m, "/load")
	if !strings.HasPrefix(m.status, "Usage") {
		t.Errorf("status = %q, want usage", m.status)
	}

	m, _ = typeLine(m, "/nope")
	if !strings.Contains(m.status, "Unknown command") {
		t.Errorf("status = %q", m.status)
	}

	_, cmd = typeLine(m, "/quit")
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestModel_CtrlCQuits(t *testing.T) {
	t.Parallel()

	m := newSizedModel(t, &fakeSession{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestModel_IgnoresInputWhileBusy(t *testing.T) {
	t.Parallel()

	sess := &fakeSession{loaded: true}
	m := newSizedModel(t, sess)

	m, _ = typeLine(m, "first")
	_, cmd := typeLine(m, "second")
	if cmd != nil {
		t.Error("expected no command while busy")
	}
}

func TestModel_View(t *testing.T) {
	t.Parallel()

	m := New(context.Background(), &fakeSession{}, "pdfrag")
	if m.View() != "Loading..." {
		t.Errorf("View before size = %q", m.View())
	}
	m = newSizedModel(t, &fakeSession{})
	if !strings.Contains(m.View(), "pdfrag") {
		t.Error("View missing title")
	}
}
