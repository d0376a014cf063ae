package tui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func update(m inputModel, msg tea.Msg) inputModel {
	next, _ := m.Update(msg)
	return next.(inputModel)
}

func TestInputModelSubmitsTrimmedQuery(t *testing.T) {
	m := newInputModel("  list rust files ")
	m = update(m, tea.KeyMsg{Type: tea.KeyEnter})

	got, err := m.result()
	if err != nil || got != "list rust files" {
		t.Fatalf("result() = %q, %v, want %q", got, err, "list rust files")
	}
}

func TestInputModelEmptyEnterCancels(t *testing.T) {
	m := update(newInputModel(""), tea.KeyMsg{Type: tea.KeyEnter})
	if _, err := m.result(); !errors.Is(err, ErrCancelled) {
		t.Fatalf("result() error = %v, want %v", err, ErrCancelled)
	}
}

func TestInputModelEscapeCancels(t *testing.T) {
	for _, key := range []tea.KeyType{tea.KeyEsc, tea.KeyCtrlC} {
		m := update(newInputModel("docker ps"), tea.KeyMsg{Type: key})
		if _, err := m.result(); !errors.Is(err, ErrCancelled) {
			t.Fatalf("result() after %v error = %v, want %v", key, err, ErrCancelled)
		}
	}
}

func TestInputModelTypesRunes(t *testing.T) {
	m := newInputModel("")
	m = update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("du")})
	m = update(m, tea.KeyMsg{Type: tea.KeyEnter})
	if got, err := m.result(); err != nil || got != "du" {
		t.Fatalf("result() = %q, %v", got, err)
	}
}

func TestInputModelPopupWidthFollowsWindow(t *testing.T) {
	m := update(newInputModel(""), tea.WindowSizeMsg{Width: 40, Height: 10})
	if got := m.popupWidth(); got != 36 {
		t.Fatalf("popupWidth() = %d, want 36", got)
	}
	m = update(m, tea.WindowSizeMsg{Width: 200, Height: 50})
	if got := m.popupWidth(); got != maxPopupWidth {
		t.Fatalf("popupWidth() = %d, want %d", got, maxPopupWidth)
	}
	if !strings.Contains(m.View(), "llmcmd") {
		t.Fatal("View() missing title")
	}
}

func TestStreamRenderer(t *testing.T) {
	var buf bytes.Buffer
	r := NewStreamRenderer(&buf, true)
	r.Chunk("git ")
	r.Chunk("")
	r.Chunk("status")
	r.Finish()
	r.Finish()
	out := buf.String()
	if !strings.Contains(out, "git ") || !strings.Contains(out, "status") || strings.Count(out, "\n") != 1 {
		t.Fatalf("output = %q", out)
	}

	buf.Reset()
	off := NewStreamRenderer(&buf, false)
	off.Chunk("ls")
	off.Finish()
	if buf.Len() != 0 {
		t.Fatalf("disabled renderer wrote %q", buf.String())
	}
}
