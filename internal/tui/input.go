// Package tui holds the interactive query prompt and the renderer that
// previews streamed output.
package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// ErrCancelled is returned when the prompt is dismissed without a query.
var ErrCancelled = errors.New("cancelled")

const (
	maxPopupWidth = 80
	charLimit     = 2048
)

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	borderStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// Prompt opens the controlling terminal and asks for a query, pre-filled
// with initial. It talks to /dev/tty so stdout stays free for the command.
func Prompt(ctx context.Context, initial string) (string, error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return "", fmt.Errorf("opening terminal: %w", err)
	}
	defer tty.Close()

	p := tea.NewProgram(newInputModel(initial),
		tea.WithContext(ctx),
		tea.WithInput(tty),
		tea.WithOutput(tty),
		tea.WithAltScreen(),
	)
	final, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, context.Canceled) {
			return "", ErrCancelled
		}
		return "", fmt.Errorf("running prompt: %w", err)
	}
	return final.(inputModel).result()
}

type inputModel struct {
	input     textinput.Model
	width     int
	height    int
	submitted bool
}

func newInputModel(initial string) inputModel {
	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "describe a command"
	in.CharLimit = charLimit
	in.SetValue(initial)
	in.Focus()
	return inputModel{input: in}
}

func (m inputModel) Init() tea.Cmd { return textinput.Blink }

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.input.Width = m.popupWidth() - 4
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEnter:
			m.submitted = strings.TrimSpace(m.input.Value()) != ""
			return m, tea.Quit
		case tea.KeyEsc, tea.KeyCtrlC:
			m.submitted = false
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	box := borderStyle.Width(m.popupWidth() - 2).Render(m.input.View())
	content := lipgloss.JoinVertical(lipgloss.Left, titleStyle.Render(" llmcmd "), box)
	if m.width == 0 || m.height == 0 {
		return content
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

func (m inputModel) popupWidth() int {
	if m.width == 0 {
		return maxPopupWidth
	}
	return max(min(m.width-4, maxPopupWidth), 10)
}

func (m inputModel) result() (string, error) {
	if !m.submitted {
		return "", ErrCancelled
	}
	return strings.TrimSpace(m.input.Value()), nil
}
