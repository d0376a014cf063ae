package tui

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

var previewStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

// StreamRenderer previews streamed chunks on a terminal. When disabled every
// call is a no-op, so callers need not check.
type StreamRenderer struct {
	w       io.Writer
	enabled bool
	wrote   bool
}

// NewStreamRenderer renders to w when enabled is true.
func NewStreamRenderer(w io.Writer, enabled bool) *StreamRenderer {
	return &StreamRenderer{w: w, enabled: enabled}
}

// Chunk shows one piece of partial output.
func (r *StreamRenderer) Chunk(text string) {
	if !r.enabled || text == "" {
		return
	}
	io.WriteString(r.w, previewStyle.Render(text)) //nolint:errcheck
	r.wrote = true
}

// Finish ends the preview line.
func (r *StreamRenderer) Finish() {
	if r.wrote {
		io.WriteString(r.w, "\n") //nolint:errcheck
		r.wrote = false
	}
}
