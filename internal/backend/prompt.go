package backend

import (
	"strings"

	"github.com/lydakis/llmcmd/internal/ipc"
)

// Preferences shape the rules in the prompt header.
type Preferences struct {
	ModernTools  bool
	VerboseFlags bool
}

// Prompt holds the request-independent part of the system prompt. It is built
// once per daemon.
type Prompt struct {
	header string
}

// NewPrompt renders the fixed header for prefs.
func NewPrompt(prefs Preferences) *Prompt {
	var b strings.Builder
	b.WriteString("You are a shell command generator. Your ONLY output is the exact command to run.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Output ONLY the command, nothing else\n")
	b.WriteString("- No markdown, no backticks, no explanations\n")
	b.WriteString("- No preamble like \"Here's the command:\"\n")
	b.WriteString("- If multiple commands needed, separate with && or ;\n")
	b.WriteString("- Make reasonable assumptions for ambiguous requests\n")
	if prefs.ModernTools {
		b.WriteString("- Use modern tools when appropriate (ripgrep over grep, fd over find, bat over cat)\n")
	} else {
		b.WriteString("- Use standard POSIX tools (grep, find, cat)\n")
	}
	if prefs.VerboseFlags {
		b.WriteString("- Prefer long flags for clarity (--recursive over -r) unless brevity is clearly preferred")
	} else {
		b.WriteString("- Use short flags for brevity (-r over --recursive)")
	}
	return &Prompt{header: b.String()}
}

// Header returns the fixed header.
func (p *Prompt) Header() string {
	return p.header
}

// Build returns the system and user prompt for one query. When cached is true
// the system prompt is the header alone, identical for every request, and the
// context moves into the user prompt. The query is always the last segment of
// the user prompt.
func (p *Prompt) Build(ctx ipc.Context, query string, cached bool) (system, user string) {
	block := contextBlock(ctx)
	if cached {
		return p.header, block + "\n\n" + query
	}
	return p.header + "\n\n" + block, query
}

func contextBlock(ctx ipc.Context) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	b.WriteString("OS: ")
	b.WriteString(ctx.OS)
	b.WriteString("\nShell: ")
	b.WriteString(ctx.Shell)
	b.WriteString("\nCWD: ")
	b.WriteString(ctx.CWD)
	return b.String()
}
