// Package shell renders the key-binding snippets that insert a generated
// command into the shell's edit buffer.
package shell

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Integration is the snippet for one shell.
type Integration struct {
	Shell   string
	RCFile  string
	Snippet string
}

var integrations = map[string]Integration{
	"zsh": {
		Shell:  "zsh",
		RCFile: "~/.zshrc",
		Snippet: `function _llmcmd_widget() {
    local cmd
    cmd=$(llmcmd </dev/tty)
    if [[ -n "$cmd" ]]; then
        LBUFFER+="$cmd"
    fi
    zle redisplay
}
zle -N _llmcmd_widget
bindkey '^k' _llmcmd_widget`,
	},
	"bash": {
		Shell:  "bash",
		RCFile: "~/.bashrc",
		Snippet: `_llmcmd_readline() {
    local cmd
    cmd=$(llmcmd </dev/tty)
    READLINE_LINE="${READLINE_LINE}${cmd}"
    READLINE_POINT=${#READLINE_LINE}
}
bind -x '"\C-k": _llmcmd_readline'`,
	},
	"fish": {
		Shell:  "fish",
		RCFile: "~/.config/fish/config.fish",
		Snippet: `function _llmcmd_fish
    set -l cmd (llmcmd </dev/tty)
    commandline -i $cmd
end
bind \ck _llmcmd_fish`,
	},
}

// Supported returns the shells with a snippet, sorted.
func Supported() []string {
	names := make([]string, 0, len(integrations))
	for name := range integrations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Detect returns the shell name from a $SHELL value.
func Detect(shellEnv string) string {
	return filepath.Base(strings.TrimSpace(shellEnv))
}

// Lookup returns the integration for name, which may be a shell path.
func Lookup(name string) (Integration, error) {
	name = Detect(name)
	in, ok := integrations[name]
	if !ok {
		return Integration{}, fmt.Errorf("unsupported shell %q (supported: %s)", name, strings.Join(Supported(), ", "))
	}
	return in, nil
}

// Instructions formats the snippet with where to put it.
func (in Integration) Instructions() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Add to %s, then restart your shell or run: source %s\n", in.RCFile, in.RCFile)
	fmt.Fprintf(&b, "# Press Ctrl+K to describe a command; it is inserted at the cursor.\n")
	b.WriteString(in.Snippet)
	b.WriteString("\n")
	return b.String()
}
