package backend

import "testing"

func TestCleanCommand(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "ls -la", want: "ls -la"},
		{in: "  ls -la\n", want: "ls -la"},
		{in: "`ls -la`", want: "ls -la"},
		{in: "```bash\nfd -e rs --changed-within 1d\n```", want: "fd -e rs --changed-within 1d"},
		{in: "```\ngit status\n```\n", want: "git status"},
		{in: "Here's the command: rg TODO", want: "rg TODO"},
		{in: "Command: `du -sh *`", want: "du -sh *"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		if got := CleanCommand(tt.in); got != tt.want {
			t.Errorf("CleanCommand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
