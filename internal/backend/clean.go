package backend

import "strings"

var preambles = []string{
	"Here's the command:",
	"Here is the command:",
	"The command is:",
	"Run:",
	"Execute:",
	"Command:",
}

// CleanCommand strips the formatting models add despite being told not to:
// code fences, surrounding backticks and a leading preamble.
func CleanCommand(text string) string {
	cmd := strings.TrimSpace(text)

	if strings.HasPrefix(cmd, "```") {
		// Drop the fence line, which may carry a language tag.
		if i := strings.IndexByte(cmd, '\n'); i >= 0 {
			cmd = cmd[i+1:]
		} else {
			cmd = strings.TrimPrefix(cmd, "```")
		}
		if i := strings.LastIndex(cmd, "```"); i >= 0 {
			cmd = cmd[:i]
		}
		cmd = strings.TrimSpace(cmd)
	}

	cmd = strings.Trim(cmd, "`")

	for _, preamble := range preambles {
		if rest, ok := strings.CutPrefix(cmd, preamble); ok {
			cmd = strings.TrimSpace(rest)
		}
	}
	return strings.TrimSpace(strings.Trim(cmd, "`"))
}
