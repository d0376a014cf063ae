// Package sysinfo collects the caller environment sent with every query.
package sysinfo

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lydakis/llmcmd/internal/ipc"
)

var (
	osReleasePath = "/etc/os-release"
	getwdFn       = os.Getwd
)

// Collect returns the OS description, shell and working directory.
func Collect() ipc.Context {
	cwd, err := getwdFn()
	if err != nil {
		cwd = "."
	}
	return ipc.Context{
		OS:    osDescription(),
		Shell: Shell(),
		CWD:   cwd,
	}
}

// Shell returns the login shell name from $SHELL, defaulting to sh.
func Shell() string {
	shell := strings.TrimSpace(os.Getenv("SHELL"))
	if shell == "" {
		return "sh"
	}
	return filepath.Base(shell)
}

func osDescription() string {
	desc := kernelDescription()
	if distro := distroName(); distro != "" {
		desc += " (" + distro + ")"
	}
	return desc
}

func distroName() string {
	if name := platformDistro(); name != "" {
		return name
	}
	f, err := os.Open(osReleasePath)
	if err != nil {
		return ""
	}
	defer f.Close()
	return parseOSRelease(f)
}

// parseOSRelease returns PRETTY_NAME, falling back to NAME.
func parseOSRelease(r io.Reader) string {
	var name string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"'`)
		switch key {
		case "PRETTY_NAME":
			if value != "" {
				return value
			}
		case "NAME":
			name = value
		}
	}
	return name
}
