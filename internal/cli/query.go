package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/lydakis/llmcmd/internal/config"
	"github.com/lydakis/llmcmd/internal/ipc"
	"github.com/lydakis/llmcmd/internal/paths"
	"github.com/lydakis/llmcmd/internal/tui"
)

func runQuery(ctx context.Context, flags queryFlags, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	query, err := readQuery(ctx, flags, args)
	if errors.Is(err, tui.ErrCancelled) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := ensureDaemonFn(ctx, startOptions(cfg), cfg.AutoStart()); err != nil {
		return err
	}

	timeout := flags.timeout
	if timeout <= 0 {
		timeout = cfg.RequestTimeout() + clientSlack
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stream := !flags.pipe && writerIsTerminal(rootStderr)
	preview := tui.NewStreamRenderer(rootStderr, stream)
	req := ipc.Request{
		Query:   query,
		Context: collectContextFn(),
		Model:   ipc.NullString(flags.model),
		Profile: ipc.NullString(selectedProfile(flags)),
		Stream:  stream,
	}

	command, err := ipc.NewClient(paths.SocketPath()).Query(ctx, req, preview.Chunk)
	preview.Finish()
	if err != nil {
		return err
	}
	fmt.Fprintln(rootStdout, command)
	return nil
}

// readQuery takes the query from the arguments, from stdin in pipe mode, or
// from the interactive prompt.
func readQuery(ctx context.Context, flags queryFlags, args []string) (string, error) {
	if query := joinQuery(args); query != "" {
		return query, nil
	}
	if flags.pipe {
		if f, ok := rootStdin.(*os.File); ok && isTerminalFn(f) {
			return "", errQueryRequired
		}
		data, err := io.ReadAll(io.LimitReader(rootStdin, ipc.MaxFrameSize))
		if err != nil {
			return "", fmt.Errorf("reading query from stdin: %w", err)
		}
		if query := joinQuery([]string{string(data)}); query != "" {
			return query, nil
		}
		return "", errQueryRequired
	}
	return promptFn(ctx, "")
}

// selectedProfile forwards --profile, or the fast profile for --fast. An
// explicit --model wins over both on the daemon side.
func selectedProfile(flags queryFlags) string {
	if flags.profile != "" {
		return flags.profile
	}
	if flags.fast {
		return config.FastProfileName
	}
	return ""
}

func writerIsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isTerminalFn(f)
}
