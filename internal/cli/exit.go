package cli

import (
	"errors"

	"github.com/lydakis/llmcmd/internal/ipc"
)

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return ipc.ExitOK
	}
	// Unreachable wraps spawn failures, so the timeout check comes first.
	if errors.Is(err, ipc.ErrTimeout) {
		return ipc.ExitBackend
	}
	if errors.Is(err, ipc.ErrUnreachable) {
		return ipc.ExitUnreachable
	}

	var remote *ipc.RemoteError
	if errors.As(err, &remote) {
		switch remote.Kind {
		case ipc.KindBackendUnavailable, ipc.KindBackendTimeout, ipc.KindUpstream:
			return ipc.ExitBackend
		}
	}
	return ipc.ExitFailure
}
