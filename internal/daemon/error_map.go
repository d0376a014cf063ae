package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/lydakis/llmcmd/internal/backend"
	"github.com/lydakis/llmcmd/internal/ipc"
)

var errRequestTimeout = errors.New("request deadline exceeded")

// classifyGenerateError maps a failed generation to the wire error kind.
// Cancellation causes win over whatever error the backend surfaced while
// being torn down. It reports false when the peer is gone and nothing should
// be sent.
func classifyGenerateError(ctx context.Context, err error, timeout string) (ipc.ErrorKind, string, bool) {
	if ctx.Err() != nil {
		switch cause := context.Cause(ctx); {
		case errors.Is(cause, ipc.ErrPeerClosed):
			return "", "", false
		case errors.Is(cause, ipc.ErrShutdown):
			return ipc.KindShutdown, "daemon is shutting down", true
		case errors.Is(cause, errRequestTimeout):
			return ipc.KindBackendTimeout, fmt.Sprintf("backend did not respond within %s", timeout), true
		}
	}

	if err == nil {
		return ipc.KindInternal, "generation failed", true
	}
	switch backend.KindOf(err) {
	case backend.KindUnavailable:
		return ipc.KindBackendUnavailable, err.Error(), true
	case backend.KindTimeout:
		return ipc.KindBackendTimeout, err.Error(), true
	case backend.KindUpstream:
		return ipc.KindUpstream, err.Error(), true
	}
	return ipc.KindInternal, err.Error(), true
}
