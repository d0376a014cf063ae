package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/lydakis/llmcmd/internal/ipc"
	"github.com/lydakis/llmcmd/internal/paths"
)

const (
	probeTimeout    = 250 * time.Millisecond
	initialBackoff  = 25 * time.Millisecond
	maxBackoff      = 250 * time.Millisecond
	defaultStartup  = 5 * time.Second
	startupStatusOK = "OK"
)

var (
	spawnDaemonFn      = spawnDaemon
	acquireSpawnLockFn = func(path string) (func() error, error) { return lockFile(path, true) }
	execCommandFn      = exec.Command
	probeFn            = ipc.Probe
)

// StartOptions locate the files a starting client coordinates through.
type StartOptions struct {
	SocketPath     string
	SpawnLockPath  string
	StatusPath     string
	StartupTimeout time.Duration
}

func (o StartOptions) withDefaults() StartOptions {
	if o.SocketPath == "" {
		o.SocketPath = paths.SocketPath()
	}
	if o.SpawnLockPath == "" {
		o.SpawnLockPath = paths.SpawnLockPath()
	}
	if o.StatusPath == "" {
		o.StatusPath = paths.StartupStatusPath()
	}
	if o.StartupTimeout <= 0 {
		o.StartupTimeout = defaultStartup
	}
	return o
}

// Start spawns a detached daemon unless one is already listening, and waits
// until it accepts connections. Concurrent starters serialize on the spawn
// lock so at most one daemon is spawned.
func Start(ctx context.Context, opts StartOptions) (alreadyRunning bool, err error) {
	opts = opts.withDefaults()
	if probeFn(opts.SocketPath, probeTimeout) {
		return true, nil
	}

	if err := paths.EnsureDir(filepath.Dir(opts.SpawnLockPath)); err != nil {
		return false, fmt.Errorf("creating runtime dir: %w", err)
	}
	release, err := acquireSpawnLockFn(opts.SpawnLockPath)
	if err != nil {
		return false, fmt.Errorf("acquiring spawn lock: %w", err)
	}
	defer release() //nolint:errcheck

	// Another starter may have won while we waited for the lock.
	if probeFn(opts.SocketPath, probeTimeout) {
		return true, nil
	}

	_ = os.Remove(opts.StatusPath)
	if err := spawnDaemonFn(); err != nil {
		return false, err
	}
	return false, waitForDaemon(ctx, opts)
}

// EnsureRunning makes sure a daemon answers on the socket, starting one when
// autoStart allows it.
func EnsureRunning(ctx context.Context, opts StartOptions, autoStart bool) error {
	opts = opts.withDefaults()
	if probeFn(opts.SocketPath, probeTimeout) {
		return nil
	}
	if !autoStart {
		return fmt.Errorf("%w: %w (auto_start is disabled; run: llmcmd daemon start)", ErrNotRunning, ipc.ErrUnreachable)
	}
	if _, err := Start(ctx, opts); err != nil {
		return fmt.Errorf("%w: %w", ipc.ErrUnreachable, err)
	}
	return nil
}

// Stop asks the daemon on socketPath to shut down.
func Stop(ctx context.Context, socketPath string) error {
	if !probeFn(socketPath, probeTimeout) {
		return ErrNotRunning
	}
	if err := ipc.NewClient(socketPath).Shutdown(ctx); err != nil {
		if errors.Is(err, ipc.ErrUnreachable) {
			return ErrNotRunning
		}
		return err
	}

	// The daemon answers before it drains; wait for the socket to go away.
	backoff := initialBackoff
	for probeFn(socketPath, probeTimeout) {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for daemon to exit: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
	return nil
}

// Status asks the daemon on socketPath to describe itself.
func Status(ctx context.Context, socketPath string) (ipc.StatusReport, error) {
	report, err := ipc.NewClient(socketPath).Status(ctx)
	if errors.Is(err, ipc.ErrUnreachable) {
		return ipc.StatusReport{}, ErrNotRunning
	}
	return report, err
}

func waitForDaemon(ctx context.Context, opts StartOptions) error {
	ctx, cancel := context.WithTimeout(ctx, opts.StartupTimeout)
	defer cancel()

	backoff := initialBackoff
	for {
		if status, ok := readStartupStatus(opts.StatusPath); ok && status != startupStatusOK {
			return fmt.Errorf("daemon failed to start: %s", strings.TrimPrefix(status, "ERROR: "))
		}
		if probeFn(opts.SocketPath, probeTimeout) {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("daemon did not start within %s (see %s)", opts.StartupTimeout, paths.LogPath())
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func readStartupStatus(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	status := strings.TrimSpace(string(data))
	return status, status != ""
}

func spawnDaemon() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("finding executable: %w", err)
	}

	cmd, cleanup, err := newDaemonCommand(exe)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("spawning daemon: %w", err)
	}

	// Detach: don't wait for the daemon process
	go cmd.Wait() //nolint: errcheck
	return nil
}

func newDaemonCommand(exe string) (*exec.Cmd, func(), error) {
	cmd := execCommandFn(exe, "__daemon")
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", os.DevNull, err)
	}

	cmd.Stdin = devNull
	cmd.Stdout = devNull
	cmd.Stderr = devNull
	// New session so the daemon outlives the terminal that started it.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd, func() {
		_ = devNull.Close()
	}, nil
}
