package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lydakis/llmcmd/internal/backend"
	"github.com/lydakis/llmcmd/internal/config"
	"github.com/lydakis/llmcmd/internal/httpheaders"
	"github.com/lydakis/llmcmd/internal/paths"
)

const healthCheckTimeout = 5 * time.Second

var newBackendFn = func(cfg backend.Config) (backend.Backend, error) {
	return backend.New(cfg, nil)
}

// RunForeground runs the daemon in the current process until ctx is
// cancelled, SIGINT or SIGTERM arrives, or a client asks it to stop.
func RunForeground(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	return run(ctx, cfg, logger, nil)
}

// RunDetached is the entry point of a spawned daemon. It logs to the daemon
// log file and reports startup success or failure through the startup status
// file the spawning client polls.
func RunDetached(ctx context.Context) error {
	statusPath := paths.StartupStatusPath()

	cfg, err := config.Load()
	if err == nil {
		err = config.Validate(cfg)
	}
	if err != nil {
		err = fmt.Errorf("invalid config: %w", err)
		writeStartupStatus(statusPath, err)
		return err
	}

	logPath := paths.LogPath()
	if err := paths.EnsureDir(filepath.Dir(logPath)); err != nil {
		writeStartupStatus(statusPath, err)
		return err
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		err = fmt.Errorf("opening daemon log: %w", err)
		writeStartupStatus(statusPath, err)
		return err
	}
	defer logFile.Close()
	logger := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: cfg.LogLevel()}))

	err = run(ctx, cfg, logger, func(err error) {
		writeStartupStatus(statusPath, err)
	})
	if errors.Is(err, ErrAlreadyRunning) {
		logger.Info("another daemon is already listening")
		return nil
	}
	return err
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, ready func(error)) error {
	if ready == nil {
		ready = func(error) {}
	}

	spec, err := cfg.BackendSpec()
	if err != nil {
		ready(err)
		return err
	}
	b, err := newBackendFn(spec)
	if err != nil {
		ready(err)
		return err
	}
	if len(spec.Headers) > 0 {
		logger.Debug("extra provider headers", "headers", httpheaders.Redact(spec.Headers))
	}

	// An unhealthy backend may recover; queries report the failure themselves.
	hctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	if err := b.HealthCheck(hctx); err != nil {
		logger.Warn("backend health check failed", "backend", b.Name(), "err", err)
	}
	cancel()

	d := New(cfg, b, Options{
		IdleTimeout: cfg.IdleTimeout(),
		Logger:      logger,
	})
	if err := d.Listen(); err != nil {
		ready(err)
		return err
	}
	ready(nil)
	logger.Info("listening", "socket", d.opts.SocketPath, "backend", b.Name(), "model", b.Model(), "pid", os.Getpid())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return d.Serve(ctx)
}

// writeStartupStatus records "OK" or "ERROR: <message>". A daemon that lost
// the race to another one still reports OK.
func writeStartupStatus(path string, err error) {
	line := "OK\n"
	if err != nil && !errors.Is(err, ErrAlreadyRunning) {
		line = "ERROR: " + err.Error() + "\n"
	}
	if paths.EnsureDir(filepath.Dir(path)) != nil {
		return
	}
	tmp := path + ".tmp"
	if os.WriteFile(tmp, []byte(line), 0600) != nil {
		return
	}
	_ = os.Rename(tmp, path)
}
