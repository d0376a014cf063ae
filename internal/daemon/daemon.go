package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lydakis/llmcmd/internal/backend"
	"github.com/lydakis/llmcmd/internal/config"
	"github.com/lydakis/llmcmd/internal/ipc"
	"github.com/lydakis/llmcmd/internal/paths"
)

// State is the daemon lifecycle state.
type State int

const (
	StateIdle State = iota
	StateListening
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

var (
	// ErrAlreadyRunning is returned when another daemon owns the socket.
	ErrAlreadyRunning = errors.New("daemon already running")
	// ErrNotRunning is returned when no daemon answers on the socket.
	ErrNotRunning = errors.New("daemon not running")
)

// Options locate the daemon's runtime files and bound its timing. Zero
// values fall back to the standard paths and the config.
type Options struct {
	SocketPath     string
	PIDPath        string
	LockPath       string
	RequestTimeout time.Duration
	ShutdownGrace  time.Duration
	IdleTimeout    time.Duration
	Logger         *slog.Logger
}

// Daemon serves queries against one backend. The config, backend and prompt
// header are fixed for its lifetime.
type Daemon struct {
	cfg     *config.Config
	backend backend.Backend
	prompt  *backend.Prompt
	opts    Options
	logger  *slog.Logger

	mu          sync.Mutex
	state       State
	server      *ipc.Server
	tracker     *Tracker
	releaseLock func() error
	startedAt   time.Time

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

// New prepares a daemon. Nothing touches the filesystem until Listen.
func New(cfg *config.Config, b backend.Backend, opts Options) *Daemon {
	if opts.SocketPath == "" {
		opts.SocketPath = paths.SocketPath()
	}
	if opts.PIDPath == "" {
		opts.PIDPath = paths.PIDPath()
	}
	if opts.LockPath == "" {
		opts.LockPath = paths.LockPath()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = cfg.RequestTimeout()
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = cfg.ShutdownGrace()
	}
	if opts.IdleTimeout < 0 {
		opts.IdleTimeout = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Daemon{
		cfg:        cfg,
		backend:    b,
		prompt:     backend.NewPrompt(cfg.PromptPreferences()),
		opts:       opts,
		logger:     logger,
		shutdownCh: make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (d *Daemon) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Daemon) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Listen takes the daemon lock, binds the socket and writes the pid file.
// It fails with ErrAlreadyRunning when another daemon holds either.
func (d *Daemon) Listen() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != StateIdle {
		return fmt.Errorf("listen: daemon is %s", d.state)
	}
	for _, p := range []string{d.opts.SocketPath, d.opts.PIDPath, d.opts.LockPath} {
		if err := paths.EnsureDir(filepath.Dir(p)); err != nil {
			return fmt.Errorf("creating runtime dir: %w", err)
		}
	}

	release, err := lockFile(d.opts.LockPath, false)
	if err != nil {
		return err
	}

	srv := ipc.NewServer(d.opts.SocketPath, d.handle, d.logger)
	if err := srv.Start(); err != nil {
		release() //nolint:errcheck
		if errors.Is(err, ipc.ErrSocketInUse) {
			return ErrAlreadyRunning
		}
		return err
	}

	if err := os.WriteFile(d.opts.PIDPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0600); err != nil {
		srv.Stop(0)
		release() //nolint:errcheck
		return fmt.Errorf("writing pid file: %w", err)
	}

	d.server = srv
	d.releaseLock = release
	d.startedAt = time.Now()
	d.tracker = NewTracker(d.opts.IdleTimeout, func() {
		d.logger.Info("idle timeout reached", "idle_timeout", d.opts.IdleTimeout)
		d.Shutdown()
	})
	d.state = StateListening
	return nil
}

// Serve blocks until ctx is cancelled, a shutdown message arrives or the idle
// timer fires, then drains in-flight requests and removes the runtime files.
func (d *Daemon) Serve(ctx context.Context) error {
	if st := d.State(); st != StateListening {
		return fmt.Errorf("serve: daemon is %s", st)
	}

	select {
	case <-ctx.Done():
		d.logger.Info("shutting down", "reason", context.Cause(ctx))
	case <-d.shutdownCh:
		d.logger.Info("shutting down", "reason", "requested")
	}
	d.setState(StateShuttingDown)

	d.server.Stop(d.opts.ShutdownGrace)
	d.tracker.Stop()

	// Unlink while still holding the lock; lockFile retries when it ends up
	// on an unlinked inode.
	_ = os.Remove(d.opts.PIDPath)
	_ = os.Remove(d.opts.LockPath)
	if err := d.releaseLock(); err != nil {
		d.logger.Warn("releasing daemon lock", "err", err)
	}

	d.setState(StateTerminated)
	d.logger.Info("daemon stopped")
	return nil
}

// Shutdown asks Serve to return. It is safe to call more than once.
func (d *Daemon) Shutdown() {
	d.shutdownOnce.Do(func() { close(d.shutdownCh) })
}

func (d *Daemon) handle(ctx context.Context, msg ipc.Message, w *ipc.ResponseWriter) {
	switch m := msg.(type) {
	case ipc.Request:
		d.serveQuery(ctx, m, w)
	case ipc.StatusRequest:
		w.Send(d.report()) //nolint:errcheck
	case ipc.ShutdownRequest:
		w.Send(ipc.OK("shutting down")) //nolint:errcheck
		d.Shutdown()
	default:
		w.Send(ipc.Fail(ipc.KindProtocol, "unexpected message type: "+ipc.TypeOf(msg))) //nolint:errcheck
	}
}

func (d *Daemon) report() ipc.StatusReport {
	d.mu.Lock()
	state, started := d.state, d.startedAt
	d.mu.Unlock()

	profile := d.cfg.Resolve(config.Selection{}).Profile
	return ipc.StatusReport{
		State:         state.String(),
		Backend:       d.backend.Name(),
		Model:         d.backend.Model(),
		Profile:       profile,
		PID:           os.Getpid(),
		Socket:        d.opts.SocketPath,
		Active:        d.tracker.Active(),
		UptimeSeconds: int64(time.Since(started).Seconds()),
	}
}

func (d *Daemon) serveQuery(ctx context.Context, req ipc.Request, w *ipc.ResponseWriter) {
	if d.State() != StateListening {
		w.Send(ipc.Fail(ipc.KindShutdown, ipc.ErrShutdown.Error())) //nolint:errcheck
		return
	}
	d.tracker.Begin()
	defer d.tracker.End()

	log := d.logger.With("conn", uuid.NewString())

	query := strings.TrimSpace(req.Query)
	if query == "" {
		w.Send(ipc.Fail(ipc.KindInvalidRequest, ipc.ErrEmptyQuery.Error())) //nolint:errcheck
		return
	}
	resolved := d.cfg.Resolve(config.Selection{Model: string(req.Model), Profile: string(req.Profile)})
	if req.Model == "" && req.Profile != "" && resolved.Profile != string(req.Profile) {
		log.Debug("profile not configured, using default", "requested", string(req.Profile), "profile", resolved.Profile)
	}

	system, user := d.prompt.Build(req.Context, query, d.backend.CachesSystemPrompt())
	breq := backend.Request{
		System:      system,
		Prompt:      user,
		Model:       resolved.Model,
		Temperature: resolved.Temperature,
		Stream:      req.Stream,
	}

	reqCtx, cancel := context.WithTimeoutCause(ctx, d.opts.RequestTimeout, errRequestTimeout)
	defer cancel()

	start := time.Now()
	text, err := d.generate(reqCtx, breq, func(chunk string) {
		if req.Stream {
			w.Send(ipc.Chunk(chunk)) //nolint:errcheck
		}
	})
	log = log.With("backend", d.backend.Name(), "model", resolved.Model, "elapsed", time.Since(start))

	if err != nil {
		kind, message, ok := classifyGenerateError(reqCtx, err, d.opts.RequestTimeout.String())
		if !ok {
			log.Debug("client went away", "err", err)
			return
		}
		log.Warn("query failed", "kind", kind, "err", err)
		w.Send(ipc.Fail(kind, message)) //nolint:errcheck
		return
	}

	command := backend.CleanCommand(text)
	if command == "" {
		log.Warn("backend returned no command", "raw", text)
		w.Send(ipc.Fail(ipc.KindUpstream, "backend returned an empty command")) //nolint:errcheck
		return
	}
	log.Info("query served")
	w.Send(ipc.OK(command)) //nolint:errcheck
}

type generateResult struct {
	text string
	err  error
}

// generate runs one backend call. It returns as soon as ctx is done even if
// the backend keeps blocking; the stream is closed to release it.
func (d *Daemon) generate(ctx context.Context, req backend.Request, onChunk func(string)) (string, error) {
	results := make(chan generateResult, 1)
	go func() {
		stream, err := d.backend.Generate(ctx, req)
		if err != nil {
			results <- generateResult{err: err}
			return
		}
		stop := context.AfterFunc(ctx, func() { stream.Close() })
		defer stop()
		defer stream.Close()

		var b strings.Builder
		for stream.Next() {
			chunk := stream.Text()
			b.WriteString(chunk)
			onChunk(chunk)
		}
		results <- generateResult{text: b.String(), err: stream.Err()}
	}()

	select {
	case r := <-results:
		return r.text, r.err
	case <-ctx.Done():
		return "", context.Cause(ctx)
	}
}
