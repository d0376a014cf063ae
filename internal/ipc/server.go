package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Cancellation causes observed by handlers through context.Cause.
var (
	ErrPeerClosed = errors.New("peer disconnected")
	ErrShutdown   = errors.New("daemon shutting down")
)

// ErrSocketInUse is returned by Start when another process answers on the socket.
var ErrSocketInUse = errors.New("socket already in use")

// ErrResponseComplete is returned when writing after a terminal response.
var ErrResponseComplete = errors.New("terminal response already sent")

const (
	defaultReadTimeout  = 5 * time.Second
	defaultWriteTimeout = 5 * time.Second
	forcedStopWait      = time.Second
)

// Handler processes one decoded message. It writes its answer through w and
// should return once a terminal response has been sent or ctx is done.
type Handler func(ctx context.Context, msg Message, w *ResponseWriter)

var peerUIDMatchesCurrentUserFn = peerUIDMatchesCurrentUser

// Server listens for IPC connections on a Unix socket.
type Server struct {
	socketPath string
	handler    Handler
	logger     *slog.Logger

	readTimeout  time.Duration
	writeTimeout time.Duration

	listener net.Listener
	wg       sync.WaitGroup
	conns    atomic.Int64

	base     context.Context
	cancel   context.CancelCauseFunc
	stopOnce sync.Once
}

// NewServer creates a new IPC server.
func NewServer(socketPath string, handler Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	base, cancel := context.WithCancelCause(context.Background())
	return &Server{
		socketPath:   socketPath,
		handler:      handler,
		logger:       logger,
		readTimeout:  defaultReadTimeout,
		writeTimeout: defaultWriteTimeout,
		base:         base,
		cancel:       cancel,
	}
}

// Start begins listening for connections. A socket file nobody answers on is
// treated as stale and removed first.
func (s *Server) Start() error {
	if Probe(s.socketPath, 250*time.Millisecond) {
		return fmt.Errorf("%s: %w", s.socketPath, ErrSocketInUse)
	}
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale socket: %w", err)
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		ln.Close()
		os.Remove(s.socketPath)
		return fmt.Errorf("setting socket permissions: %w", err)
	}
	s.listener = ln

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()
	return nil
}

// Active returns the number of connections currently being served.
func (s *Server) Active() int {
	return int(s.conns.Load())
}

// Stop closes the listener and waits up to grace for in-flight connections.
// Connections still running after that see their context cancelled with
// ErrShutdown.
func (s *Server) Stop(grace time.Duration) {
	s.stopOnce.Do(func() {
		if s.listener != nil {
			s.listener.Close()
		}

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		if grace > 0 {
			select {
			case <-done:
			case <-time.After(grace):
				s.logger.Warn("shutdown grace elapsed, cancelling in-flight requests", "active", s.Active())
			}
		}
		s.cancel(ErrShutdown)

		select {
		case <-done:
		case <-time.After(forcedStopWait):
			s.logger.Warn("connections still open after cancellation", "active", s.Active())
		}
		if s.listener != nil {
			os.Remove(s.socketPath)
		}
	})
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "err", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		s.wg.Add(1)
		s.conns.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.conns.Add(-1)
			defer conn.Close()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	w := &ResponseWriter{conn: conn, timeout: s.writeTimeout}

	ok, err := peerUIDMatchesCurrentUserFn(conn)
	if err != nil {
		w.Send(Fail(KindProtocol, "peer uid check failed")) //nolint:errcheck
		return
	}
	if !ok {
		w.Send(Fail(KindProtocol, "peer uid mismatch")) //nolint:errcheck
		return
	}

	if s.readTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
	msg, err := ReadMessage(conn, NewDecoder())
	if err != nil {
		var corrupt *CorruptFrameError
		if errors.As(err, &corrupt) {
			w.Send(Fail(KindProtocol, corrupt.Error())) //nolint:errcheck
		}
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithCancelCause(s.base)
	defer cancel(nil)

	// The peer sends nothing after its request, so any read result means it
	// went away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		var buf [1]byte
		if _, err := conn.Read(buf[:]); err != nil {
			cancel(ErrPeerClosed)
			return
		}
		cancel(ErrPeerClosed)
	}()

	s.handler(ctx, msg, w)
	if !w.Done() && context.Cause(ctx) != ErrPeerClosed {
		kind, text := KindInternal, "no response produced"
		if context.Cause(ctx) == ErrShutdown {
			kind, text = KindShutdown, ErrShutdown.Error()
		}
		w.Send(Fail(kind, text)) //nolint:errcheck
	}

	_ = conn.SetReadDeadline(time.Now())
	<-done
}

// ResponseWriter writes response frames for one connection. Writes after the
// terminal response fail with ErrResponseComplete.
type ResponseWriter struct {
	conn    net.Conn
	timeout time.Duration

	mu   sync.Mutex
	done bool
}

// Send writes one message. Response values with status ok or error, and
// status reports, end the exchange.
func (w *ResponseWriter) Send(msg Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done {
		return ErrResponseComplete
	}
	switch m := msg.(type) {
	case Response:
		w.done = m.Terminal()
	case StatusReport:
		w.done = true
	}

	if w.timeout > 0 {
		_ = w.conn.SetWriteDeadline(time.Now().Add(w.timeout))
		defer w.conn.SetWriteDeadline(time.Time{}) //nolint:errcheck
	}
	return WriteMessage(w.conn, msg)
}

// Done reports whether the terminal response has been sent.
func (w *ResponseWriter) Done() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}
