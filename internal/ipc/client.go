package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrUnreachable wraps every failure to connect to the daemon socket.
var ErrUnreachable = errors.New("daemon unreachable")

// ErrTimeout is returned when the caller's deadline passes before the daemon
// sends a terminal response.
var ErrTimeout = errors.New("timed out waiting for daemon")

// RemoteError is an error response sent by the daemon.
type RemoteError struct {
	Kind    ErrorKind
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Client sends requests to the daemon over a Unix socket.
type Client struct {
	socketPath string
}

// NewClient creates a new IPC client.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// SocketPath returns the socket the client dials.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// Probe reports whether something accepts connections on socketPath.
func Probe(socketPath string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Query sends req and waits for the terminal response. Chunks received before
// it are passed to onChunk when it is non-nil. The returned text is the text
// of the ok response.
func (c *Client) Query(ctx context.Context, req Request, onChunk func(string)) (string, error) {
	req.Type = TypeRequest
	var text string
	err := c.exchange(ctx, req, func(msg Message) (bool, error) {
		resp, ok := msg.(Response)
		if !ok {
			return true, fmt.Errorf("reading response: unexpected %s message", msg.messageType())
		}
		switch resp.Status {
		case StatusChunk:
			if onChunk != nil {
				onChunk(resp.Text)
			}
			return false, nil
		case StatusOK:
			text = resp.Text
			return true, nil
		default:
			return true, &RemoteError{Kind: resp.Kind(), Message: resp.Text}
		}
	})
	return text, err
}

// Status asks the daemon to describe itself.
func (c *Client) Status(ctx context.Context) (StatusReport, error) {
	var report StatusReport
	err := c.exchange(ctx, StatusRequest{Type: TypeStatus}, func(msg Message) (bool, error) {
		switch m := msg.(type) {
		case StatusReport:
			report = m
			return true, nil
		case Response:
			if m.Status == StatusError {
				return true, &RemoteError{Kind: m.Kind(), Message: m.Text}
			}
		}
		return true, fmt.Errorf("reading status: unexpected %s message", msg.messageType())
	})
	return report, err
}

// Shutdown asks the daemon to stop and waits for its acknowledgement.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.exchange(ctx, ShutdownRequest{Type: TypeShutdown}, func(msg Message) (bool, error) {
		resp, ok := msg.(Response)
		if !ok {
			return true, fmt.Errorf("reading shutdown reply: unexpected %s message", msg.messageType())
		}
		if resp.Status == StatusError {
			return true, &RemoteError{Kind: resp.Kind(), Message: resp.Text}
		}
		return resp.Terminal(), nil
	})
}

// exchange sends msg on a fresh connection and feeds every reply to handle
// until it reports done.
func (c *Client) exchange(ctx context.Context, msg Message, handle func(Message) (bool, error)) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		if ctxErr := contextError(ctx); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("connecting to daemon: %w: %w", ErrUnreachable, err)
	}
	defer conn.Close()

	// Closing the deadline window wakes any blocked read or write.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := WriteMessage(conn, msg); err != nil {
		if ctxErr := contextError(ctx); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("sending request: %w", err)
	}

	dec := NewDecoder()
	for {
		reply, err := ReadMessage(conn, dec)
		if err != nil {
			if ctxErr := contextError(ctx); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("reading response: %w", err)
		}
		done, err := handle(reply)
		if err != nil || done {
			return err
		}
	}
}

func contextError(ctx context.Context) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ErrTimeout
	case ctx.Err() != nil:
		return ctx.Err()
	}
	return nil
}
