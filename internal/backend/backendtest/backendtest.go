// Package backendtest provides in-memory backends for tests.
package backendtest

import (
	"context"
	"strings"
	"sync"

	"github.com/lydakis/llmcmd/internal/backend"
)

// Fake is a configurable backend. Generate records every request.
type Fake struct {
	// Chunks are emitted in order for every request.
	Chunks []string
	// Err is returned from Generate when set.
	Err error
	// StreamErr is reported by the stream after all chunks.
	StreamErr error
	// Hang blocks the stream until it is closed, ignoring the context.
	Hang bool
	// Reply computes the chunks from the request when set.
	Reply func(req backend.Request) []string

	ProviderName string
	ModelName    string
	Cached       bool

	mu       sync.Mutex
	requests []backend.Request
}

// Static returns a backend that answers every request with text.
func Static(text string) *Fake {
	return &Fake{Chunks: []string{text}}
}

// Echo returns a backend that answers with the last line of the user prompt,
// which is the raw query.
func Echo() *Fake {
	return &Fake{Reply: func(req backend.Request) []string {
		lines := strings.Split(req.Prompt, "\n")
		return []string{"echo " + lines[len(lines)-1]}
	}}
}

// Hang returns a backend whose streams never produce output and ignore
// cancellation until closed.
func Hang() *Fake {
	return &Fake{Hang: true}
}

// Fail returns a backend whose Generate fails with err.
func Fail(err error) *Fake {
	return &Fake{Err: err}
}

func (f *Fake) Name() string {
	if f.ProviderName == "" {
		return "fake"
	}
	return f.ProviderName
}

func (f *Fake) Model() string {
	if f.ModelName == "" {
		return "fake-model"
	}
	return f.ModelName
}

func (f *Fake) CachesSystemPrompt() bool { return f.Cached }

func (f *Fake) HealthCheck(context.Context) error { return f.Err }

func (f *Fake) Generate(ctx context.Context, req backend.Request) (backend.Stream, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	if f.Hang {
		return &hangStream{closed: make(chan struct{})}, nil
	}
	chunks := f.Chunks
	if f.Reply != nil {
		chunks = f.Reply(req)
	}
	return &sliceStream{chunks: chunks, err: f.StreamErr, idx: -1}, nil
}

// Requests returns a copy of the requests seen so far.
func (f *Fake) Requests() []backend.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]backend.Request(nil), f.requests...)
}

type sliceStream struct {
	chunks []string
	err    error
	idx    int
}

func (s *sliceStream) Next() bool {
	s.idx++
	return s.idx < len(s.chunks)
}

func (s *sliceStream) Text() string { return s.chunks[s.idx] }
func (s *sliceStream) Close() error { return nil }

func (s *sliceStream) Err() error {
	if s.idx >= len(s.chunks) {
		return s.err
	}
	return nil
}

type hangStream struct {
	once   sync.Once
	closed chan struct{}
}

func (s *hangStream) Next() bool {
	<-s.closed
	return false
}

func (s *hangStream) Text() string { return "" }
func (s *hangStream) Err() error   { return backend.ErrStreamClosed }

func (s *hangStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}
