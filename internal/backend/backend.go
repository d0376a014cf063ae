// Package backend talks to the language-model providers that turn a prompt
// into a shell command.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// Provider names accepted in Config.Provider.
const (
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// DefaultMaxTokens bounds generated output when the config does not.
const DefaultMaxTokens = 200

// Backend generates completions from one provider.
type Backend interface {
	// Name returns the provider identifier ("ollama", "anthropic", "openai").
	Name() string
	// Model returns the model used when a request does not override it.
	Model() string
	// CachesSystemPrompt reports whether the provider reuses work across
	// requests that share a byte-identical system prompt.
	CachesSystemPrompt() bool
	// Generate starts one completion. The returned stream must be closed.
	Generate(ctx context.Context, req Request) (Stream, error)
	// HealthCheck verifies the provider is reachable.
	HealthCheck(ctx context.Context) error
}

// Stream yields generated text. It is finite and cannot be restarted.
// Close may be called from another goroutine to abort a blocked Next.
type Stream interface {
	Next() bool
	Text() string
	Err() error
	Close() error
}

// Request is one completion call.
type Request struct {
	System      string
	Prompt      string
	Model       string // empty means the backend default
	Temperature float64
	MaxTokens   int
	Stream      bool
}

// Config selects and parameterizes a provider. It is built once at daemon
// start and never mutated afterwards.
type Config struct {
	Provider   string
	Endpoint   string // Ollama host or cloud base URL override
	Model      string
	Credential string // API key for cloud providers
	MaxTokens  int
	Headers    map[string]string
}

// New builds the backend described by cfg. When client is nil a keep-alive
// client carrying cfg.Headers is created.
func New(cfg Config, client *http.Client) (Backend, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("backend %s: model is required", cfg.Provider)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if client == nil {
		client = NewHTTPClient(cfg.Headers)
	}

	switch cfg.Provider {
	case ProviderOllama:
		return NewOllama(cfg, client), nil
	case ProviderAnthropic:
		if cfg.Credential == "" {
			return nil, fmt.Errorf("backend anthropic: %w", ErrMissingCredential)
		}
		return NewAnthropic(cfg, client), nil
	case ProviderOpenAI:
		if cfg.Credential == "" {
			return nil, fmt.Errorf("backend openai: %w", ErrMissingCredential)
		}
		return NewOpenAI(cfg, client), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Provider)
	}
}

// ErrMissingCredential is returned by New when a cloud provider has no API key.
var ErrMissingCredential = errors.New("missing API key")

// ErrorKind classifies a backend failure.
type ErrorKind string

const (
	KindUnavailable ErrorKind = "backend_unavailable"
	KindTimeout     ErrorKind = "backend_timeout"
	KindUpstream    ErrorKind = "upstream"
)

// Error is a classified provider failure.
type Error struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Message    string
	Hint       string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Hint != "" {
		b.WriteString(" (")
		b.WriteString(e.Hint)
		b.WriteByte(')')
	}
	return b.String()
}

// KindOf returns the kind of a backend error, or "" if err is not one.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// transportError classifies a failure that happened before any HTTP status
// was received.
func transportError(provider string, err error, hint string) *Error {
	kind := KindUnavailable
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		kind = KindTimeout
		hint = ""
	}
	return &Error{Kind: kind, Provider: provider, Message: err.Error(), Hint: hint}
}

// statusError classifies an HTTP error status.
func statusError(provider string, status int, message, hint string) *Error {
	kind := KindUpstream
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind = KindTimeout
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable:
		kind = KindUnavailable
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{Kind: kind, Provider: provider, StatusCode: status, Message: message, Hint: hint}
}

func authHint(status int) string {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return "check the API key"
	}
	return ""
}

// NewHTTPClient returns the keep-alive client shared by every provider call.
func NewHTTPClient(headers map[string]string) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 4
	transport.MaxIdleConnsPerHost = 4
	transport.IdleConnTimeout = 5 * time.Minute
	return &http.Client{Transport: &headerTransport{base: transport, headers: headers}}
}
