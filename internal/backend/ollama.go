package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultOllamaHost is used when no host is configured.
const DefaultOllamaHost = "http://localhost:11434"

const (
	ollamaHealthTimeout = 5 * time.Second
	maxErrorBody        = 4 << 10
)

// ErrStreamClosed is reported by a stream that was closed before it finished.
var ErrStreamClosed = errors.New("stream closed")

// Ollama talks to a local Ollama server.
type Ollama struct {
	host      string
	model     string
	maxTokens int
	client    *http.Client
}

// NewOllama returns an Ollama backend for cfg.
func NewOllama(cfg Config, client *http.Client) *Ollama {
	host := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if host == "" {
		host = DefaultOllamaHost
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if client == nil {
		client = NewHTTPClient(cfg.Headers)
	}
	return &Ollama{host: host, model: cfg.Model, maxTokens: cfg.MaxTokens, client: client}
}

func (o *Ollama) Name() string  { return ProviderOllama }
func (o *Ollama) Model() string { return o.model }

// Ollama keeps the evaluated system prompt between requests for the same model.
func (o *Ollama) CachesSystemPrompt() bool { return true }

// Host returns the server base URL.
func (o *Ollama) Host() string { return o.host }

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

func (o *Ollama) Generate(ctx context.Context, req Request) (Stream, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = o.maxTokens
	}

	resp, err := o.do(ctx, http.MethodPost, "/api/generate", ollamaGenerateRequest{
		Model:  model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: req.Stream,
		Options: ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  maxTokens,
		},
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, o.statusError(resp, model)
	}
	return &ollamaStream{body: resp.Body, dec: json.NewDecoder(resp.Body)}, nil
}

func (o *Ollama) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ollamaHealthTimeout)
	defer cancel()

	resp, err := o.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return o.statusError(resp, "")
	}
	return nil
}

func (o *Ollama) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding ollama request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, o.host+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating ollama request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, transportError(ProviderOllama, err, "is Ollama running at "+o.host+"?")
	}
	return resp, nil
}

// statusError reads the error body and closes it.
func (o *Ollama) statusError(resp *http.Response, model string) error {
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	message := string(data)
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		message = payload.Error
	}

	hint := ""
	if resp.StatusCode == http.StatusNotFound && model != "" {
		hint = "pull it with: llmcmd models pull " + model
	}
	return statusError(ProviderOllama, resp.StatusCode, message, hint)
}

// ollamaStream decodes the newline-delimited JSON objects Ollama sends. A
// non-streaming reply is a single object and yields one chunk.
type ollamaStream struct {
	body io.ReadCloser
	dec  *json.Decoder

	text   string
	err    error
	done   bool
	closed atomic.Bool
	once   sync.Once
}

func (s *ollamaStream) Next() bool {
	for !s.done {
		var chunk ollamaGenerateResponse
		if err := s.dec.Decode(&chunk); err != nil {
			s.done = true
			switch {
			case s.closed.Load():
				s.err = ErrStreamClosed
			case errors.Is(err, io.EOF):
				s.err = &Error{Kind: KindUpstream, Provider: ProviderOllama, Message: "response ended before completion"}
			default:
				s.err = transportError(ProviderOllama, err, "")
			}
			return false
		}
		if chunk.Error != "" {
			s.done = true
			s.err = &Error{Kind: KindUpstream, Provider: ProviderOllama, Message: chunk.Error}
			return false
		}
		s.done = chunk.Done
		if chunk.Response != "" {
			s.text = chunk.Response
			return true
		}
	}
	return false
}

func (s *ollamaStream) Text() string { return s.text }
func (s *ollamaStream) Err() error   { return s.err }

func (s *ollamaStream) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		err = s.body.Close()
	})
	return err
}
