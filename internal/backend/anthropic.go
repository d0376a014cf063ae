package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// Anthropic talks to the Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropic returns an Anthropic backend for cfg. SDK retries are off so
// the daemon's request deadline is the only retry budget.
func NewAnthropic(cfg Config, client *http.Client) *Anthropic {
	if client == nil {
		client = NewHTTPClient(cfg.Headers)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.Credential),
		option.WithHTTPClient(client),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(cfg.Endpoint); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &Anthropic{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

func (a *Anthropic) Name() string             { return ProviderAnthropic }
func (a *Anthropic) Model() string            { return a.model }
func (a *Anthropic) CachesSystemPrompt() bool { return false }

func (a *Anthropic) params(req Request) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = a.model
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = int64(a.maxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	return params
}

func (a *Anthropic) Generate(ctx context.Context, req Request) (Stream, error) {
	params := a.params(req)

	if !req.Stream {
		msg, err := a.client.Messages.New(ctx, params)
		if err != nil {
			return nil, anthropicError(err)
		}
		var text strings.Builder
		for _, block := range msg.Content {
			if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
				text.WriteString(tb.Text)
			}
		}
		return newTextStream(text.String()), nil
	}

	stream := a.client.Messages.NewStreaming(ctx, params)
	// A rejected request surfaces as the stream error before any event.
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, anthropicError(err)
	}
	return &anthropicStream{stream: stream}, nil
}

func (a *Anthropic) HealthCheck(ctx context.Context) error {
	if _, err := a.client.Models.List(ctx, anthropic.ModelListParams{}); err != nil {
		return anthropicError(err)
	}
	return nil
}

func anthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		message := apiErr.Error()
		var payload struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if raw := apiErr.RawJSON(); raw != "" && json.Unmarshal([]byte(raw), &payload) == nil && payload.Error.Message != "" {
			message = payload.Error.Message
		}
		return statusError(ProviderAnthropic, apiErr.StatusCode, message, authHint(apiErr.StatusCode))
	}
	return transportError(ProviderAnthropic, err, "")
}

// anthropicStream forwards text deltas and ignores every other event.
type anthropicStream struct {
	stream *ssestream.Stream[anthropic.MessageStreamEventUnion]

	text string
	err  error
	done bool
	once sync.Once
}

func (s *anthropicStream) Next() bool {
	for !s.done {
		if !s.stream.Next() {
			s.done = true
			if err := s.stream.Err(); err != nil {
				s.err = anthropicError(err)
			}
			return false
		}
		event := s.stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				s.text = delta.Text
				return true
			}
		case anthropic.MessageStopEvent:
			s.done = true
		}
	}
	return false
}

func (s *anthropicStream) Text() string { return s.text }
func (s *anthropicStream) Err() error   { return s.err }

func (s *anthropicStream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.stream.Close()
	})
	return err
}
