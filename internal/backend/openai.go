package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAI talks to the Chat Completions API or a compatible endpoint.
type OpenAI struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAI returns an OpenAI backend for cfg. An empty cfg.Endpoint selects
// the public API.
func NewOpenAI(cfg Config, client *http.Client) *OpenAI {
	oc := openai.DefaultConfig(cfg.Credential)
	if base := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"); base != "" {
		oc.BaseURL = base // works for vLLM, Groq, LocalAI and similar
	}
	if client == nil {
		client = NewHTTPClient(cfg.Headers)
	}
	oc.HTTPClient = client
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &OpenAI{
		client:    openai.NewClientWithConfig(oc),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

func (o *OpenAI) Name() string             { return ProviderOpenAI }
func (o *OpenAI) Model() string            { return o.model }
func (o *OpenAI) CachesSystemPrompt() bool { return false }

func (o *OpenAI) Generate(ctx context.Context, req Request) (Stream, error) {
	model := req.Model
	if model == "" {
		model = o.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = o.maxTokens
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: float32(req.Temperature),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	}

	if !req.Stream {
		resp, err := o.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			return nil, openAIError(err)
		}
		if len(resp.Choices) == 0 {
			return nil, &Error{Kind: KindUpstream, Provider: ProviderOpenAI, Message: "response contained no choices"}
		}
		return newTextStream(resp.Choices[0].Message.Content), nil
	}

	chatReq.Stream = true
	stream, err := o.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, openAIError(err)
	}
	return &openAIStream{stream: stream}, nil
}

func (o *OpenAI) HealthCheck(ctx context.Context) error {
	if _, err := o.client.ListModels(ctx); err != nil {
		return openAIError(err)
	}
	return nil
}

func openAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError(ProviderOpenAI, apiErr.HTTPStatusCode, apiErr.Message, authHint(apiErr.HTTPStatusCode))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusError(ProviderOpenAI, reqErr.HTTPStatusCode, reqErr.Error(), authHint(reqErr.HTTPStatusCode))
	}
	return transportError(ProviderOpenAI, err, "")
}

type openAIStream struct {
	stream *openai.ChatCompletionStream

	text string
	err  error
	done bool
	once sync.Once
}

func (s *openAIStream) Next() bool {
	for !s.done {
		resp, err := s.stream.Recv()
		if err != nil {
			s.done = true
			if !errors.Is(err, io.EOF) {
				s.err = openAIError(err)
			}
			return false
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			s.text = delta
			return true
		}
	}
	return false
}

func (s *openAIStream) Text() string { return s.text }
func (s *openAIStream) Err() error   { return s.err }

func (s *openAIStream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.stream.Close()
	})
	return err
}
