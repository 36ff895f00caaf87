// Package genai provides completion backends for the external language-model service.
//
// Every backend implements Completer: a black-box text-completion oracle that receives a
// system instruction and a prompt and returns a single text answer.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Default configuration constants
const (
	// DefaultModel is the OpenAI model used when none is configured.
	DefaultModel = "gpt-4o-mini"
	// DefaultTemperature keeps answers varied but on-topic.
	DefaultTemperature = 0.7
	// DefaultMaxCompletionTokens bounds answers; SMS replies are short anyway.
	DefaultMaxCompletionTokens = 300
)

var (
	// ErrNoChoicesReturned is returned when the completion response carries no choices.
	ErrNoChoicesReturned = errors.New("no choices returned")
	// ErrEmptyCompletion is returned when the backend answered with blank text.
	ErrEmptyCompletion = errors.New("empty completion")
	// ErrMissingAPIKey is returned when a backend is constructed without credentials.
	ErrMissingAPIKey = errors.New("API key not set")
)

// CompletionRequest is the input to a Completer. Backends that only accept free text use
// SystemPrompt and Prompt; structured backends may also forward the remaining fields.
type CompletionRequest struct {
	SystemPrompt            string            `json:"-"`
	Prompt                  string            `json:"prompt"`
	GuestContext            map[string]string `json:"guestContext,omitempty"`
	RequestType             string            `json:"requestType,omitempty"`
	PreviousRecommendations string            `json:"previousRecommendations,omitempty"`
}

// Completer is a text-completion oracle.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// chatService defines minimal interface for chat completions.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// completionsAdapter adapts the SDK completion service to chatService.
type completionsAdapter struct {
	svc openai.ChatCompletionService
}

func (a *completionsAdapter) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := a.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration options for the completion backends.
type Opts struct {
	APIKey              string
	Model               string
	BaseURL             string
	Temperature         float64
	MaxCompletionTokens int64
	EndpointURL         string
	EndpointAPIKey      string
}

// Option defines a configuration option for the completion backends.
type Option func(*Opts)

// WithAPIKey overrides the API key used by the backend.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel selects the model name.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithBaseURL points the OpenAI client at a compatible API.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithMaxCompletionTokens bounds the answer length.
func WithMaxCompletionTokens(n int64) Option {
	return func(o *Opts) { o.MaxCompletionTokens = n }
}

// WithEndpoint configures the HTTP recommendation endpoint backend.
func WithEndpoint(url, apiKey string) Option {
	return func(o *Opts) {
		o.EndpointURL = url
		o.EndpointAPIKey = apiKey
	}
}

func applyOpts(opts []Option) Opts {
	cfg := Opts{
		Temperature:         DefaultTemperature,
		MaxCompletionTokens: DefaultMaxCompletionTokens,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Client wraps the OpenAI ChatCompletion service.
type Client struct {
	chat                chatService
	model               string
	temperature         float64
	maxCompletionTokens int64
}

// NewClient initializes a new OpenAI-backed Completer. The API key falls back to
// OPENAI_API_KEY when not supplied through options.
func NewClient(opts ...Option) (*Client, error) {
	cfg := applyOpts(opts)
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		slog.Error("GenAI NewClient: OpenAI API key not set")
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	// A failed completion degrades to the fallback reply; the guest's next message is the retry.
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}
	cli := openai.NewClient(reqOpts...)
	slog.Debug("GenAI NewClient: OpenAI client created", "model", cfg.Model, "base_url_set", cfg.BaseURL != "")

	return &Client{
		chat:                &completionsAdapter{svc: cli.Chat.Completions},
		model:               cfg.Model,
		temperature:         cfg.Temperature,
		maxCompletionTokens: cfg.MaxCompletionTokens,
	}, nil
}

// Complete sends the system instruction and prompt as a two-message chat and returns the
// first choice's content.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	}
	if c.temperature > 0 {
		params.Temperature = openai.Float(c.temperature)
	}
	if c.maxCompletionTokens > 0 {
		params.MaxCompletionTokens = openai.Int(c.maxCompletionTokens)
	}

	slog.Debug("GenAI Complete: sending request", "model", c.model, "prompt_length", len(req.Prompt), "request_type", req.RequestType)
	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		slog.Error("GenAI Complete: request failed", "model", c.model, "error", err)
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("GenAI Complete: no choices returned", "model", c.model)
		return "", ErrNoChoicesReturned
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	slog.Debug("GenAI Complete: response received", "model", c.model, "content_length", len(content))
	return content, nil
}
