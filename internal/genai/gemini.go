package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	gemini "google.golang.org/genai"
)

// DefaultGeminiModel is the Gemini model used when none is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// contentGenerator is the subset of the Gemini models service used by GeminiClient.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*gemini.Content, config *gemini.GenerateContentConfig) (*gemini.GenerateContentResponse, error)
}

// GeminiClient is a Completer backed by the Gemini API.
type GeminiClient struct {
	models          contentGenerator
	model           string
	temperature     float32
	maxOutputTokens int32
}

// NewGeminiClient creates a Gemini-backed Completer. The API key falls back to GEMINI_API_KEY.
func NewGeminiClient(ctx context.Context, opts ...Option) (*GeminiClient, error) {
	cfg := applyOpts(opts)
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.APIKey == "" {
		slog.Error("GenAI NewGeminiClient: Gemini API key not set")
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}

	client, err := gemini.NewClient(ctx, &gemini.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: gemini.BackendGeminiAPI,
	})
	if err != nil {
		slog.Error("GenAI NewGeminiClient: failed to create client", "error", err)
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	slog.Debug("GenAI NewGeminiClient: Gemini client created", "model", cfg.Model)

	return &GeminiClient{
		models:          client.Models,
		model:           cfg.Model,
		temperature:     float32(cfg.Temperature),
		maxOutputTokens: int32(cfg.MaxCompletionTokens),
	}, nil
}

// Complete generates a single answer with the system prompt as the system instruction.
func (g *GeminiClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	config := &gemini.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		config.SystemInstruction = gemini.NewContentFromText(req.SystemPrompt, gemini.RoleUser)
	}
	if g.temperature > 0 {
		config.Temperature = gemini.Ptr(g.temperature)
	}
	if g.maxOutputTokens > 0 {
		config.MaxOutputTokens = g.maxOutputTokens
	}

	slog.Debug("GeminiClient Complete: sending request", "model", g.model, "prompt_length", len(req.Prompt))
	resp, err := g.models.GenerateContent(ctx, g.model, gemini.Text(req.Prompt), config)
	if err != nil {
		slog.Error("GeminiClient Complete: request failed", "model", g.model, "error", err)
		return "", fmt.Errorf("gemini completion failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrNoChoicesReturned
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
