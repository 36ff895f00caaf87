package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultEndpointTimeout bounds a single call to the recommendation endpoint when the
// caller's context has no deadline.
const DefaultEndpointTimeout = 10 * time.Second

// maxEndpointResponseBytes caps how much of a response body is read.
const maxEndpointResponseBytes = 64 << 10

// endpointResponse is either {recommendation} or {error}.
type endpointResponse struct {
	Recommendation string `json:"recommendation"`
	Error          string `json:"error"`
}

// EndpointClient is a Completer that posts the structured request to a hosted
// recommendation function and reads back {recommendation} or {error}.
type EndpointClient struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewEndpointClient creates an EndpointClient for the configured endpoint URL.
func NewEndpointClient(opts ...Option) (*EndpointClient, error) {
	cfg := applyOpts(opts)
	if cfg.EndpointURL == "" {
		return nil, errors.New("recommendation endpoint URL not set")
	}
	slog.Debug("GenAI NewEndpointClient: endpoint configured", "url", cfg.EndpointURL, "api_key_set", cfg.EndpointAPIKey != "")
	return &EndpointClient{
		url:        cfg.EndpointURL,
		apiKey:     cfg.EndpointAPIKey,
		httpClient: &http.Client{Timeout: DefaultEndpointTimeout},
	}, nil
}

// Complete posts the request and returns the recommendation text.
// Non-2xx statuses and {error} bodies are returned as errors.
func (e *EndpointClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode recommendation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build recommendation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		slog.Error("EndpointClient Complete: request failed", "error", err)
		return "", fmt.Errorf("recommendation request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEndpointResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read recommendation response: %w", err)
	}

	var out endpointResponse
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(out.Error)
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		slog.Warn("EndpointClient Complete: non-2xx response", "status", resp.StatusCode, "error", msg)
		return "", fmt.Errorf("recommendation endpoint returned %d: %s", resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return "", fmt.Errorf("failed to decode recommendation response: %w", decodeErr)
	}
	if out.Error != "" {
		return "", fmt.Errorf("recommendation endpoint error: %s", out.Error)
	}
	text := strings.TrimSpace(out.Recommendation)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
