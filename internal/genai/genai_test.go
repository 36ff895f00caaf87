package genai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/openai/openai-go"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp       openai.ChatCompletion
	err        error
	lastParams openai.ChatCompletionNewParams
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	m.lastParams = params
	return m.resp, m.err
}

func TestComplete_Success(t *testing.T) {
	// Prepare a mock response with one choice
	mock := &mockChatService{resp: openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "  Try Lanikai Beach  "}},
		},
	}}
	client := &Client{chat: mock, model: "test-model", temperature: 0.5, maxCompletionTokens: 100}
	out, err := client.Complete(context.Background(), CompletionRequest{SystemPrompt: "system prompt", Prompt: "user prompt"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Try Lanikai Beach" {
		t.Errorf("expected trimmed content, got '%s'", out)
	}
	if len(mock.lastParams.Messages) != 2 {
		t.Errorf("expected system and user messages, got %d", len(mock.lastParams.Messages))
	}
	if string(mock.lastParams.Model) != "test-model" {
		t.Errorf("expected model test-model, got %s", mock.lastParams.Model)
	}
}

func TestComplete_NoSystemPrompt(t *testing.T) {
	mock := &mockChatService{resp: openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "ok"}}},
	}}
	client := &Client{chat: mock, model: "test-model"}
	if _, err := client.Complete(context.Background(), CompletionRequest{Prompt: "usr"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.lastParams.Messages) != 1 {
		t.Errorf("expected only the user message, got %d", len(mock.lastParams.Messages))
	}
}

func TestComplete_ServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}, model: "m"}
	_, err := client.Complete(context.Background(), CompletionRequest{Prompt: "usr"})
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestComplete_NoChoices(t *testing.T) {
	// Empty choices slice
	mockResp := openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{}}
	client := &Client{chat: &mockChatService{resp: mockResp}, model: "m"}
	_, err := client.Complete(context.Background(), CompletionRequest{Prompt: "usr"})
	if err != ErrNoChoicesReturned {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestComplete_EmptyContent(t *testing.T) {
	mockResp := openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "   "}}}}
	client := &Client{chat: &mockChatService{resp: mockResp}, model: "m"}
	_, err := client.Complete(context.Background(), CompletionRequest{Prompt: "usr"})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("expected empty completion error, got %v", err)
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewClient()
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected missing key error, got %v", err)
	}
}

func TestNewClient_WithKey(t *testing.T) {
	key := "test-key"
	cli, err := NewClient(WithAPIKey(key), WithModel("gpt-4o"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli == nil {
		t.Fatal("expected client instance, got nil")
	}
	if cli.model != "gpt-4o" {
		t.Errorf("expected model gpt-4o, got %s", cli.model)
	}
}

func TestComplete_UpstreamFailureIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	cli, err := NewClient(WithAPIKey("k"), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := cli.Complete(context.Background(), CompletionRequest{Prompt: "beach?"}); err == nil {
		t.Fatal("expected error from failing upstream")
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("expected exactly 1 upstream request, got %d", got)
	}
}
