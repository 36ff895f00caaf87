package genai

import (
	"context"
	"errors"
	"testing"

	gemini "google.golang.org/genai"
)

type mockGenerator struct {
	resp       *gemini.GenerateContentResponse
	err        error
	lastConfig *gemini.GenerateContentConfig
	lastModel  string
}

func (m *mockGenerator) GenerateContent(ctx context.Context, model string, contents []*gemini.Content, config *gemini.GenerateContentConfig) (*gemini.GenerateContentResponse, error) {
	m.lastModel = model
	m.lastConfig = config
	return m.resp, m.err
}

func textResponse(text string) *gemini.GenerateContentResponse {
	return &gemini.GenerateContentResponse{
		Candidates: []*gemini.Candidate{
			{Content: &gemini.Content{Role: gemini.RoleModel, Parts: []*gemini.Part{{Text: text}}}},
		},
	}
}

func TestGeminiComplete_Success(t *testing.T) {
	mock := &mockGenerator{resp: textResponse("Kona Coffee is 0.3 mi away.")}
	client := &GeminiClient{models: mock, model: "gemini-test", temperature: 0.4, maxOutputTokens: 200}

	out, err := client.Complete(context.Background(), CompletionRequest{SystemPrompt: "be brief", Prompt: "coffee?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Kona Coffee is 0.3 mi away." {
		t.Errorf("unexpected output %q", out)
	}
	if mock.lastModel != "gemini-test" {
		t.Errorf("expected model gemini-test, got %s", mock.lastModel)
	}
	if mock.lastConfig.SystemInstruction == nil {
		t.Error("expected system instruction to be set")
	}
	if mock.lastConfig.MaxOutputTokens != 200 {
		t.Errorf("expected max output tokens 200, got %d", mock.lastConfig.MaxOutputTokens)
	}
}

func TestGeminiComplete_Errors(t *testing.T) {
	client := &GeminiClient{models: &mockGenerator{err: errors.New("quota exceeded")}, model: "m"}
	if _, err := client.Complete(context.Background(), CompletionRequest{Prompt: "x"}); err == nil {
		t.Error("expected error from backend")
	}

	client = &GeminiClient{models: &mockGenerator{resp: &gemini.GenerateContentResponse{}}, model: "m"}
	if _, err := client.Complete(context.Background(), CompletionRequest{Prompt: "x"}); !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected no choices error, got %v", err)
	}
}

func TestNewGeminiClient_NoKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	if _, err := NewGeminiClient(context.Background()); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected missing key error, got %v", err)
	}
}
