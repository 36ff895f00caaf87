package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// DefaultOpenPhoneURL is the provider's send-message endpoint.
const DefaultOpenPhoneURL = "https://api.openphone.com/v1/messages"

// DefaultSendTimeout bounds one outbound HTTP call.
const DefaultSendTimeout = 10 * time.Second

// Opts holds configuration for the HTTP sender.
type Opts struct {
	APIKey     string
	URL        string
	FromNumber string
	HTTPClient *http.Client
}

// Option configures the HTTP sender.
type Option func(*Opts)

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithURL overrides DefaultOpenPhoneURL.
func WithURL(url string) Option {
	return func(o *Opts) { o.URL = url }
}

// WithFromNumber sets the number used when a send has no explicit from.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// WithHTTPClient overrides the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

type sendRequest struct {
	To   []string `json:"to"`
	Text string   `json:"text"`
	From string   `json:"from"`
}

// OpenPhoneSender posts messages to an OpenPhone-style JSON API with bearer auth.
type OpenPhoneSender struct {
	apiKey string
	url    string
	from   string
	client *http.Client
}

// NewOpenPhoneSender creates the sender. The API key falls back to OPENPHONE_API_KEY.
func NewOpenPhoneSender(opts ...Option) (*OpenPhoneSender, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENPHONE_API_KEY")
	}
	if cfg.URL == "" {
		cfg.URL = DefaultOpenPhoneURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultSendTimeout}
	}
	slog.Debug("OpenPhoneSender config loaded", "APIKey_set", cfg.APIKey != "", "url", cfg.URL, "From_set", cfg.FromNumber != "")
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openphone API key must be provided")
	}
	return &OpenPhoneSender{apiKey: cfg.APIKey, url: cfg.URL, from: cfg.FromNumber, client: cfg.HTTPClient}, nil
}

func (s *OpenPhoneSender) Provider() string { return "openphone" }

// Send posts {to:[to], text, from}. Non-2xx responses are returned as ErrSendFailed.
func (s *OpenPhoneSender) Send(ctx context.Context, from, to, text string) error {
	if from == "" {
		from = s.from
	}
	canonicalTo, err := CanonicalizePhone(to)
	if err != nil {
		return err
	}
	body, err := json.Marshal(sendRequest{To: []string{canonicalTo}, Text: text, From: from})
	if err != nil {
		return fmt.Errorf("failed to encode send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Error("OpenPhoneSender Send failed", "to", canonicalTo, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", canonicalTo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		slog.Error("OpenPhoneSender Send rejected", "to", canonicalTo, "status", resp.StatusCode, "body", string(detail))
		return fmt.Errorf("%w: provider returned %d for %s", ErrSendFailed, resp.StatusCode, canonicalTo)
	}
	slog.Debug("OpenPhoneSender message sent", "to", canonicalTo, "status", resp.StatusCode)
	return nil
}
