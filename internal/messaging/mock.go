package messaging

import (
	"context"
	"sync"
)

// SentMessage is a message recorded by MockSender.
type SentMessage struct {
	From string
	To   string
	Body string
}

// MockSender records sends instead of delivering them. Err, when set, is returned by Send.
type MockSender struct {
	mu   sync.Mutex
	sent []SentMessage
	Err  error
}

// NewMockSender creates an empty MockSender.
func NewMockSender() *MockSender {
	return &MockSender{}
}

func (m *MockSender) Provider() string { return "mock" }

func (m *MockSender) Send(ctx context.Context, from, to, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, SentMessage{From: from, To: to, Body: text})
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *MockSender) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}
