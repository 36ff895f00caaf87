// Package store provides storage backends for ConciergePipe.
//
// It includes an in-memory store for tests and the simulator, plus SQLite and PostgreSQL
// backends for durable conversation state, the message log and the property directory.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/ConciergePipe/internal/models"
)

// ErrNotFound is returned by operations that require an existing record.
var ErrNotFound = errors.New("record not found")

// DefaultMessageLimit is the number of log entries ListMessages returns when limit <= 0.
const DefaultMessageLimit = 50

// Store is the narrow persistence surface the concierge engine depends on.
// Lookups return (nil, nil) when the record does not exist.
type Store interface {
	GetConversation(ctx context.Context, phoneNumber string) (*models.Conversation, error)
	UpsertConversation(ctx context.Context, conv *models.Conversation) error
	AppendMessage(ctx context.Context, msg models.ConversationMessage) error
	// ListMessages returns up to limit most recent entries, oldest first.
	ListMessages(ctx context.Context, conversationID string, limit int) ([]models.ConversationMessage, error)
	GetPropertyByCode(ctx context.Context, code string) (*models.Property, error)
	GetPropertyByID(ctx context.Context, id string) (*models.Property, error)
	SaveProperty(ctx context.Context, p models.Property) error
	Close() error
}

// InboundLedger records provider message ids of inbound webhook deliveries.
type InboundLedger interface {
	// RecordInbound stores messageID and reports whether it was seen for the first time.
	RecordInbound(ctx context.Context, messageID, phoneNumber string) (bool, error)
	// MarkProcessed stamps the delivery as handled.
	MarkProcessed(ctx context.Context, messageID string) error
}

// InboundRecord is one entry of the inbound delivery ledger.
type InboundRecord struct {
	MessageID   string     `json:"message_id"`
	PhoneNumber string     `json:"phone_number"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// InMemoryStore is a mutex-guarded map-backed Store and InboundLedger.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]models.Conversation
	messages      map[string][]models.ConversationMessage
	properties    map[string]models.Property
	inbound       map[string]InboundRecord
}

var (
	_ Store         = (*InMemoryStore)(nil)
	_ InboundLedger = (*InMemoryStore)(nil)
)

// NewInMemoryStore returns an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: make(map[string]models.Conversation),
		messages:      make(map[string][]models.ConversationMessage),
		properties:    make(map[string]models.Property),
		inbound:       make(map[string]InboundRecord),
	}
}

func (s *InMemoryStore) GetConversation(ctx context.Context, phoneNumber string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[phoneNumber]
	if !ok {
		return nil, nil
	}
	out := cloneConversation(c)
	return &out, nil
}

func (s *InMemoryStore) UpsertConversation(ctx context.Context, conv *models.Conversation) error {
	if conv == nil || conv.PhoneNumber == "" {
		return models.ErrEmptyPhoneNumber
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[conv.PhoneNumber] = cloneConversation(*conv)
	return nil
}

func (s *InMemoryStore) AppendMessage(ctx context.Context, msg models.ConversationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], msg)
	return nil
}

func (s *InMemoryStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.ConversationMessage, error) {
	if limit <= 0 {
		limit = DefaultMessageLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.messages[conversationID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]models.ConversationMessage, len(all))
	copy(out, all)
	return out, nil
}

func (s *InMemoryStore) GetPropertyByCode(ctx context.Context, code string) (*models.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.properties {
		if p.Code == code {
			out := p
			return &out, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) GetPropertyByID(ctx context.Context, id string) (*models.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.properties[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *InMemoryStore) SaveProperty(ctx context.Context, p models.Property) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.properties {
		if existing.Code == p.Code && id != p.ID {
			delete(s.properties, id)
		}
	}
	s.properties[p.ID] = p
	return nil
}

// Properties returns every stored property ordered by code.
func (s *InMemoryStore) Properties() []models.Property {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Property, 0, len(s.properties))
	for _, p := range s.properties {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (s *InMemoryStore) RecordInbound(ctx context.Context, messageID, phoneNumber string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, seen := s.inbound[messageID]; seen {
		return false, nil
	}
	s.inbound[messageID] = InboundRecord{MessageID: messageID, PhoneNumber: phoneNumber, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(ctx context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.inbound[messageID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	rec.ProcessedAt = &now
	s.inbound[messageID] = rec
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

// cloneConversation copies the slice and pointer fields that callers might mutate in place.
func cloneConversation(c models.Conversation) models.Conversation {
	if c.GuestProfile.Interests != nil {
		c.GuestProfile.Interests = append([]string(nil), c.GuestProfile.Interests...)
	}
	if c.GuestProfile.LastInteractionTime != nil {
		t := *c.GuestProfile.LastInteractionTime
		c.GuestProfile.LastInteractionTime = &t
	}
	if c.CheckOutDate != nil {
		t := *c.CheckOutDate
		c.CheckOutDate = &t
	}
	return c
}
