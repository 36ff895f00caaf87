package models

import (
	"strings"
	"time"
)

// DefaultTimezone is used when no timezone can be derived for a conversation.
const DefaultTimezone = "UTC"

// MaxInterestTags bounds the number of recent interest tags kept on a guest profile.
const MaxInterestTags = 5

// Role identifies the author of a conversation log entry.
type Role string

const (
	// RoleUser marks a message sent by the guest.
	RoleUser Role = "user"
	// RoleAssistant marks a reply sent by the concierge.
	RoleAssistant Role = "assistant"
)

// GuestProfile holds cross-message memory about a guest.
type GuestProfile struct {
	Interests           []string   `json:"interests,omitempty"`
	LastActivity        string     `json:"last_activity,omitempty"`
	LastInteractionTime *time.Time `json:"last_interaction_time,omitempty"`
}

// AddInterest records tag as the most recent interest, keeping at most MaxInterestTags unique tags.
func (p *GuestProfile) AddInterest(tag string) {
	tag = strings.TrimSpace(strings.ToLower(tag))
	if tag == "" {
		return
	}
	kept := make([]string, 0, MaxInterestTags)
	for _, existing := range p.Interests {
		if existing != tag {
			kept = append(kept, existing)
		}
	}
	kept = append(kept, tag)
	if len(kept) > MaxInterestTags {
		kept = kept[len(kept)-MaxInterestTags:]
	}
	p.Interests = kept
}

// IsEmpty reports whether the profile carries no data.
func (p GuestProfile) IsEmpty() bool {
	return len(p.Interests) == 0 && p.LastActivity == "" && p.LastInteractionTime == nil
}

// Conversation is the durable per-phone-number state record.
type Conversation struct {
	ID                     string            `json:"id"`
	PhoneNumber            string            `json:"phone_number"`
	State                  ConversationState `json:"state"`
	PropertyID             *string           `json:"property_id,omitempty"`
	PropertyConfirmed      bool              `json:"property_confirmed"`
	GuestName              *string           `json:"guest_name,omitempty"`
	Timezone               string            `json:"timezone"`
	GuestProfile           GuestProfile      `json:"guest_profile"`
	LastRecommendationText *string           `json:"last_recommendation_text,omitempty"`
	LastRequestCategory    *string           `json:"last_request_category,omitempty"`
	CheckOutDate           *time.Time        `json:"check_out_date,omitempty"`
	LastInteractionAt      time.Time         `json:"last_interaction_at"`
	CreatedAt              time.Time         `json:"created_at"`
	UpdatedAt              time.Time         `json:"updated_at"`
}

// NewConversation returns a conversation in the initial state for phoneNumber.
func NewConversation(id, phoneNumber string, now time.Time) *Conversation {
	return &Conversation{
		ID:                id,
		PhoneNumber:       phoneNumber,
		State:             StateAwaitingPropertyID,
		Timezone:          DefaultTimezone,
		LastInteractionAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Reset returns the conversation to the initial state, clearing the property binding and
// every piece of guest context. Identity, stay dates and timestamps are kept.
func (c *Conversation) Reset() {
	c.State = StateAwaitingPropertyID
	c.PropertyID = nil
	c.PropertyConfirmed = false
	c.GuestName = nil
	c.Timezone = DefaultTimezone
	c.GuestProfile = GuestProfile{}
	c.LastRecommendationText = nil
	c.LastRequestCategory = nil
}

// Validate checks the structural invariants of a conversation record:
// propertyConfirmed implies the Confirmed state, which implies a bound property.
func (c *Conversation) Validate() error {
	if c.PhoneNumber == "" {
		return ErrEmptyPhoneNumber
	}
	if !c.State.IsValid() {
		return ErrInvalidState
	}
	if c.PropertyConfirmed && c.State != StateConfirmed {
		return ErrInvalidState
	}
	if c.State == StateConfirmed && (c.PropertyID == nil || *c.PropertyID == "") {
		return ErrConfirmedWithoutRef
	}
	return nil
}

// Name returns the guest name or an empty string.
func (c *Conversation) Name() string {
	if c.GuestName == nil {
		return ""
	}
	return *c.GuestName
}

// LastRecommendation returns the most recent composed answer or an empty string.
func (c *Conversation) LastRecommendation() string {
	if c.LastRecommendationText == nil {
		return ""
	}
	return *c.LastRecommendationText
}

// LastCategory returns the most recent request category or an empty string.
func (c *Conversation) LastCategory() string {
	if c.LastRequestCategory == nil {
		return ""
	}
	return *c.LastRequestCategory
}

// Location resolves the conversation timezone, falling back to UTC.
func (c *Conversation) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ConversationMessage is an append-only conversation log entry.
type ConversationMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
