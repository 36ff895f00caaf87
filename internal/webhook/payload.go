// Package webhook receives provider callbacks for inbound SMS and answers them through the
// conversation engine.
package webhook

import (
	"encoding/json"
	"strings"
)

// Inbound event types and direction handled by the JSON ingress.
const (
	EventMessageCreated  = "message.created"
	EventMessageReceived = "message.received"
	DirectionIncoming    = "incoming"
)

// Event is the provider's webhook envelope.
type Event struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`
	Data struct {
		Object MessageObject `json:"object"`
	} `json:"data"`
}

// MessageObject is the message carried by an event.
type MessageObject struct {
	ID        string     `json:"id"`
	Direction string     `json:"direction"`
	From      string     `json:"from"`
	To        Recipients `json:"to"`
	Body      string     `json:"body"`
	Text      string     `json:"text"`
	CreatedAt string     `json:"createdAt"`
}

// Content returns the message text from whichever of body or text is set.
func (m MessageObject) Content() string {
	if strings.TrimSpace(m.Body) != "" {
		return m.Body
	}
	return m.Text
}

// IsInboundMessage reports whether the event is an incoming message the engine should answer.
func (e Event) IsInboundMessage() bool {
	if e.Type != EventMessageCreated && e.Type != EventMessageReceived {
		return false
	}
	return strings.EqualFold(e.Data.Object.Direction, DirectionIncoming)
}

// Recipients accepts both "to": "+1..." and "to": ["+1...", ...].
type Recipients []string

func (r *Recipients) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if single == "" {
			*r = nil
		} else {
			*r = Recipients{single}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*r = many
	return nil
}

// First returns the first recipient or "".
func (r Recipients) First() string {
	if len(r) == 0 {
		return ""
	}
	return r[0]
}
