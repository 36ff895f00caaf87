package models

// ConversationState is the position of a phone number in the concierge flow.
type ConversationState string

const (
	// StateAwaitingPropertyID waits for the guest to send a property code.
	StateAwaitingPropertyID ConversationState = "awaiting_property_id"
	// StateAwaitingConfirmation waits for a Y/N confirmation of the matched property.
	StateAwaitingConfirmation ConversationState = "awaiting_confirmation"
	// StateConfirmed answers questions about the confirmed property.
	StateConfirmed ConversationState = "confirmed"
)

// IsValid reports whether s is one of the known conversation states.
func (s ConversationState) IsValid() bool {
	switch s {
	case StateAwaitingPropertyID, StateAwaitingConfirmation, StateConfirmed:
		return true
	default:
		return false
	}
}

// StateTransition represents a transition between states in the concierge flow.
type StateTransition struct {
	FromState ConversationState `json:"from_state"`
	ToState   ConversationState `json:"to_state"`
}

// allowedTransitions lists every edge of the concierge flow. Self-loops are always allowed.
var allowedTransitions = map[StateTransition]bool{
	{StateAwaitingPropertyID, StateAwaitingConfirmation}: true,
	{StateAwaitingConfirmation, StateConfirmed}:          true,
	{StateAwaitingConfirmation, StateAwaitingPropertyID}: true,
	// reset
	{StateConfirmed, StateAwaitingPropertyID}: true,
}

// IsAllowedTransition reports whether moving from one state to another follows a defined edge.
func IsAllowedTransition(from, to ConversationState) bool {
	if from == to {
		return true
	}
	return allowedTransitions[StateTransition{FromState: from, ToState: to}]
}
