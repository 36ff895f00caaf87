// Package concierge implements the per-phone-number conversation engine: the state machine
// that binds a guest to a property and the composer that answers free-text questions.
package concierge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/ConciergePipe/internal/intent"
	"github.com/BTreeMap/ConciergePipe/internal/locker"
	"github.com/BTreeMap/ConciergePipe/internal/metrics"
	"github.com/BTreeMap/ConciergePipe/internal/models"
	"github.com/BTreeMap/ConciergePipe/internal/store"
)

// Reply texts.
const (
	AskPropertyCodeReply = "Welcome! Please reply with your property code (the number from your booking confirmation) so I can help with your stay."
	NoCodeReply          = "I didn't catch a property code. Please reply with the number from your booking confirmation."
	ClarifyYesNoReply    = "Sorry, I didn't get that. Please reply Y if that's your property or N if it isn't."
	NegativeReply        = "No problem. Please reply with your correct property code."
	ResetReply           = "Okay, let's start over. Please reply with your property code."
	ApologyReply         = "Sorry, something went wrong on our end. Please try again in a moment."
	CapabilitySummary    = "Ask me about WiFi, parking, check-in/out, house rules or places to eat and explore nearby."
)

var (
	firstDigits   = regexp.MustCompile(`\d+`)
	resetCommands = map[string]bool{"reset": true, "restart": true, "start over": true}
	affirmatives  = map[string]bool{
		"y": true, "yes": true, "yeah": true, "yea": true, "yep": true, "yup": true, "correct": true,
		"ok": true, "okay": true, "sure": true, "right": true, "that's it": true, "thats it": true,
		"that's right": true, "yes it is": true, "confirmed": true, "confirm": true, "si": true,
	}
	negatives = map[string]bool{
		"n": true, "no": true, "nope": true, "nah": true, "wrong": true, "incorrect": true,
		"not right": true, "no it isn't": true, "no it's not": true, "not it": true, "not mine": true,
	}
)

// Result is the outcome of handling one inbound message.
type Result struct {
	Reply        string
	StateChanged bool
	From         models.ConversationState
	To           models.ConversationState
}

// Machine is the conversation state machine. It holds no per-conversation state; everything
// is read from and written back to the store under a per-phone-number lock.
type Machine struct {
	store        store.Store
	locker       locker.Locker
	router       *intent.Router
	detector     *intent.Detector
	composer     *Composer
	personalizer Personalizer
	metrics      *metrics.Metrics
	now          func() time.Time
	newID        func() string
}

// Option configures a Machine.
type Option func(*Machine)

// WithLocker replaces the default in-process locker.
func WithLocker(l locker.Locker) Option {
	return func(m *Machine) { m.locker = l }
}

// WithPersonalizer replaces the StandardPersonalizer.
func WithPersonalizer(p Personalizer) Option {
	return func(m *Machine) { m.personalizer = p }
}

// WithRouter replaces the default intent router.
func WithRouter(r *intent.Router) Option {
	return func(m *Machine) { m.router = r }
}

// WithMetrics records transitions and intents.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Machine) { m.metrics = mt }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithIDGenerator overrides uuid generation for conversation and message ids.
func WithIDGenerator(gen func() string) Option {
	return func(m *Machine) { m.newID = gen }
}

// NewMachine creates a Machine over st. A nil composer always yields the fallback reply.
func NewMachine(st store.Store, composer *Composer, opts ...Option) *Machine {
	m := &Machine{
		store:    st,
		composer: composer,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.locker == nil {
		m.locker = locker.NewLocalLocker(locker.DefaultTimeout)
	}
	if m.router == nil {
		m.router = intent.NewDefaultRouter()
	}
	categorizer := intent.NewCategorizer(m.router)
	if m.personalizer == nil {
		m.personalizer = NewStandardPersonalizer(categorizer)
	}
	m.detector = intent.NewDetector(categorizer)
	if m.composer == nil {
		m.composer = NewComposer(nil, WithCategorizer(categorizer))
	}
	return m
}

// Handle processes one inbound message from phoneNumber and returns the reply to send.
// Store and lock failures return ApologyReply together with the error; the reply is
// still meant to be sent.
func (m *Machine) Handle(ctx context.Context, phoneNumber, text string) (Result, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return Result{}, models.ErrEmptyPhoneNumber
	}

	unlock, err := m.locker.Lock(ctx, phoneNumber)
	if err != nil {
		slog.Error("Machine.Handle: failed to acquire conversation lock", "phone", phoneNumber, "error", err)
		return Result{Reply: ApologyReply}, fmt.Errorf("lock conversation %s: %w", phoneNumber, err)
	}
	defer unlock()

	now := m.now()
	conv, err := m.store.GetConversation(ctx, phoneNumber)
	if err != nil {
		slog.Error("Machine.Handle: failed to load conversation", "phone", phoneNumber, "error", err)
		return Result{Reply: ApologyReply}, err
	}
	if conv == nil {
		conv = models.NewConversation(m.newID(), phoneNumber, now)
		slog.Info("Machine.Handle: new conversation", "phone", phoneNumber, "conversation_id", conv.ID)
	}

	if err := m.appendMessage(ctx, conv.ID, models.RoleUser, text, now); err != nil {
		return Result{Reply: ApologyReply}, err
	}

	from := conv.State
	reply, err := m.dispatch(ctx, conv, text, now)
	if err != nil {
		slog.Error("Machine.Handle: failed to process message", "phone", phoneNumber, "state", from, "error", err)
		return Result{Reply: ApologyReply, From: from, To: from}, err
	}

	if from.IsValid() && !models.IsAllowedTransition(from, conv.State) {
		slog.Warn("Machine.Handle: unexpected transition", "phone", phoneNumber, "from", from, "to", conv.State)
	}

	conv.LastInteractionAt = now
	conv.UpdatedAt = now
	t := now
	conv.GuestProfile.LastInteractionTime = &t
	if err := conv.Validate(); err != nil {
		return Result{Reply: ApologyReply, From: from, To: from}, fmt.Errorf("invalid conversation after handling: %w", err)
	}
	if err := m.store.UpsertConversation(ctx, conv); err != nil {
		slog.Error("Machine.Handle: failed to save conversation", "phone", phoneNumber, "error", err)
		return Result{Reply: ApologyReply, From: from, To: from}, err
	}
	if from != conv.State {
		m.metrics.StateTransition(string(from), string(conv.State))
		slog.Info("Machine.Handle: state transition", "phone", phoneNumber, "from", from, "to", conv.State)
	}

	if err := m.appendMessage(ctx, conv.ID, models.RoleAssistant, reply, m.now()); err != nil {
		// the state is saved; losing the log entry does not change the reply
		slog.Warn("Machine.Handle: reply not logged", "phone", phoneNumber, "error", err)
	}

	return Result{Reply: reply, StateChanged: from != conv.State, From: from, To: conv.State}, nil
}

func (m *Machine) appendMessage(ctx context.Context, conversationID string, role models.Role, content string, at time.Time) error {
	err := m.store.AppendMessage(ctx, models.ConversationMessage{
		ID:             m.newID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Timestamp:      at,
	})
	if err != nil {
		slog.Error("Machine.appendMessage: failed", "conversation_id", conversationID, "role", role, "error", err)
	}
	return err
}

func (m *Machine) dispatch(ctx context.Context, conv *models.Conversation, text string, now time.Time) (string, error) {
	normalized := intent.Normalize(text)
	if resetCommands[strings.Trim(normalized, " .!")] {
		conv.Reset()
		return ResetReply, nil
	}

	if !conv.State.IsValid() {
		slog.Warn("Machine.dispatch: unknown state, resetting", "phone", conv.PhoneNumber, "state", conv.State)
		conv.Reset()
	}

	if conv.GuestName == nil {
		if name := m.personalizer.ExtractName(text); name != "" {
			conv.GuestName = models.StringPtr(name)
		}
	}

	switch conv.State {
	case models.StateAwaitingPropertyID:
		return m.awaitingPropertyID(ctx, conv, text)
	case models.StateAwaitingConfirmation:
		return m.awaitingConfirmation(ctx, conv, normalized, now)
	default:
		return m.confirmed(ctx, conv, text)
	}
}

func (m *Machine) awaitingPropertyID(ctx context.Context, conv *models.Conversation, text string) (string, error) {
	code := firstDigits.FindString(text)
	if code == "" {
		if conv.GuestName != nil {
			return fmt.Sprintf("Hi %s! %s", conv.Name(), AskPropertyCodeReply), nil
		}
		return AskPropertyCodeReply, nil
	}

	prop, err := m.store.GetPropertyByCode(ctx, code)
	if err != nil {
		return "", fmt.Errorf("lookup property %s: %w", code, err)
	}
	if prop == nil {
		slog.Info("Machine.awaitingPropertyID: property not found", "phone", conv.PhoneNumber, "code", code)
		return fmt.Sprintf("Sorry, I couldn't find a property with code %s. Please double-check the number and try again.", code), nil
	}

	conv.PropertyID = models.StringPtr(prop.ID)
	conv.State = models.StateAwaitingConfirmation
	if prop.Address != "" {
		return fmt.Sprintf("Are you staying at %s, %s? Reply Y or N.", prop.Name, prop.Address), nil
	}
	return fmt.Sprintf("Are you staying at %s? Reply Y or N.", prop.Name), nil
}

func (m *Machine) awaitingConfirmation(ctx context.Context, conv *models.Conversation, normalized string, now time.Time) (string, error) {
	answer := strings.Trim(normalized, " .!")
	switch {
	case affirmatives[answer]:
		prop, err := m.boundProperty(ctx, conv)
		if err != nil {
			return "", err
		}
		if prop == nil {
			conv.Reset()
			return NoCodeReply, nil
		}
		conv.PropertyConfirmed = true
		conv.State = models.StateConfirmed
		conv.Timezone = TimezoneForAddress(prop.Address)
		return m.personalizer.BuildGreeting(conv, prop, now) + " " + CapabilitySummary, nil

	case negatives[answer]:
		conv.PropertyID = nil
		conv.PropertyConfirmed = false
		conv.State = models.StateAwaitingPropertyID
		return NegativeReply, nil

	default:
		return ClarifyYesNoReply, nil
	}
}

func (m *Machine) confirmed(ctx context.Context, conv *models.Conversation, text string) (string, error) {
	prop, err := m.boundProperty(ctx, conv)
	if err != nil {
		return "", err
	}
	if prop == nil {
		slog.Warn("Machine.confirmed: bound property disappeared, resetting", "phone", conv.PhoneNumber)
		conv.Reset()
		return ResetReply, nil
	}

	category := m.router.Classify(text)
	m.metrics.Intent(string(category))

	if topic := m.personalizer.Categorize(text); topic != "" {
		conv.GuestProfile.LastActivity = topic
		if !category.HasCannedReply() {
			conv.GuestProfile.AddInterest(topic)
		}
	}

	if category == intent.CategoryGreeting {
		if name := conv.Name(); name != "" {
			return fmt.Sprintf("Hi %s! How can I help with your stay at %s?", name, prop.Name), nil
		}
	}
	// lastRequestCategory stays paired with lastRecommendationText, so canned answers leave both alone
	if reply, ok := intent.CannedReply(category, prop); ok {
		return reply, nil
	}

	followUp := m.detector.IsFollowUp(text, conv)
	return m.composer.Compose(ctx, prop, conv, text, followUp), nil
}

func (m *Machine) boundProperty(ctx context.Context, conv *models.Conversation) (*models.Property, error) {
	if conv.PropertyID == nil {
		return nil, nil
	}
	prop, err := m.store.GetPropertyByID(ctx, *conv.PropertyID)
	if err != nil {
		return nil, fmt.Errorf("load property %s: %w", *conv.PropertyID, err)
	}
	return prop, nil
}

// IsLockTimeout reports whether err came from waiting on a busy conversation.
func IsLockTimeout(err error) bool {
	return errors.Is(err, locker.ErrLockTimeout)
}
