package concierge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/ConciergePipe/internal/genai"
	"github.com/BTreeMap/ConciergePipe/internal/intent"
	"github.com/BTreeMap/ConciergePipe/internal/metrics"
	"github.com/BTreeMap/ConciergePipe/internal/models"
	"github.com/BTreeMap/ConciergePipe/internal/sms"
)

// DefaultCompletionTimeout bounds one call to the completion backend.
const DefaultCompletionTimeout = 8 * time.Second

// FallbackReply is sent when the completion backend fails or times out.
const FallbackReply = "Sorry, I can't pull up recommendations right now. I can still help with WiFi, parking, or check-in info. Just ask!"

// SystemPrompt is the fixed instruction sent with every recommendation request.
const SystemPrompt = `You are a friendly SMS concierge for a vacation rental.
Answer the guest's question using only the property information provided.
Reply in plain text under 155 characters, with no markdown, lists or emojis.
Name at most two specific places and include the distance when it is known.
If the answer is not in the information provided, say so briefly and suggest contacting the host.`

// Walkability thresholds in miles.
const (
	EasyWalkMiles  = 0.5
	ShortRideMiles = 1.5
)

// PromptInput is everything the composer knows when building a prompt.
type PromptInput struct {
	Property        *models.Property
	GuestName       string
	Interests       []string
	LastActivity    string
	TimeOfDay       TimeOfDay
	DayOfWeek       string
	CheckingOutSoon bool
	Topic           string
	Section         string
	Message         string
	IsFollowUp      bool
	PreviousText    string
}

// BuildPrompt assembles the user prompt. The section of localRecommendations relevant to the
// topic comes first, followed by guest context and the remaining property data.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder
	p := in.Property

	if in.Section != "" {
		fmt.Fprintf(&b, "MOST RELEVANT LOCAL PLACES (%s):\n%s\n\n", in.Topic, in.Section)
	}

	b.WriteString("GUEST CONTEXT:\n")
	if in.GuestName != "" {
		fmt.Fprintf(&b, "- Name: %s\n", in.GuestName)
	}
	if len(in.Interests) > 0 {
		fmt.Fprintf(&b, "- Earlier interests: %s\n", strings.Join(in.Interests, ", "))
	}
	if in.LastActivity != "" {
		fmt.Fprintf(&b, "- Last asked about: %s\n", in.LastActivity)
	}
	fmt.Fprintf(&b, "- Local time: %s, %s\n", in.DayOfWeek, in.TimeOfDay)
	fmt.Fprintf(&b, "- Checking out tomorrow: %t\n", in.CheckingOutSoon)
	b.WriteString("\n")

	if p != nil {
		fmt.Fprintf(&b, "PROPERTY: %s\n", p.Name)
		if p.Address != "" {
			fmt.Fprintf(&b, "Address: %s\n", p.Address)
		}
		if len(p.Amenities) > 0 {
			fmt.Fprintf(&b, "Amenities: %s\n", strings.Join(p.Amenities, ", "))
		}
		if p.KnowledgeBase != "" {
			fmt.Fprintf(&b, "Property notes:\n%s\n", p.KnowledgeBase)
		}
		if p.LocalRecommendations != "" && p.LocalRecommendations != in.Section {
			fmt.Fprintf(&b, "Local recommendations:\n%s\n", p.LocalRecommendations)
		}
		b.WriteString("\n")
	}

	if in.IsFollowUp && in.PreviousText != "" {
		fmt.Fprintf(&b, "YOUR PREVIOUS RECOMMENDATION:\n%s\n\n", in.PreviousText)
		b.WriteString("The guest is asking about the places you already named. Answer only about those places; do not suggest new ones.\n")
		fmt.Fprintf(&b, "Describe how to get there: up to %.1f mi is \"an easy walk\", %.1f to %.1f mi is \"a short ride\", over %.1f mi is \"best by car\".\n\n",
			EasyWalkMiles, EasyWalkMiles, ShortRideMiles, ShortRideMiles)
	}

	fmt.Fprintf(&b, "GUEST MESSAGE: %s", strings.TrimSpace(in.Message))
	return b.String()
}

// Composer produces recommendation replies through a completion backend.
type Composer struct {
	completer   genai.Completer
	backend     string
	timeout     time.Duration
	categorizer *intent.Categorizer
	metrics     *metrics.Metrics
	now         func() time.Time
}

// ComposerOption configures a Composer.
type ComposerOption func(*Composer)

// WithCompletionTimeout overrides DefaultCompletionTimeout.
func WithCompletionTimeout(d time.Duration) ComposerOption {
	return func(c *Composer) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBackendName sets the backend label used in logs and metrics.
func WithBackendName(name string) ComposerOption {
	return func(c *Composer) { c.backend = name }
}

// WithComposerMetrics records completion latency and outcomes.
func WithComposerMetrics(m *metrics.Metrics) ComposerOption {
	return func(c *Composer) { c.metrics = m }
}

// WithComposerClock overrides time.Now.
func WithComposerClock(now func() time.Time) ComposerOption {
	return func(c *Composer) { c.now = now }
}

// WithCategorizer overrides the default topic categorizer.
func WithCategorizer(cat *intent.Categorizer) ComposerOption {
	return func(c *Composer) { c.categorizer = cat }
}

// NewComposer creates a Composer calling completer.
func NewComposer(completer genai.Completer, opts ...ComposerOption) *Composer {
	c := &Composer{
		completer: completer,
		backend:   "default",
		timeout:   DefaultCompletionTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.categorizer == nil {
		c.categorizer = intent.NewCategorizer(nil)
	}
	return c
}

// Compose answers message for conv at prop. On success the answer becomes the conversation's
// last recommendation and category and is returned within one SMS segment. On failure
// FallbackReply is returned and the conversation's last recommendation is left untouched.
func (c *Composer) Compose(ctx context.Context, prop *models.Property, conv *models.Conversation, message string, isFollowUp bool) string {
	topic := c.categorizer.Categorize(message)
	category := topic
	if category == "" {
		category = conv.LastCategory()
	}
	if category == "" {
		category = string(intent.CategoryGeneral)
	}

	now := c.now().In(conv.Location())
	in := PromptInput{
		Property:        prop,
		GuestName:       conv.Name(),
		Interests:       conv.GuestProfile.Interests,
		LastActivity:    conv.GuestProfile.LastActivity,
		TimeOfDay:       BucketFor(now),
		DayOfWeek:       now.Weekday().String(),
		CheckingOutSoon: CheckingOutTomorrow(conv, now),
		Topic:           topic,
		Message:         message,
		IsFollowUp:      isFollowUp,
		PreviousText:    conv.LastRecommendation(),
	}
	if topic != "" && prop != nil {
		in.Section = prop.RecommendationSection(c.categorizer.Headings(topic)...)
	}

	req := genai.CompletionRequest{
		SystemPrompt: SystemPrompt,
		Prompt:       BuildPrompt(in),
		RequestType:  category,
		GuestContext: guestContext(in),
	}
	if isFollowUp {
		req.PreviousRecommendations = conv.LastRecommendation()
	}

	if c.completer == nil {
		slog.Warn("Composer Compose: no completion backend configured")
		return FallbackReply
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	text, err := c.completer.Complete(callCtx, req)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.Completion(c.backend, "error", elapsed)
		slog.Warn("Composer Compose: completion failed, using fallback",
			"backend", c.backend, "phone", conv.PhoneNumber, "category", category, "elapsed", elapsed, "error", err)
		return FallbackReply
	}
	c.metrics.Completion(c.backend, "ok", elapsed)

	reply := sms.EnsureLimit(text)
	conv.LastRecommendationText = models.StringPtr(reply)
	conv.LastRequestCategory = models.StringPtr(category)
	slog.Debug("Composer Compose: completion succeeded",
		"backend", c.backend, "phone", conv.PhoneNumber, "category", category, "follow_up", isFollowUp, "elapsed", elapsed)
	return reply
}

func guestContext(in PromptInput) map[string]string {
	ctx := map[string]string{
		"timeOfDay":       string(in.TimeOfDay),
		"dayOfWeek":       in.DayOfWeek,
		"checkingOutSoon": fmt.Sprintf("%t", in.CheckingOutSoon),
	}
	if in.GuestName != "" {
		ctx["name"] = in.GuestName
	}
	if len(in.Interests) > 0 {
		ctx["interests"] = strings.Join(in.Interests, ",")
	}
	if in.LastActivity != "" {
		ctx["lastActivity"] = in.LastActivity
	}
	if in.Property != nil {
		ctx["propertyName"] = in.Property.Name
		if in.Property.Address != "" {
			ctx["propertyAddress"] = in.Property.Address
		}
	}
	return ctx
}
