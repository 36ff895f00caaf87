package concierge

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/BTreeMap/ConciergePipe/internal/intent"
	"github.com/BTreeMap/ConciergePipe/internal/models"
)

// Personalizer is the optional strategy that tailors greetings and tracks guest context.
type Personalizer interface {
	// BuildGreeting returns the welcome line sent when a property is confirmed.
	BuildGreeting(conv *models.Conversation, prop *models.Property, now time.Time) string
	// ExtractName returns a self-introduced first name, or "".
	ExtractName(message string) string
	// Categorize returns the request topic of message, or "".
	Categorize(message string) string
}

var namePattern = regexp.MustCompile(`(?:^|[\s,.!])(?:my name is|i'?m|i am|this is|call me)\s+([a-z][a-z'-]{1,20})\b`)

// notNames are words that commonly follow "I'm" without being a name.
var notNames = map[string]bool{
	"here": true, "good": true, "fine": true, "ok": true, "okay": true, "great": true, "looking": true,
	"trying": true, "wondering": true, "not": true, "so": true, "just": true, "at": true, "in": true,
	"staying": true, "checking": true, "going": true, "hungry": true, "lost": true, "locked": true,
	"on": true, "out": true, "from": true, "a": true, "the": true, "all": true, "back": true, "done": true,
	"interested": true, "curious": true, "sorry": true, "thinking": true, "heading": true, "still": true,
	"also": true, "having": true, "outside": true, "almost": true, "arriving": true, "planning": true,
	"open": true, "closed": true, "far": true, "close": true, "there": true, "that": true, "what": true,
	"too": true, "very": true, "really": true, "new": true, "sure": true,
}

// StandardPersonalizer greets by time of day and name and learns names from introductions.
type StandardPersonalizer struct {
	categorizer *intent.Categorizer
}

// NewStandardPersonalizer creates the default Personalizer.
func NewStandardPersonalizer(categorizer *intent.Categorizer) *StandardPersonalizer {
	if categorizer == nil {
		categorizer = intent.NewCategorizer(nil)
	}
	return &StandardPersonalizer{categorizer: categorizer}
}

func (p *StandardPersonalizer) BuildGreeting(conv *models.Conversation, prop *models.Property, now time.Time) string {
	local := now.In(conv.Location())
	var opener string
	switch BucketFor(local) {
	case Morning:
		opener = "Good morning"
	case Afternoon:
		opener = "Good afternoon"
	case Evening:
		opener = "Good evening"
	default:
		opener = "Hi"
	}
	if name := conv.Name(); name != "" {
		opener += ", " + name
	}
	return fmt.Sprintf("%s! Welcome to %s.", opener, prop.Name)
}

func (p *StandardPersonalizer) ExtractName(message string) string {
	m := namePattern.FindStringSubmatch(intent.Normalize(message))
	if m == nil || notNames[m[1]] {
		return ""
	}
	name := strings.Trim(m[1], "'-")
	if len(name) < 2 {
		return ""
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func (p *StandardPersonalizer) Categorize(message string) string {
	return p.categorizer.Categorize(message)
}

// PlainPersonalizer uses a fixed greeting and never learns names.
type PlainPersonalizer struct {
	categorizer *intent.Categorizer
}

// NewPlainPersonalizer creates a Personalizer without name or time-of-day handling.
func NewPlainPersonalizer(categorizer *intent.Categorizer) *PlainPersonalizer {
	if categorizer == nil {
		categorizer = intent.NewCategorizer(nil)
	}
	return &PlainPersonalizer{categorizer: categorizer}
}

func (p *PlainPersonalizer) BuildGreeting(conv *models.Conversation, prop *models.Property, now time.Time) string {
	return fmt.Sprintf("Welcome to %s!", prop.Name)
}

func (p *PlainPersonalizer) ExtractName(string) string { return "" }

func (p *PlainPersonalizer) Categorize(message string) string {
	return p.categorizer.Categorize(message)
}
