package intent

import (
	"regexp"

	"github.com/BTreeMap/ConciergePipe/internal/models"
)

// referentialPhrases mark a message as asking about places already recommended.
var referentialPhrases = compile(
	`\bwalk to\b`, `\bwalkable\b`, `\bwalking distance\b`, `\bhow far\b`, `\bhow close\b`, `\bclose is\b`,
	`\bfar is\b`, `\bthose places\b`, `\bthese places\b`, `\beither of those\b`, `\beither one\b`,
	`\bany of those\b`, `\bwhich one\b`, `\bthe (first|second|third|last) one\b`, `\bthat place\b`,
	`\bthat one\b`, `\bare they\b`, `\bis it open\b`, `\bare they open\b`, `\bmore about\b`,
	`\bof those\b`, `\bfrom here\b`,
)

// Detector decides whether a message continues the previous recommendation topic.
type Detector struct {
	categorizer *Categorizer
	phrases     []*regexp.Regexp
}

// NewDetector creates a Detector that classifies messages with categorizer.
func NewDetector(categorizer *Categorizer) *Detector {
	if categorizer == nil {
		categorizer = NewCategorizer(nil)
	}
	return &Detector{categorizer: categorizer, phrases: referentialPhrases}
}

// IsFollowUp reports whether message is a clarifying question about the conversation's last
// recommendation. It is false when there is no previous recommendation or when the message
// names a topic different from the last request category. A message naming no topic keeps
// the previous category.
func (d *Detector) IsFollowUp(message string, conv *models.Conversation) bool {
	if conv == nil || conv.LastRecommendation() == "" {
		return false
	}
	if topic := d.categorizer.Categorize(message); topic != "" && topic != conv.LastCategory() {
		return false
	}
	text := Normalize(message)
	for _, p := range d.phrases {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
