package intent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BTreeMap/ConciergePipe/internal/models"
)

func conversationWith(lastText, lastCategory string) *models.Conversation {
	c := models.NewConversation("c1", "+15551234567", time.Now())
	c.LastRecommendationText = models.StringPtr(lastText)
	c.LastRequestCategory = models.StringPtr(lastCategory)
	return c
}

func TestIsFollowUp(t *testing.T) {
	d := NewDetector(nil)
	coffee := conversationWith("Try Kona Coffee (0.3 mi) or Morning Brew (1.2 mi).", "coffee")

	tests := []struct {
		name    string
		message string
		conv    *models.Conversation
		want    bool
	}{
		{"referential phrase same topic", "can I walk to either of those?", coffee, true},
		{"referential phrase no topic", "how far is the first one", coffee, true},
		{"referential phrase names same topic", "how close is the coffee place", coffee, true},
		{"different topic with referential phrase", "how far is the closest breakfast place", coffee, false},
		{"no referential phrase", "thanks", coffee, false},
		{"no previous recommendation", "how far is it", models.NewConversation("c2", "+15550000000", time.Now()), false},
		{"nil conversation", "how far is it", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.IsFollowUp(tt.message, tt.conv))
		})
	}
}

func TestIsFollowUpCategoryGate(t *testing.T) {
	d := NewDetector(nil)
	// every referential phrase is rejected when the message switches topic
	conv := conversationWith("Lanikai Beach and Kailua Beach", "beach")
	for _, msg := range []string{
		"how far are those places for dinner",
		"which one has good coffee",
		"is it walking distance to a bar",
	} {
		assert.False(t, d.IsFollowUp(msg, conv), msg)
	}
}
