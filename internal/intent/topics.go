package intent

import "regexp"

// Topic is a fine-grained request tag stored as a conversation's last request category
// and as a guest interest tag.
type Topic struct {
	Name     string
	Patterns []*regexp.Regexp
	// Headings are the localRecommendations section headings relevant to the topic.
	Headings []string
}

// defaultTopics is ordered: the first matching topic wins.
var defaultTopics = []Topic{
	{"coffee", compile(`\bcoffee\b`, `\bcafes?\b`, `\bespresso\b`, `\blattes?\b`), []string{"coffee", "cafe"}},
	{"breakfast", compile(`\bbreakfast\b`, `\bbrunch\b`, `\bpancakes?\b`, `\bbakery\b`), []string{"breakfast", "brunch", "restaurant"}},
	{"beach", compile(`\bbeach(es)?\b`, `\bsnorkel(ing)?\b`, `\bsurf(ing)?\b`, `\bswim(ming)?\b`), []string{"beach"}},
	{"bar", compile(`\bbars?\b`, `\bdrinks?\b`, `\bcocktails?\b`, `\bbeer\b`, `\bwine\b`, `\bnightlife\b`, `\bhappy hour\b`), []string{"bar", "nightlife", "drink"}},
	{"restaurant", compile(`\brestaurants?\b`, `\bdinner\b`, `\blunch\b`, `\beat\b`, `\bfood\b`, `\bdining\b`, `\bsushi\b`, `\bpizza\b`, `\btacos?\b`, `\bseafood\b`), []string{"restaurant", "dining", "food"}},
	{"activity", compile(`\bthings to do\b`, `\bactivit(y|ies)\b`, `\bhik(e|es|ing)\b`, `\bmuseums?\b`, `\btours?\b`, `\bkayak(ing)?\b`, `\battractions?\b`), []string{"activit", "things to do", "attraction", "hike"}},
	{"shopping", compile(`\bshopping\b`, `\bgrocer(y|ies)\b`, `\bsupermarket\b`, `\bmarkets?\b`, `\bpharmacy\b`), []string{"shop", "grocer", "market"}},
	{"directions", compile(`\bdirections?\b`, `\bhow (do|can) i get to\b`, `\bairport\b`, `\bbus\b`, `\btaxi\b`), []string{"direction", "transport", "getting around"}},
}

// Categorizer maps a message to a fine-grained topic tag.
type Categorizer struct {
	topics []Topic
	router *Router
}

// NewCategorizer creates a Categorizer backed by router for non-recommendation intents.
func NewCategorizer(router *Router) *Categorizer {
	if router == nil {
		router = NewDefaultRouter()
	}
	return &Categorizer{topics: defaultTopics, router: router}
}

// Categorize returns the topic tag for message. Recommendation-style messages map to a
// topic such as "coffee" or "beach"; canned intents map to their category name ("wifi").
// It returns an empty string when the message names no topic at all.
func (c *Categorizer) Categorize(message string) string {
	text := Normalize(message)
	if text == "" {
		return ""
	}
	if cat := c.router.Classify(text); cat.HasCannedReply() && cat != CategoryGreeting {
		return string(cat)
	}
	for _, t := range c.topics {
		for _, p := range t.Patterns {
			if p.MatchString(text) {
				return t.Name
			}
		}
	}
	return ""
}

// Headings returns the localRecommendations headings relevant to topic.
func (c *Categorizer) Headings(topic string) []string {
	for _, t := range c.topics {
		if t.Name == topic {
			return t.Headings
		}
	}
	return nil
}
