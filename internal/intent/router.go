// Package intent classifies free-text guest messages into a fixed set of intents.
//
// Classification is a single pass over an ordered table of (category, patterns) rules;
// the first rule with a matching pattern wins, so table order is the precedence order.
package intent

import (
	"regexp"
	"strings"
)

// Category is the classified purpose of an inbound message.
type Category string

const (
	CategoryWifi           Category = "wifi"
	CategoryParking        Category = "parking"
	CategoryAccess         Category = "access"
	CategoryCheckInOut     Category = "checkin"
	CategoryEmergency      Category = "emergency"
	CategoryAmenities      Category = "amenities"
	CategoryHouseRules     Category = "house_rules"
	CategoryGreeting       Category = "greeting"
	CategoryRecommendation Category = "recommendation"
	CategoryGeneral        Category = "general"
)

// HasCannedReply reports whether the category is answered from property fields
// rather than by the recommendation composer.
func (c Category) HasCannedReply() bool {
	switch c {
	case CategoryRecommendation, CategoryGeneral:
		return false
	default:
		return true
	}
}

// Rule binds a category to the patterns that select it.
type Rule struct {
	Category Category
	Patterns []*regexp.Regexp
}

// Matches reports whether any pattern matches the normalized text.
func (r Rule) Matches(text string) bool {
	for _, p := range r.Patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// Router classifies messages with an ordered rule table.
type Router struct {
	rules []Rule
}

// NewRouter creates a Router over rules, evaluated in the given order.
func NewRouter(rules []Rule) *Router {
	return &Router{rules: rules}
}

// NewDefaultRouter creates a Router using DefaultRules.
func NewDefaultRouter() *Router {
	return NewRouter(DefaultRules())
}

// Classify returns the category of the first matching rule, or CategoryGeneral.
func (r *Router) Classify(message string) Category {
	text := Normalize(message)
	if text == "" {
		return CategoryGeneral
	}
	for _, rule := range r.rules {
		if rule.Matches(text) {
			return rule.Category
		}
	}
	return CategoryGeneral
}

// Rules returns a copy of the rule table.
func (r *Router) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Normalize lowercases and trims a message and unifies curly apostrophes.
func Normalize(message string) string {
	text := strings.ToLower(strings.TrimSpace(message))
	text = strings.NewReplacer("’", "'", "‘", "'").Replace(text)
	return text
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// DefaultRules returns the standard precedence table:
// wifi, parking, access, check-in/out, emergency, amenities, house rules, greeting, recommendation.
func DefaultRules() []Rule {
	return []Rule{
		{CategoryWifi, compile(
			`\bwi-?fi\b`, `\binternet\b`, `\bnetwork\b`, `\bwireless\b`, `\brouter\b`,
			`\bwifi password\b`, `\bssid\b`,
		)},
		{CategoryParking, compile(
			`\bparking\b`, `\bpark\b`, `\bgarage\b`, `\bdriveway\b`, `\bwhere (do|can|should) i park\b`,
			`\bcarport\b`,
		)},
		{CategoryAccess, compile(
			`\bdoor code\b`, `\bentry code\b`, `\bgate code\b`, `\block ?box\b`, `\bkeypad\b`,
			`\bkeys?\b`, `\baccess\b`, `\bget in\b`, `\bget inside\b`, `\blocked out\b`, `\bentry\b`,
			`\bunlock\b`,
		)},
		{CategoryCheckInOut, compile(
			`\bcheck[- ]?in\b`, `\bcheck[- ]?out\b`, `\blate checkout\b`, `\bearly arrival\b`,
			`\bwhat time (can|do|should) (i|we) (arrive|leave)\b`, `\bwhen (can|do|should) (i|we) (arrive|leave)\b`,
		)},
		{CategoryEmergency, compile(
			`\bemergency\b`, `\burgent\b`, `\bthere'?s a fire\b`, `\bon fire\b`, `\bfire alarm\b`,
			`\b(smell|see) smoke\b`, `\bpolice\b`, `\bambulance\b`,
			`\bleak(ing)?\b`, `\bflood(ing|ed)?\b`, `\bno power\b`, `\bpower outage\b`, `\bgas smell\b`,
			`\binjur(ed|y)\b`, `\bhelp!`,
		)},
		{CategoryAmenities, compile(
			`\bamenit(y|ies)\b`, `\bpool\b`, `\bhot tub\b`, `\bjacuzzi\b`, `\btowels?\b`, `\bwasher\b`,
			`\bdryer\b`, `\blaundry\b`, `\bgrill\b`, `\bbbq\b`, `\bkitchen\b`, `\bcoffee maker\b`,
			`\biron\b`, `\bhair ?dryer\b`, `\btv\b`, `\bair condition(ing|er)\b`, `\ba/?c\b`,
			`\bbeach (chairs?|towels?|gear)\b`,
		)},
		{CategoryHouseRules, compile(
			`\bhouse rules?\b`, `\brules\b`, `\bpets?\b`, `\bdogs?\b`, `\bsmok(e|ing)\b`, `\bquiet hours\b`,
			`\bpart(y|ies)\b`, `\bvisitors?\b`, `\bextra guests?\b`,
		)},
		{CategoryGreeting, compile(
			`^(hi|hello|hey|hiya|howdy|aloha|yo|good (morning|afternoon|evening)|thanks|thank you|thx)( there| so much)?[\s,!.]*((i'?m|i am|this is|my name is|it'?s) [a-z]+)?[\s,!.]*$`,
			`^(i'?m|i am|this is|my name is) [a-z]+[\s!.]*$`,
		)},
		{CategoryRecommendation, compile(
			`\bbeach(es)?\b`, `\brestaurants?\b`, `\beat\b`, `\bfood\b`, `\bdinner\b`, `\blunch\b`,
			`\bbreakfast\b`, `\bbrunch\b`, `\bcoffee\b`, `\bcafes?\b`, `\bbars?\b`, `\bdrinks?\b`,
			`\bthings to do\b`, `\bactivit(y|ies)\b`, `\bhik(e|es|ing)\b`, `\bmuseums?\b`, `\bshopping\b`,
			`\bgrocer(y|ies)\b`, `\bsupermarket\b`, `\bdirections?\b`, `\bhow (do|can) i get to\b`,
			`\bnearby\b`, `\brecommend`, `\bsuggest`, `\bwhere (can|should) (i|we)\b`, `\bbest\b`,
			`\bsnorkel(ing)?\b`, `\bsurf(ing)?\b`, `\bnightlife\b`, `\bwalk to\b`, `\bhow far\b`,
		)},
	}
}
