package concierge

import (
	"regexp"
	"strings"
	"time"

	"github.com/BTreeMap/ConciergePipe/internal/models"
)

// TimeOfDay is the coarse local time bucket used in greetings and prompts.
type TimeOfDay string

const (
	Morning   TimeOfDay = "morning"
	Afternoon TimeOfDay = "afternoon"
	Evening   TimeOfDay = "evening"
	Night     TimeOfDay = "night"
)

// BucketFor returns the time-of-day bucket of t in its own location.
func BucketFor(t time.Time) TimeOfDay {
	switch h := t.Hour(); {
	case h >= 5 && h < 12:
		return Morning
	case h >= 12 && h < 17:
		return Afternoon
	case h >= 17 && h < 21:
		return Evening
	default:
		return Night
	}
}

type cityZone struct {
	pattern *regexp.Regexp
	zone    string
}

// cityZones is matched in order against the lowercased property address.
var cityZones = []cityZone{
	{regexp.MustCompile(`honolulu|kailua|lanikai|waikiki|kona|maui|lahaina|kauai|hilo|hawaii|,\s*hi\b`), "Pacific/Honolulu"},
	{regexp.MustCompile(`anchorage|juneau|alaska|,\s*ak\b`), "America/Anchorage"},
	{regexp.MustCompile(`phoenix|scottsdale|sedona|tucson|arizona|,\s*az\b`), "America/Phoenix"},
	{regexp.MustCompile(`los angeles|san diego|san francisco|santa monica|palm springs|malibu|lake tahoe|seattle|portland|las vegas|california|,\s*(ca|wa|or|nv)\b`), "America/Los_Angeles"},
	{regexp.MustCompile(`denver|aspen|vail|boulder|salt lake|park city|santa fe|colorado|,\s*(co|ut|nm)\b`), "America/Denver"},
	{regexp.MustCompile(`chicago|austin|dallas|houston|san antonio|nashville|new orleans|gulf shores|texas|,\s*(il|tx|tn|la)\b`), "America/Chicago"},
	{regexp.MustCompile(`new york|brooklyn|boston|miami|orlando|tampa|key west|atlanta|charleston|savannah|myrtle beach|outer banks|washington|florida|,\s*(ny|ma|fl|ga|sc|nc|dc)\b`), "America/New_York"},
	{regexp.MustCompile(`london`), "Europe/London"},
	{regexp.MustCompile(`paris`), "Europe/Paris"},
	{regexp.MustCompile(`cancun|tulum|playa del carmen`), "America/Cancun"},
	{regexp.MustCompile(`mexico city|puerto vallarta`), "America/Mexico_City"},
}

// TimezoneForAddress derives an IANA zone from known city names in address, defaulting to UTC.
func TimezoneForAddress(address string) string {
	lower := strings.ToLower(address)
	if lower == "" {
		return models.DefaultTimezone
	}
	for _, cz := range cityZones {
		if cz.pattern.MatchString(lower) {
			return cz.zone
		}
	}
	return models.DefaultTimezone
}

// CheckingOutTomorrow reports whether conv's check-out date falls on the day after now,
// both evaluated in the conversation's timezone.
func CheckingOutTomorrow(conv *models.Conversation, now time.Time) bool {
	if conv == nil || conv.CheckOutDate == nil {
		return false
	}
	loc := conv.Location()
	local := now.In(loc)
	tomorrow := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	co := conv.CheckOutDate.In(loc)
	return co.Year() == tomorrow.Year() && co.YearDay() == tomorrow.YearDay()
}
