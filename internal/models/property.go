package models

import "strings"

// Property is the rental unit a confirmed conversation is bound to.
// It is owned by the management UI; the concierge only reads it.
type Property struct {
	ID                   string   `json:"id"`
	Code                 string   `json:"code"`
	Name                 string   `json:"name"`
	Address              string   `json:"address,omitempty"`
	CheckInTime          string   `json:"check_in_time,omitempty"`
	CheckOutTime         string   `json:"check_out_time,omitempty"`
	WifiName             string   `json:"wifi_name,omitempty"`
	WifiPassword         string   `json:"wifi_password,omitempty"`
	ParkingInstructions  string   `json:"parking_instructions,omitempty"`
	AccessInstructions   string   `json:"access_instructions,omitempty"`
	EmergencyContact     string   `json:"emergency_contact,omitempty"`
	Amenities            []string `json:"amenities,omitempty"`
	HouseRules           string   `json:"house_rules,omitempty"`
	KnowledgeBase        string   `json:"knowledge_base,omitempty"`
	LocalRecommendations string   `json:"local_recommendations,omitempty"`
}

// Validate performs basic validation on a Property before it is stored.
func (p *Property) Validate() error {
	if strings.TrimSpace(p.Code) == "" {
		return ErrEmptyPropertyCode
	}
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyPropertyName
	}
	return nil
}

// RecommendationSection returns the body of the localRecommendations section whose heading
// (a line ending in ':' such as "BEACHES:") contains one of the given keywords.
// It returns an empty string when the text is not sectioned or nothing matches.
func (p *Property) RecommendationSection(keywords ...string) string {
	if p.LocalRecommendations == "" || len(keywords) == 0 {
		return ""
	}
	var (
		collecting bool
		section    []string
	)
	for _, line := range strings.Split(p.LocalRecommendations, "\n") {
		trimmed := strings.TrimSpace(line)
		if isSectionHeading(trimmed) {
			if collecting {
				break
			}
			heading := strings.ToLower(strings.TrimSuffix(trimmed, ":"))
			for _, kw := range keywords {
				if kw != "" && strings.Contains(heading, strings.ToLower(kw)) {
					collecting = true
					break
				}
			}
			continue
		}
		if collecting && trimmed != "" {
			section = append(section, trimmed)
		}
	}
	return strings.Join(section, "\n")
}

// isSectionHeading reports whether line looks like "RESTAURANTS:" (upper case, ends in a colon).
func isSectionHeading(line string) bool {
	if len(line) < 2 || !strings.HasSuffix(line, ":") {
		return false
	}
	body := strings.TrimSuffix(line, ":")
	return body == strings.ToUpper(body) && strings.ToLower(body) != body
}
