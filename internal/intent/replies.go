package intent

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/ConciergePipe/internal/models"
)

// contactFallback is appended when a property field needed for a canned reply is empty.
func contactFallback(p *models.Property) string {
	if strings.TrimSpace(p.EmergencyContact) != "" {
		return fmt.Sprintf("Please contact the property at %s.", p.EmergencyContact)
	}
	return "Please contact the property directly."
}

// CannedReply builds the template reply for a category that does not need the composer.
// Empty property fields degrade to a "not available, contact property" answer.
// The second return value is false for categories without a canned reply.
func CannedReply(cat Category, p *models.Property) (string, bool) {
	if p == nil || !cat.HasCannedReply() {
		return "", false
	}
	switch cat {
	case CategoryWifi:
		switch {
		case p.WifiName != "" && p.WifiPassword != "":
			return fmt.Sprintf("WiFi network: %s\nPassword: %s", p.WifiName, p.WifiPassword), true
		case p.WifiName != "":
			return fmt.Sprintf("WiFi network: %s (no password needed). If it won't connect, try restarting the router.", p.WifiName), true
		default:
			return "WiFi details aren't available right now. " + contactFallback(p), true
		}
	case CategoryParking:
		if p.ParkingInstructions == "" {
			return "Parking info isn't available right now. " + contactFallback(p), true
		}
		return "Parking: " + p.ParkingInstructions, true
	case CategoryAccess:
		if p.AccessInstructions == "" {
			return "Entry instructions aren't available right now. " + contactFallback(p), true
		}
		return "Access: " + p.AccessInstructions, true
	case CategoryCheckInOut:
		switch {
		case p.CheckInTime != "" && p.CheckOutTime != "":
			return fmt.Sprintf("Check-in is at %s and check-out is at %s.", p.CheckInTime, p.CheckOutTime), true
		case p.CheckInTime != "":
			return fmt.Sprintf("Check-in is at %s. Check-out time isn't listed. %s", p.CheckInTime, contactFallback(p)), true
		case p.CheckOutTime != "":
			return fmt.Sprintf("Check-out is at %s. Check-in time isn't listed. %s", p.CheckOutTime, contactFallback(p)), true
		default:
			return "Check-in/out times aren't available right now. " + contactFallback(p), true
		}
	case CategoryEmergency:
		if p.EmergencyContact == "" {
			return "If this is a life-threatening emergency, call 911 now. Then contact your host directly.", true
		}
		return fmt.Sprintf("If this is a life-threatening emergency, call 911 now. Property emergency contact: %s", p.EmergencyContact), true
	case CategoryAmenities:
		if len(p.Amenities) == 0 {
			return "The amenity list isn't available right now. " + contactFallback(p), true
		}
		return fmt.Sprintf("%s amenities: %s.", p.Name, strings.Join(p.Amenities, ", ")), true
	case CategoryHouseRules:
		if p.HouseRules == "" {
			return "House rules aren't available right now. " + contactFallback(p), true
		}
		return "House rules: " + p.HouseRules, true
	case CategoryGreeting:
		return fmt.Sprintf("Hi! How can I help with your stay at %s?", p.Name), true
	}
	return "", false
}
