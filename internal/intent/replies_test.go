package intent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/ConciergePipe/internal/models"
)

func TestCannedReplyWifi(t *testing.T) {
	p := &models.Property{Name: "Sea Breeze", WifiName: "GuestNet", WifiPassword: "sunshine1"}
	reply, ok := CannedReply(CategoryWifi, p)
	require.True(t, ok)
	assert.Contains(t, reply, "GuestNet")
	assert.Contains(t, reply, "sunshine1")
}

func TestCannedReplyFallbacks(t *testing.T) {
	p := &models.Property{Name: "Sea Breeze", EmergencyContact: "(808) 555-0100"}
	for _, cat := range []Category{CategoryWifi, CategoryParking, CategoryAccess, CategoryCheckInOut, CategoryAmenities, CategoryHouseRules} {
		reply, ok := CannedReply(cat, p)
		require.True(t, ok, cat)
		assert.Contains(t, reply, "(808) 555-0100", cat)
		assert.Contains(t, strings.ToLower(reply), "available", cat)
	}

	bare := &models.Property{Name: "Sea Breeze"}
	reply, ok := CannedReply(CategoryParking, bare)
	require.True(t, ok)
	assert.Contains(t, reply, "contact the property directly")
}

func TestCannedReplyFilledTemplates(t *testing.T) {
	p := &models.Property{
		Name:                "Sea Breeze",
		CheckInTime:         "3:00 PM",
		CheckOutTime:        "11:00 AM",
		ParkingInstructions: "Use spot #4 in the driveway.",
		AccessInstructions:  "Keypad code 4321.",
		EmergencyContact:    "(808) 555-0100",
		Amenities:           []string{"pool", "grill"},
		HouseRules:          "No parties.",
	}
	cases := map[Category]string{
		CategoryCheckInOut: "3:00 PM",
		CategoryParking:    "spot #4",
		CategoryAccess:     "4321",
		CategoryEmergency:  "(808) 555-0100",
		CategoryAmenities:  "pool, grill",
		CategoryHouseRules: "No parties.",
		CategoryGreeting:   "Sea Breeze",
	}
	for cat, want := range cases {
		reply, ok := CannedReply(cat, p)
		require.True(t, ok, cat)
		assert.Contains(t, reply, want, cat)
	}
}

func TestCannedReplyNotApplicable(t *testing.T) {
	p := &models.Property{Name: "Sea Breeze"}
	_, ok := CannedReply(CategoryRecommendation, p)
	assert.False(t, ok)
	_, ok = CannedReply(CategoryGeneral, p)
	assert.False(t, ok)
	_, ok = CannedReply(CategoryWifi, nil)
	assert.False(t, ok)
}
