package concierge

import (
	"testing"
	"time"

	"github.com/BTreeMap/ConciergePipe/internal/models"
)

func TestBucketFor(t *testing.T) {
	tests := []struct {
		hour int
		want TimeOfDay
	}{
		{0, Night}, {4, Night}, {5, Morning}, {11, Morning}, {12, Afternoon},
		{16, Afternoon}, {17, Evening}, {20, Evening}, {21, Night}, {23, Night},
	}
	for _, tt := range tests {
		got := BucketFor(time.Date(2024, 1, 1, tt.hour, 30, 0, 0, time.UTC))
		if got != tt.want {
			t.Errorf("BucketFor(%02d:30) = %s, want %s", tt.hour, got, tt.want)
		}
	}
}

func TestTimezoneForAddress(t *testing.T) {
	tests := []struct {
		address string
		want    string
	}{
		{"1434 Mokulua Dr, Kailua, HI 96734", "Pacific/Honolulu"},
		{"12 Ocean Ave, Miami Beach, FL", "America/New_York"},
		{"500 Main St, Park City, UT", "America/Denver"},
		{"22 Congress Ave, Austin, TX", "America/Chicago"},
		{"1 Market St, San Francisco", "America/Los_Angeles"},
		{"Somewhere unknown", models.DefaultTimezone},
		{"", models.DefaultTimezone},
	}
	for _, tt := range tests {
		if got := TimezoneForAddress(tt.address); got != tt.want {
			t.Errorf("TimezoneForAddress(%q) = %s, want %s", tt.address, got, tt.want)
		}
		if _, err := time.LoadLocation(TimezoneForAddress(tt.address)); err != nil {
			t.Errorf("zone for %q does not load: %v", tt.address, err)
		}
	}
}

func TestCheckingOutTomorrow(t *testing.T) {
	now := time.Date(2024, 6, 14, 23, 0, 0, 0, time.UTC) // 13:00 on the 14th in Honolulu
	conv := models.NewConversation("c", "+1", now)
	conv.Timezone = "Pacific/Honolulu"
	loc := conv.Location()

	if CheckingOutTomorrow(conv, now) {
		t.Error("no check-out date must be false")
	}
	tomorrow := time.Date(2024, 6, 15, 10, 0, 0, 0, loc)
	conv.CheckOutDate = &tomorrow
	if !CheckingOutTomorrow(conv, now) {
		t.Error("expected check-out tomorrow")
	}
	later := time.Date(2024, 6, 16, 10, 0, 0, 0, loc)
	conv.CheckOutDate = &later
	if CheckingOutTomorrow(conv, now) {
		t.Error("check-out in two days is not tomorrow")
	}
}
