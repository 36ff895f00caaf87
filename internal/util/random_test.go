package util

import (
	"strings"
	"testing"
)

func TestGenerateRandomID(t *testing.T) {
	tests := []struct {
		name       string
		prefix     string
		hexLength  int
		wantLength int // prefix + hexLength
	}{
		{"simulated message", "sim_", 24, 28},
		{"custom prefix", "test_", 16, 21},
		{"no hex", "x_", 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateRandomID(tt.prefix, tt.hexLength)
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("GenerateRandomID() = %v, want prefix %v", got, tt.prefix)
			}
			if len(got) != tt.wantLength {
				t.Errorf("GenerateRandomID() length = %v, want %v", len(got), tt.wantLength)
			}
			if !isValidHex(got[len(tt.prefix):]) {
				t.Errorf("GenerateRandomID() hex part of %v is not valid hex", got)
			}
		})
	}
}

func TestGenerateRandomHex(t *testing.T) {
	for _, length := range []int{-1, 0, 8, 64} {
		got := GenerateRandomHex(length)
		want := length
		if want < 0 {
			want = 0
		}
		if len(got) != want {
			t.Errorf("GenerateRandomHex(%d) length = %d, want %d", length, len(got), want)
		}
		if !isValidHex(got) {
			t.Errorf("GenerateRandomHex(%d) = %v is not valid hex", length, got)
		}
	}
}

func TestGenerateSimulatedMessageIDUniqueness(t *testing.T) {
	const iterations = 1000
	seen := make(map[string]bool)
	for i := 0; i < iterations; i++ {
		id := GenerateSimulatedMessageID()
		if !strings.HasPrefix(id, "sim_") {
			t.Fatalf("unexpected id %q", id)
		}
		if seen[id] {
			t.Errorf("GenerateSimulatedMessageID() generated duplicate: %v", id)
		}
		seen[id] = true
	}
}

func isValidHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
