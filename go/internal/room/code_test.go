package room

import (
	"strings"
	"testing"
)

func TestGenerateRoomCodeShape(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code := GenerateRoomCode()
		if len(code) != RoomCodeLength {
			t.Fatalf("code %q length = %d, want %d", code, len(code), RoomCodeLength)
		}
		for _, c := range code {
			if !strings.ContainsRune(RoomCodeChars, c) {
				t.Fatalf("code %q contains %q outside the alphabet", code, c)
			}
		}
		seen[code] = true
	}
	// 100 draws from a 36^6 space colliding down to a handful would mean a
	// broken generator.
	if len(seen) < 90 {
		t.Fatalf("only %d distinct codes in 100 draws", len(seen))
	}
}

func TestNormalizeRoomCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abc123", "ABC123"},
		{"  AbC123 ", "ABC123"},
		{"XYZ789", "XYZ789"},
	}
	for _, tt := range tests {
		if got := NormalizeRoomCode(tt.in); got != tt.want {
			t.Errorf("NormalizeRoomCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidRoomCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"ABC123", true},
		{"ZZZZZZ", true},
		{"ABC12", false},
		{"ABC1234", false},
		{"abc123", false},
		{"AB-123", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidRoomCode(tt.code); got != tt.want {
			t.Errorf("ValidRoomCode(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
