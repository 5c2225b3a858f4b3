package room

import (
	crand "crypto/rand"
	"math/big"
	"math/rand"
	"strings"
)

const (
	// RoomCodeLength is the length of generated room codes.
	RoomCodeLength = 6

	// RoomCodeChars are the characters used for generating room codes.
	RoomCodeChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateRoomCode creates a random 6-character room code.
func GenerateRoomCode() string {
	code := make([]byte, RoomCodeLength)
	for i := range code {
		n, err := crand.Int(crand.Reader, big.NewInt(int64(len(RoomCodeChars))))
		if err != nil {
			// fallback to math/rand if crypto fails
			code[i] = RoomCodeChars[rand.Intn(len(RoomCodeChars))]
			continue
		}
		code[i] = RoomCodeChars[n.Int64()]
	}
	return string(code)
}

// NormalizeRoomCode uppercases a user-supplied code; input is
// case-insensitive but codes are stored and displayed uppercase.
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidRoomCode reports whether code has the expected shape.
func ValidRoomCode(code string) bool {
	if len(code) != RoomCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(RoomCodeChars, rune(code[i])) {
			return false
		}
	}
	return true
}
