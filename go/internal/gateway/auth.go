package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/brainbolt/go/internal/models"
)

// ErrInvalidToken covers expired, malformed, or badly signed room tokens.
var ErrInvalidToken = errors.New("invalid room token")

// RoomClaims binds a user to one room and one seat. The gateway checks the
// role claim before accepting writes, the storage layer re-checks host_id on
// host-only mutations.
type RoomClaims struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies HS256 room tokens. A token is issued on
// create or join and presented on every subsequent request for that room.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
}

func NewTokenIssuer(secret []byte, ttl time.Duration, clock clockwork.Clock) *TokenIssuer {
	return &TokenIssuer{secret: secret, ttl: ttl, clock: clock}
}

// Issue creates a token for userID's seat in the room.
func (i *TokenIssuer) Issue(room *models.Room, userID uuid.UUID) (string, error) {
	role := room.RoleOf(userID)
	if role == "" {
		return "", fmt.Errorf("user %s is not a member of room %s", userID, room.ID)
	}

	now := i.clock.Now()
	claims := RoomClaims{
		RoomID: room.ID.String(),
		UserID: userID.String(),
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign room token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token string.
func (i *TokenIssuer) Verify(tokenString string) (*RoomClaims, error) {
	claims := &RoomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.clock.Now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ClaimsFromRequest extracts and verifies the room token from the
// Authorization header, or from the token query parameter for WebSocket
// upgrades where browsers cannot set headers.
func (i *TokenIssuer) ClaimsFromRequest(r *http.Request) (*RoomClaims, error) {
	tokenString := r.URL.Query().Get("token")
	if auth := r.Header.Get("Authorization"); auth != "" {
		tokenString = strings.TrimPrefix(auth, "Bearer ")
	}
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	return i.Verify(tokenString)
}
