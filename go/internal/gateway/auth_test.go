package gateway

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/brainbolt/go/internal/models"
)

func testRoom(hostID, guestID uuid.UUID) *models.Room {
	guest := guestID
	return &models.Room{
		ID:       uuid.New(),
		RoomCode: "ABC123",
		HostID:   hostID,
		GuestID:  &guest,
	}
}

func TestTokenRoundTrip(t *testing.T) {
	clock := clockwork.NewFakeClock()
	issuer := NewTokenIssuer([]byte("secret"), time.Hour, clock)
	hostID, guestID := uuid.New(), uuid.New()
	r := testRoom(hostID, guestID)

	token, err := issuer.Issue(r, hostID)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.RoomID != r.ID.String() {
		t.Fatalf("room claim = %s, want %s", claims.RoomID, r.ID)
	}
	if claims.UserID != hostID.String() {
		t.Fatalf("user claim = %s, want %s", claims.UserID, hostID)
	}
	if claims.Role != string(models.RoleHost) {
		t.Fatalf("role claim = %s, want host", claims.Role)
	}

	guestToken, err := issuer.Issue(r, guestID)
	if err != nil {
		t.Fatal(err)
	}
	guestClaims, err := issuer.Verify(guestToken)
	if err != nil {
		t.Fatal(err)
	}
	if guestClaims.Role != string(models.RoleGuest) {
		t.Fatalf("guest role claim = %s", guestClaims.Role)
	}
}

func TestTokenRejectsNonMembers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	issuer := NewTokenIssuer([]byte("secret"), time.Hour, clock)
	r := testRoom(uuid.New(), uuid.New())

	if _, err := issuer.Issue(r, uuid.New()); err == nil {
		t.Fatal("issued a token for a stranger")
	}
}

func TestTokenExpires(t *testing.T) {
	clock := clockwork.NewFakeClock()
	issuer := NewTokenIssuer([]byte("secret"), time.Hour, clock)
	hostID := uuid.New()
	r := testRoom(hostID, uuid.New())

	token, err := issuer.Issue(r, hostID)
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(2 * time.Hour)
	if _, err := issuer.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	clock := clockwork.NewFakeClock()
	issuer := NewTokenIssuer([]byte("secret"), time.Hour, clock)
	other := NewTokenIssuer([]byte("different"), time.Hour, clock)
	hostID := uuid.New()
	r := testRoom(hostID, uuid.New())

	token, err := issuer.Issue(r, hostID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("cross-secret verify err = %v, want ErrInvalidToken", err)
	}
}

func TestClaimsFromRequestSources(t *testing.T) {
	clock := clockwork.NewFakeClock()
	issuer := NewTokenIssuer([]byte("secret"), time.Hour, clock)
	hostID := uuid.New()
	r := testRoom(hostID, uuid.New())

	token, err := issuer.Issue(r, hostID)
	if err != nil {
		t.Fatal(err)
	}

	header := httptest.NewRequest("GET", "/api/rooms/"+r.ID.String()+"/state", nil)
	header.Header.Set("Authorization", "Bearer "+token)
	if _, err := issuer.ClaimsFromRequest(header); err != nil {
		t.Fatalf("header token rejected: %v", err)
	}

	query := httptest.NewRequest("GET", "/ws/room?token="+token, nil)
	if _, err := issuer.ClaimsFromRequest(query); err != nil {
		t.Fatalf("query token rejected: %v", err)
	}

	bare := httptest.NewRequest("GET", "/ws/room", nil)
	if _, err := issuer.ClaimsFromRequest(bare); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("missing token err = %v, want ErrInvalidToken", err)
	}
}
