package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/mcdev12/brainbolt/go/internal/history"
	"github.com/mcdev12/brainbolt/go/internal/models"
	"github.com/mcdev12/brainbolt/go/internal/questions"
	"github.com/mcdev12/brainbolt/go/internal/room"
	"github.com/rs/zerolog/log"
)

// MatchDriver runs the server-side arbiter for a room's match. The gateway
// pokes it on create and join so every room it hands out has an engine
// driving the state machine.
type MatchDriver interface {
	EnsureMatch(room *models.Room) error
}

// API exposes the room operations over JSON HTTP. Create and join hand back
// a room token; every in-room request presents it.
type API struct {
	rooms   *room.App
	history *history.Repository
	tokens  *TokenIssuer
	bank    *questions.Bank
	driver  MatchDriver
}

func NewAPI(rooms *room.App, hist *history.Repository, tokens *TokenIssuer, bank *questions.Bank, driver MatchDriver) *API {
	return &API{rooms: rooms, history: hist, tokens: tokens, bank: bank, driver: driver}
}

type roomResponse struct {
	Room  *models.Room `json:"room"`
	Token string       `json:"token"`
}

type createRoomRequest struct {
	UserID   string              `json:"user_id"`
	Settings models.RoomSettings `json:"settings"`
}

// HandleCreateRoom handles POST /api/rooms.
func (a *API) HandleCreateRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	hostID, err := uuid.Parse(req.UserID)
	if err != nil {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}

	created, err := a.rooms.CreateRoom(r.Context(), hostID, req.Settings)
	if err != nil {
		log.Error().Err(err).Msg("failed to create room")
		http.Error(w, "failed to create room", http.StatusInternalServerError)
		return
	}
	a.notifyDriver(created)

	a.writeRoomWithToken(w, created, hostID, http.StatusCreated)
}

type joinRoomRequest struct {
	RoomCode string `json:"room_code"`
	UserID   string `json:"user_id"`
}

// HandleJoinRoom handles POST /api/rooms/join.
func (a *API) HandleJoinRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req joinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	guestID, err := uuid.Parse(req.UserID)
	if err != nil {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}

	joined, err := a.rooms.JoinRoom(r.Context(), req.RoomCode, guestID)
	if err != nil {
		var unavailable *room.UnavailableError
		if errors.As(err, &unavailable) {
			status := http.StatusConflict
			if unavailable.Reason == room.ReasonNotFound {
				status = http.StatusNotFound
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]string{
				"error":  "room unavailable",
				"reason": string(unavailable.Reason),
			})
			return
		}
		log.Error().Err(err).Str("room_code", req.RoomCode).Msg("failed to join room")
		http.Error(w, "failed to join room", http.StatusInternalServerError)
		return
	}

	a.notifyDriver(joined)

	a.writeRoomWithToken(w, joined, guestID, http.StatusOK)
}

// notifyDriver hands the committed room to the match arbiter. The room row is
// already durable, so a failure here leaves the room joinable and the sweeper
// to expire it if no arbiter ever picks it up.
func (a *API) notifyDriver(room *models.Room) {
	if a.driver == nil {
		return
	}
	if err := a.driver.EnsureMatch(room); err != nil {
		log.Error().Err(err).Str("room_id", room.ID.String()).Msg("failed to start match arbiter")
	}
}

// HandleRoomState handles GET /api/rooms/{id}/state.
func (a *API) HandleRoomState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims, roomID, ok := a.authorize(w, r)
	if !ok {
		return
	}

	current, err := a.rooms.Room(r.Context(), roomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to get room state")
		http.Error(w, "failed to get room state", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, redactOpponentAnswer(current, models.PlayerRole(claims.Role)))
}

type submitAnswerRequest struct {
	QuestionIndex int `json:"question_index"`
	Answer        int `json:"answer"`
}

// HandleSubmitAnswer handles POST /api/rooms/{id}/answers. The user and seat
// come from the token, never from the body.
func (a *API) HandleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims, roomID, ok := a.authorize(w, r)
	if !ok {
		return
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		http.Error(w, "invalid token subject", http.StatusUnauthorized)
		return
	}

	var req submitAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := a.rooms.SubmitAnswer(r.Context(), roomID, userID, req.QuestionIndex, req.Answer)
	if errors.Is(err, room.ErrStaleWrite) {
		// Duplicate submit or the match moved on; nothing for the client to
		// repair.
		http.Error(w, "answer no longer accepted", http.StatusConflict)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to submit answer")
		http.Error(w, "failed to submit answer", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, redactOpponentAnswer(updated, models.PlayerRole(claims.Role)))
}

// redactOpponentAnswer hides the opposing seat's in-flight answer while the
// question is still open. The scoring transition to question_answered reveals
// both answers.
func redactOpponentAnswer(r *models.Room, role models.PlayerRole) *models.Room {
	if r == nil || r.GameStatus != models.GameStatusPlaying {
		return r
	}
	out := *r
	switch role {
	case models.RoleHost:
		out.GuestAnswer = nil
	case models.RoleGuest:
		out.HostAnswer = nil
	default:
		out.HostAnswer, out.GuestAnswer = nil, nil
	}
	return &out
}

// HandleRoomDeck handles GET /api/rooms/{id}/deck. The deck is a pure
// function of the room settings, so both players download the identical
// question order.
func (a *API) HandleRoomDeck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_, roomID, ok := a.authorize(w, r)
	if !ok {
		return
	}

	current, err := a.rooms.Room(r.Context(), roomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to get room for deck")
		http.Error(w, "failed to get room", http.StatusInternalServerError)
		return
	}

	deck, err := a.bank.Deck(current.Settings)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to derive deck")
		http.Error(w, "failed to derive deck", http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, deck)
}

// HandleRoomHistory handles GET /api/rooms/{id}/history, returning the
// caller's record for the finished match.
func (a *API) HandleRoomHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims, roomID, ok := a.authorize(w, r)
	if !ok {
		return
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		http.Error(w, "invalid token subject", http.StatusUnauthorized)
		return
	}

	record, err := a.history.GetForRoom(r.Context(), userID, roomID)
	if err != nil {
		http.Error(w, "history not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// authorize verifies the room token and checks it against the room id in the
// path.
func (a *API) authorize(w http.ResponseWriter, r *http.Request) (*RoomClaims, uuid.UUID, bool) {
	claims, err := a.tokens.ClaimsFromRequest(r)
	if err != nil {
		http.Error(w, "invalid or missing token", http.StatusUnauthorized)
		return nil, uuid.Nil, false
	}

	roomID, err := uuid.Parse(extractRoomIDFromPath(r.URL.Path))
	if err != nil || claims.RoomID != roomID.String() {
		http.Error(w, "token does not match room", http.StatusForbidden)
		return nil, uuid.Nil, false
	}
	return claims, roomID, true
}

func (a *API) writeRoomWithToken(w http.ResponseWriter, r *models.Room, userID uuid.UUID, status int) {
	token, err := a.tokens.Issue(r, userID)
	if err != nil {
		log.Error().Err(err).Str("room_id", r.ID.String()).Msg("failed to issue room token")
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, roomResponse{Room: r, Token: token})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// extractRoomIDFromPath pulls the id out of paths like
// /api/rooms/{id}/state.
func extractRoomIDFromPath(path string) string {
	const prefix = "/api/rooms/"
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	rest := strings.TrimPrefix(path, prefix)
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		return rest[:idx]
	}
	return rest
}

// RegisterRoutes registers the room API routes.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/rooms", a.HandleCreateRoom)
	mux.HandleFunc("/api/rooms/join", a.HandleJoinRoom)
	mux.HandleFunc("/api/rooms/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/state"):
			a.HandleRoomState(w, r)
		case strings.HasSuffix(r.URL.Path, "/answers"):
			a.HandleSubmitAnswer(w, r)
		case strings.HasSuffix(r.URL.Path, "/deck"):
			a.HandleRoomDeck(w, r)
		case strings.HasSuffix(r.URL.Path, "/history"):
			a.HandleRoomHistory(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}
