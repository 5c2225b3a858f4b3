package gateway

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles WebSocket upgrade requests for room connections.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	tokens            *TokenIssuer
}

func NewWebSocketHandler(cm *ConnectionManager, tokens *TokenIssuer) *WebSocketHandler {
	return &WebSocketHandler{connectionManager: cm, tokens: tokens}
}

// HandleRoomConnection handles GET /ws/room?token=... The token pins the
// connection to one room and seat; no room id is accepted from the client.
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	claims, err := h.tokens.ClaimsFromRequest(r)
	if err != nil {
		http.Error(w, "invalid or missing token", http.StatusUnauthorized)
		return
	}

	roomID, err := uuid.Parse(claims.RoomID)
	if err != nil {
		http.Error(w, "invalid token room", http.StatusUnauthorized)
		return
	}

	if err := h.connectionManager.UpgradeConnection(w, r, claims, roomID); err != nil {
		log.Error().
			Err(err).
			Str("room_id", roomID.String()).
			Str("user_id", claims.UserID).
			Msg("failed to upgrade WebSocket connection")
		return
	}
}

// HandleConnectionStats returns statistics about active connections.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	total, rooms := h.connectionManager.ConnectionStats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"total_connections":` + strconv.Itoa(total) + `,"active_rooms":` + strconv.Itoa(rooms) + `}`))
}

// RegisterRoutes registers WebSocket routes with an HTTP mux.
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/room", h.HandleRoomConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}
