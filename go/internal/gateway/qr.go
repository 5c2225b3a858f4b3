package gateway

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/mcdev12/brainbolt/go/internal/room"
	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"
)

// QRHandler renders a room's join link as a QR code, so the host can put the
// invite on screen instead of reading six characters aloud.
type QRHandler struct {
	rooms       *room.App
	joinBaseURL string
	size        int
}

func NewQRHandler(rooms *room.App, joinBaseURL string) *QRHandler {
	return &QRHandler{rooms: rooms, joinBaseURL: joinBaseURL, size: 256}
}

// HandleRoomQR handles GET /api/rooms/qr?code={room_code}.
func (h *QRHandler) HandleRoomQR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	code := room.NormalizeRoomCode(r.URL.Query().Get("code"))
	if !room.ValidRoomCode(code) {
		http.Error(w, "invalid room code", http.StatusBadRequest)
		return
	}

	// Only mint codes for rooms that exist.
	if _, err := h.rooms.RoomByCode(r.Context(), code); err != nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}

	joinURL := fmt.Sprintf("%s?code=%s", h.joinBaseURL, url.QueryEscape(code))
	png, err := qrcode.Encode(joinURL, qrcode.Medium, h.size)
	if err != nil {
		log.Error().Err(err).Str("room_code", code).Msg("failed to encode QR code")
		http.Error(w, "failed to generate QR code", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
