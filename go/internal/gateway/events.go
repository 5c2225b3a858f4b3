package gateway

import (
	"encoding/json"
	"time"
)

// RoomEvent is the frame pushed to WebSocket clients. Data carries the
// payload from the change feed unchanged, full room row included, so clients
// reconcile from authoritative state.
type RoomEvent struct {
	ID        string          `json:"id"`
	RoomID    string          `json:"room_id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// EventTypeHeartbeat is emitted by the gateway itself, not the change feed,
// so clients can detect a dead subscription during quiet stretches of a
// match.
const EventTypeHeartbeat = "Heartbeat"

// HeartbeatData is the payload of a Heartbeat event.
type HeartbeatData struct {
	ServerTime time.Time `json:"server_time"`
}
