package gateway

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// MonitorState is the reachability verdict a client surfaces to its UI.
type MonitorState string

const (
	StateConnected    MonitorState = "connected"
	StateReconnecting MonitorState = "reconnecting"
	StateDisconnected MonitorState = "disconnected"
)

// MonitorConfig tunes heartbeat staleness and reconnect backoff.
type MonitorConfig struct {
	HeartbeatTimeout     time.Duration // Silence on the feed before reconnecting
	BaseBackoff          time.Duration
	MaxBackoff           time.Duration
	MaxReconnectAttempts int
}

func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		HeartbeatTimeout:     15 * time.Second,
		BaseBackoff:          time.Second,
		MaxBackoff:           30 * time.Second,
		MaxReconnectAttempts: 5,
	}
}

// Monitor tracks liveness of a change-feed subscription. It never mutates
// game state; it only classifies the connection and paces reconnect
// attempts. Once MaxReconnectAttempts is exceeded the state sticks at
// disconnected until activity is observed again, so a dead link shows as a
// persistent failure instead of retrying forever.
type Monitor struct {
	clock clockwork.Clock
	cfg   MonitorConfig

	mu                sync.Mutex
	lastActivity      time.Time
	reconnectAttempts int
	exhausted         bool
}

func NewMonitor(clock clockwork.Clock, cfg MonitorConfig) *Monitor {
	return &Monitor{
		clock:        clock,
		cfg:          cfg,
		lastActivity: clock.Now(),
	}
}

// RecordActivity notes evidence the feed is alive: a delivered event, a
// heartbeat, or a successful write. It resets the reconnect budget.
func (m *Monitor) RecordActivity() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.exhausted || m.reconnectAttempts > 0 {
		log.Info().Msg("connection restored")
	}
	m.lastActivity = m.clock.Now()
	m.reconnectAttempts = 0
	m.exhausted = false
}

// LastActivity returns when the feed last showed signs of life.
func (m *Monitor) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastActivity
}

// ReconnectAttempts returns the number of retries since the last activity.
func (m *Monitor) ReconnectAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnectAttempts
}

// State classifies the connection right now.
func (m *Monitor) State() MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.exhausted:
		return StateDisconnected
	case m.clock.Now().Sub(m.lastActivity) > m.cfg.HeartbeatTimeout:
		return StateReconnecting
	default:
		return StateConnected
	}
}

// IsConnected reports whether the feed looks alive.
func (m *Monitor) IsConnected() bool {
	return m.State() == StateConnected
}

// NextRetry consumes one reconnect attempt and returns how long to wait
// before it. ok is false once the attempt budget is spent; callers must then
// stop retrying and surface the disconnected state.
func (m *Monitor) NextRetry() (delay time.Duration, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.exhausted || m.reconnectAttempts >= m.cfg.MaxReconnectAttempts {
		m.exhausted = true
		log.Warn().
			Int("attempts", m.reconnectAttempts).
			Msg("reconnect attempts exhausted")
		return 0, false
	}

	delay = m.cfg.BaseBackoff << m.reconnectAttempts
	if delay > m.cfg.MaxBackoff {
		delay = m.cfg.MaxBackoff
	}
	m.reconnectAttempts++

	log.Info().
		Int("attempt", m.reconnectAttempts).
		Dur("delay", delay).
		Msg("scheduling reconnect")
	return delay, true
}
