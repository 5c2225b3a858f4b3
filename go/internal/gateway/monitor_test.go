package gateway

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func testMonitor() (*Monitor, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	cfg := MonitorConfig{
		HeartbeatTimeout:     15 * time.Second,
		BaseBackoff:          time.Second,
		MaxBackoff:           30 * time.Second,
		MaxReconnectAttempts: 3,
	}
	return NewMonitor(clock, cfg), clock
}

func TestMonitorConnectedWhileActive(t *testing.T) {
	m, clock := testMonitor()

	if !m.IsConnected() {
		t.Fatal("fresh monitor not connected")
	}

	clock.Advance(10 * time.Second)
	m.RecordActivity()
	clock.Advance(10 * time.Second)

	if !m.IsConnected() {
		t.Fatal("monitor dropped despite recent activity")
	}
}

func TestMonitorFlagsSilence(t *testing.T) {
	m, clock := testMonitor()

	clock.Advance(16 * time.Second)
	if got := m.State(); got != StateReconnecting {
		t.Fatalf("state after silence = %s, want reconnecting", got)
	}
}

func TestMonitorBackoffDoubles(t *testing.T) {
	m, _ := testMonitor()

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for i, expected := range want {
		delay, ok := m.NextRetry()
		if !ok {
			t.Fatalf("retry %d refused", i+1)
		}
		if delay != expected {
			t.Fatalf("retry %d delay = %v, want %v", i+1, delay, expected)
		}
	}
	if got := m.ReconnectAttempts(); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
}

func TestMonitorBackoffCapped(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewMonitor(clock, MonitorConfig{
		HeartbeatTimeout:     15 * time.Second,
		BaseBackoff:          time.Second,
		MaxBackoff:           4 * time.Second,
		MaxReconnectAttempts: 10,
	})

	var last time.Duration
	for i := 0; i < 6; i++ {
		delay, ok := m.NextRetry()
		if !ok {
			t.Fatalf("retry %d refused", i+1)
		}
		last = delay
	}
	if last != 4*time.Second {
		t.Fatalf("delay = %v, want capped at 4s", last)
	}
}

func TestMonitorExhaustionSticks(t *testing.T) {
	m, clock := testMonitor()

	for i := 0; i < 3; i++ {
		if _, ok := m.NextRetry(); !ok {
			t.Fatalf("retry %d refused early", i+1)
		}
	}
	if _, ok := m.NextRetry(); ok {
		t.Fatal("retry allowed past the budget")
	}
	if got := m.State(); got != StateDisconnected {
		t.Fatalf("state after exhaustion = %s, want disconnected", got)
	}

	// Disconnected persists regardless of elapsed time.
	clock.Advance(time.Hour)
	if got := m.State(); got != StateDisconnected {
		t.Fatalf("state = %s, want disconnected to stick", got)
	}

	// Observed activity restores the budget.
	m.RecordActivity()
	if !m.IsConnected() {
		t.Fatal("activity did not restore the connection")
	}
	if _, ok := m.NextRetry(); !ok {
		t.Fatal("retry budget not reset after activity")
	}
}
