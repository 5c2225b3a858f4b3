package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mcdev12/brainbolt/go/internal/events"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Publisher is an interface that defines our publisher.
type Publisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}

// StreamName is the JetStream stream carrying room change-feed events.
const StreamName = "ROOM_EVENTS"

// SubjectPrefix is the subject namespace; one subject per room keeps
// per-room ordering while letting consumers filter a single match.
const SubjectPrefix = "room.events"

// NATSPublisher publishes outbox events to NATS JetStream.
type NATSPublisher struct {
	js jetstream.JetStream
}

// NewNATSPublisher creates a JetStream publisher and ensures the stream
// exists.
func NewNATSPublisher(ctx context.Context, js jetstream.JetStream) (*NATSPublisher, error) {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:              StreamName,
		Description:       "Room change-feed events",
		Subjects:          []string{SubjectPrefix + ".>"},
		Retention:         jetstream.LimitsPolicy,
		MaxMsgsPerSubject: 256,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return &NATSPublisher{js: js}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	subject := fmt.Sprintf("%s.%s", SubjectPrefix, event.RoomID)

	envelope := events.Envelope{
		EventID:   event.ID.String(),
		EventType: event.EventType,
		RoomID:    event.RoomID.String(),
		Timestamp: event.CreatedAt,
		Payload:   event.Payload,
	}

	messageBytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	// The event id doubles as the JetStream dedup key, so republishing after
	// a crashed MarkSent cannot deliver the event twice.
	_, err = p.js.Publish(ctx, subject, messageBytes, jetstream.WithMsgID(event.ID.String()))
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	log.Debug().
		Str("subject", subject).
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventType).
		Msg("published outbox event")
	return nil
}

// MemoryPublisher collects published events in memory for tests and local
// development without a broker.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []OutboxEvent
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []OutboxEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]OutboxEvent, len(p.events))
	copy(out, p.events)
	return out
}
