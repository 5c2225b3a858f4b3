package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/brainbolt/go/internal/events"
	"github.com/mcdev12/brainbolt/go/internal/match"
	"github.com/mcdev12/brainbolt/go/internal/models"
	"github.com/mcdev12/brainbolt/go/internal/outbox"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Connect opens a NATS connection with reconnect handling.
func Connect(url string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// JetStreamFeed delivers committed room states from the ROOM_EVENTS stream.
// Each subscription gets an ordered per-subject consumer, so deliveries for a
// room arrive in publish order; subscribers still gate on the row version
// because redeliveries can replay old states.
type JetStreamFeed struct {
	js jetstream.JetStream
}

var _ match.ChangeFeed = (*JetStreamFeed)(nil)

func NewJetStreamFeed(js jetstream.JetStream) *JetStreamFeed {
	return &JetStreamFeed{js: js}
}

// Subscribe starts delivering the room's committed states to deliver. The
// returned function stops the consumer.
func (f *JetStreamFeed) Subscribe(ctx context.Context, roomID uuid.UUID, deliver func(*models.Room)) (func(), error) {
	subject := fmt.Sprintf("%s.%s", outbox.SubjectPrefix, roomID)

	consumer, err := f.js.OrderedConsumer(ctx, outbox.StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{subject},
		DeliverPolicy:  jetstream.DeliverLastPerSubjectPolicy,
		ReplayPolicy:   jetstream.ReplayInstantPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create room consumer: %w", err)
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		room, err := roomFromMessage(msg.Data())
		if err != nil {
			log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to decode room event")
			return
		}
		deliver(room)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start room consumer: %w", err)
	}

	log.Info().
		Str("room_id", roomID.String()).
		Str("subject", subject).
		Msg("subscribed to room feed")

	return consumeCtx.Stop, nil
}

func roomFromMessage(data []byte) (*models.Room, error) {
	var envelope events.Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event envelope: %w", err)
	}
	room, err := events.RoomFromPayload(envelope.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to extract room from %s payload: %w", envelope.EventType, err)
	}
	return room, nil
}
