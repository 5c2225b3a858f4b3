package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/brainbolt/go/internal/history"
	"github.com/mcdev12/brainbolt/go/internal/questions"
	"github.com/mcdev12/brainbolt/go/internal/room"
	"github.com/rs/zerolog/log"
)

// Service ties the room gateway together: the REST API, the WebSocket fan-out
// of change-feed events, and a periodic heartbeat so clients can tell a quiet
// match from a dead connection.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
	api               *API
	qr                *QRHandler
	clock             clockwork.Clock
	heartbeatEvery    time.Duration
}

// Config holds configuration for the room gateway service.
type Config struct {
	ConnectionConfig  ConnectionConfig
	JetStreamConfig   JetStreamConsumerConfig
	TokenSecret       string
	TokenTTL          time.Duration
	JoinBaseURL       string
	HeartbeatInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig:  DefaultConnectionConfig(),
		JetStreamConfig:   DefaultJetStreamConsumerConfig(),
		TokenTTL:          2 * time.Hour,
		JoinBaseURL:       "http://localhost:3000/join",
		HeartbeatInterval: 10 * time.Second,
	}
}

// NewService creates a new room gateway service. driver may be nil when no
// server-side arbiter runs in this process.
func NewService(config Config, rooms *room.App, hist *history.Repository, bank *questions.Bank, driver MatchDriver, clock clockwork.Clock) (*Service, error) {
	if config.TokenSecret == "" {
		return nil, fmt.Errorf("token secret is required")
	}

	connectionManager := NewConnectionManager(config.ConnectionConfig)
	tokens := NewTokenIssuer([]byte(config.TokenSecret), config.TokenTTL, clock)

	eventConsumer, err := NewEventConsumer(connectionManager, config.JetStreamConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create event consumer: %w", err)
	}

	return &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager, tokens),
		eventConsumer:     eventConsumer,
		api:               NewAPI(rooms, hist, tokens, bank, driver),
		qr:                NewQRHandler(rooms, config.JoinBaseURL),
		clock:             clock,
		heartbeatEvery:    config.HeartbeatInterval,
	}, nil
}

// Start begins the gateway service and blocks until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting room gateway service")

	go s.connectionManager.Start(ctx)

	go func() {
		if err := s.eventConsumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("event consumer failed")
		}
	}()

	go s.heartbeatLoop(ctx)

	<-ctx.Done()

	log.Info().Msg("room gateway service shutting down")
	return s.Stop()
}

// Stop gracefully shuts down the gateway service.
func (s *Service) Stop() error {
	if err := s.eventConsumer.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop event consumer")
	}
	log.Info().Msg("room gateway service stopped")
	return nil
}

// heartbeatLoop broadcasts a Heartbeat event to every connected room so
// client monitors see activity even when nobody is answering.
func (s *Service) heartbeatLoop(ctx context.Context) {
	ticker := s.clock.NewTicker(s.heartbeatEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			now := s.clock.Now()
			data, err := json.Marshal(HeartbeatData{ServerTime: now})
			if err != nil {
				continue
			}
			for _, roomID := range s.connectionManager.ActiveRooms() {
				s.connectionManager.BroadcastToRoom(roomID, &RoomEvent{
					ID:        uuid.New().String(),
					RoomID:    roomID.String(),
					Type:      EventTypeHeartbeat,
					Timestamp: now,
					Data:      data,
				})
			}
		}
	}
}

// RegisterRoutes registers all gateway HTTP routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.api.RegisterRoutes(mux)
	s.wsHandler.RegisterRoutes(mux)
	mux.HandleFunc("/api/rooms/qr", s.qr.HandleRoomQR)
	log.Info().Msg("room gateway routes registered")
}
