package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/brainbolt/go/internal/feed"
	"github.com/mcdev12/brainbolt/go/internal/gateway"
	"github.com/mcdev12/brainbolt/go/internal/history"
	"github.com/mcdev12/brainbolt/go/internal/match"
	"github.com/mcdev12/brainbolt/go/internal/outbox"
	"github.com/mcdev12/brainbolt/go/internal/queue"
	"github.com/mcdev12/brainbolt/go/internal/questions"
	"github.com/mcdev12/brainbolt/go/internal/room"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Services holds every long-lived component of the server binary.
type Services struct {
	Rooms    *room.App
	History  *history.Repository
	Bank     *questions.Bank
	Listener *outbox.Listener
	Runner   *match.Runner
	Gateway  *gateway.Service
	Sweeper  *room.Sweeper

	nats *natsgo.Conn
}

// setupServices wires the dependency chain: database, question bank, outbox
// publisher over NATS, the change-feed listener, the gateway, and the
// abandoned-room sweeper.
func setupServices(ctx context.Context, database *sql.DB, databaseURL string, config *Config) (*Services, error) {
	clock := clockwork.NewRealClock()

	rooms := room.NewApp(database)
	hist := history.NewRepository(database)

	bank, err := questions.LoadBank(config.Questions.BankPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load question bank: %w", err)
	}

	natsURL := getEnv("NATS_URL", natsgo.DefaultURL)
	nc, err := feed.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	publisher, err := outbox.NewNATSPublisher(ctx, js)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create outbox publisher: %w", err)
	}

	listenerCfg := outbox.DefaultListenerConfig()
	listenerCfg.DatabaseURL = databaseURL
	listener, err := outbox.NewListener(database, publisher, listenerCfg)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create outbox listener: %w", err)
	}

	// The runner arbitrates every active match server-side: it reconciles
	// through the same JetStream feed the clients see, with a liveness monitor
	// per subscription and a durable replay queue for writes that miss.
	runnerCfg := match.DefaultRunnerConfig()
	runnerCfg.NewLiveness = func() match.Liveness {
		return gateway.NewMonitor(clock, gateway.DefaultMonitorConfig())
	}
	answerQueue := queue.New(queue.NewFileStore(getEnv("OFFLINE_QUEUE_PATH", "offline_queue.json")), clock)
	runner := match.NewRunner(rooms, feed.NewJetStreamFeed(js), answerQueue, bank, hist, clock, runnerCfg)

	gatewayCfg := gateway.DefaultConfig()
	gatewayCfg.TokenSecret = os.Getenv("ROOM_TOKEN_SECRET")
	gatewayCfg.JoinBaseURL = config.Gateway.JoinBaseURL
	gatewayCfg.JetStreamConfig.URL = natsURL
	gatewayService, err := gateway.NewService(gatewayCfg, rooms, hist, bank, runner, clock)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create gateway service: %w", err)
	}

	sweeperCfg := room.SweeperConfig{
		Interval: time.Duration(getEnvAsInt("SWEEP_INTERVAL_MIN", 5)) * time.Minute,
		MaxIdle:  time.Duration(getEnvAsInt("ROOM_MAX_IDLE_MIN", 30)) * time.Minute,
	}
	sweeper := room.NewSweeper(rooms, clock, sweeperCfg)

	return &Services{
		Rooms:    rooms,
		History:  hist,
		Bank:     bank,
		Listener: listener,
		Runner:   runner,
		Gateway:  gatewayService,
		Sweeper:  sweeper,
		nats:     nc,
	}, nil
}

// Close releases connections held outside the database pool.
func (s *Services) Close() {
	if s.nats != nil {
		s.nats.Close()
	}
}
