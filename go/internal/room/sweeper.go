package room

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// SweeperConfig controls the abandoned-room sweep.
type SweeperConfig struct {
	Interval time.Duration // How often to sweep
	MaxIdle  time.Duration // Row inactivity before a room counts as abandoned
}

func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval: 5 * time.Minute,
		MaxIdle:  30 * time.Minute,
	}
}

// Sweeper force-finishes rooms whose row has not changed for MaxIdle. Both
// clients gone means nobody advances the state machine, so without the sweep
// the room would sit in a non-terminal status forever.
type Sweeper struct {
	app   *App
	clock clockwork.Clock
	cfg   SweeperConfig
}

func NewSweeper(app *App, clock clockwork.Clock, cfg SweeperConfig) *Sweeper {
	return &Sweeper{app: app, clock: clock, cfg: cfg}
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	log.Info().
		Dur("interval", s.cfg.Interval).
		Dur("max_idle", s.cfg.MaxIdle).
		Msg("room sweeper started")

	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("room sweeper shutting down")
			return
		case <-ticker.Chan():
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce expires every room idle past the configured cutoff.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	cutoff := s.clock.Now().Add(-s.cfg.MaxIdle)
	count, err := s.app.ExpireStaleRooms(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("failed to expire stale rooms")
		return
	}
	if count > 0 {
		log.Info().Int("count", count).Msg("expired abandoned rooms")
	}
}
