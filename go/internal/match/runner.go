package match

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/brainbolt/go/internal/history"
	"github.com/mcdev12/brainbolt/go/internal/models"
	"github.com/mcdev12/brainbolt/go/internal/queue"
	"github.com/mcdev12/brainbolt/go/internal/questions"
	"github.com/rs/zerolog/log"
)

// Liveness tracks change-feed subscription health and paces resubscription.
type Liveness interface {
	RecordActivity()
	IsConnected() bool
	NextRetry() (delay time.Duration, ok bool)
}

// ActiveLister is implemented by stores that can enumerate unfinished rooms,
// so arbiters lost to a restart come back when the runner starts.
type ActiveLister interface {
	ActiveRooms(ctx context.Context) ([]models.Room, error)
}

// RunnerConfig tunes the per-room arbiters.
type RunnerConfig struct {
	Engine           EngineConfig
	LivenessInterval time.Duration   // How often quiet subscriptions are health-checked
	NewLiveness      func() Liveness // Optional; one monitor per engine subscription
}

func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Engine:           DefaultEngineConfig(),
		LivenessInterval: 5 * time.Second,
	}
}

// Runner hosts the server-side arbiter for every active room. Each seat gets
// its own engine: the host engine drives the shared state machine forward
// (starting questions, scoring, advancing, finishing) while both engines
// write the timeout sentinel for their seat and record their seat's history
// row when the match ends. Every transition is a CAS on the room row, so a
// client running its own engine copy cannot double-apply anything.
type Runner struct {
	store RoomStore
	feed  ChangeFeed
	queue *queue.Queue
	bank  *questions.Bank
	hist  history.Inserter
	clock clockwork.Clock
	cfg   RunnerConfig

	mu      sync.Mutex
	ctx     context.Context
	pending []models.Room
	matches map[uuid.UUID]*activeMatch
}

type activeMatch struct {
	ctx         context.Context
	cancel      context.CancelFunc
	guestSeated bool
	engines     int
	done        int
}

func NewRunner(store RoomStore, feed ChangeFeed, q *queue.Queue, bank *questions.Bank, hist history.Inserter, clock clockwork.Clock, cfg RunnerConfig) *Runner {
	return &Runner{
		store:   store,
		feed:    feed,
		queue:   q,
		bank:    bank,
		hist:    hist,
		clock:   clock,
		cfg:     cfg,
		matches: make(map[uuid.UUID]*activeMatch),
	}
}

// EnsureMatch starts (or completes) the arbiter for the room: the host engine
// on first sight, the guest engine once a guest is seated. Idempotent, and
// safe to call before Run; those rooms launch when Run starts.
func (r *Runner) EnsureMatch(room *models.Room) error {
	if room == nil || room.GameStatus == models.GameStatusFinished {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctx == nil {
		r.pending = append(r.pending, *room)
		return nil
	}
	r.ensureLocked(*room)
	return nil
}

// ActiveMatches reports how many rooms currently have an arbiter.
func (r *Runner) ActiveMatches() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matches)
}

// Run launches arbiters for every known active room and blocks until ctx is
// cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if lister, ok := r.store.(ActiveLister); ok {
		rooms, err := lister.ActiveRooms(ctx)
		if err != nil {
			log.Error().Err(err).Msg("failed to list active rooms")
		}
		r.mu.Lock()
		r.pending = append(r.pending, rooms...)
		r.mu.Unlock()
	}

	r.mu.Lock()
	r.ctx = ctx
	pending := r.pending
	r.pending = nil
	for _, room := range pending {
		r.ensureLocked(room)
	}
	count := len(r.matches)
	r.mu.Unlock()

	log.Info().Int("active_rooms", count).Msg("match runner started")
	<-ctx.Done()

	r.mu.Lock()
	for id, m := range r.matches {
		m.cancel()
		delete(r.matches, id)
	}
	r.mu.Unlock()

	log.Info().Msg("match runner stopped")
	return ctx.Err()
}

func (r *Runner) ensureLocked(room models.Room) {
	m := r.matches[room.ID]
	if m == nil {
		ctx, cancel := context.WithCancel(r.ctx)
		m = &activeMatch{ctx: ctx, cancel: cancel}
		r.matches[room.ID] = m
		r.launchLocked(m, room.ID, room.HostID)
		log.Info().
			Str("room_id", room.ID.String()).
			Str("room_code", room.RoomCode).
			Msg("match arbiter started")
	}
	if room.GuestID != nil && !m.guestSeated {
		m.guestSeated = true
		r.launchLocked(m, room.ID, *room.GuestID)
	}
}

func (r *Runner) launchLocked(m *activeMatch, roomID, userID uuid.UUID) {
	m.engines++

	eng := NewEngine(r.store, r.feedFor(), r.queue, r.bank, r.clock, roomID, userID, r.cfg.Engine)
	eng.OnFinished = func(final models.Room) {
		// Rooms expired straight out of waiting never played a question and
		// get no history row.
		if r.hist != nil && final.CurrentQuestionIndex >= 0 {
			history.NewRecorder(r.hist, userID, eng.Breakdown).Record(final)
		}
		r.engineDone(roomID)
	}

	go func() {
		if err := eng.Run(m.ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().
				Err(err).
				Str("room_id", roomID.String()).
				Str("user_id", userID.String()).
				Msg("match engine stopped")
			r.engineDone(roomID)
		}
	}()
}

// engineDone releases the arbiter once every seated engine has observed the
// terminal row (or failed for good).
func (r *Runner) engineDone(roomID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.matches[roomID]
	if m == nil {
		return
	}
	m.done++
	if m.done >= m.engines {
		m.cancel()
		delete(r.matches, roomID)
		log.Info().Str("room_id", roomID.String()).Msg("match arbiter released")
	}
}

// feedFor wraps the change feed with a liveness monitor when one is
// configured, so a dead subscription is detected and re-established with
// bounded backoff instead of silently starving the engine.
func (r *Runner) feedFor() ChangeFeed {
	if r.cfg.NewLiveness == nil {
		return r.feed
	}
	return &monitorFeed{
		inner:    r.feed,
		liveness: r.cfg.NewLiveness(),
		clock:    r.clock,
		interval: r.cfg.LivenessInterval,
	}
}

// monitorFeed decorates a ChangeFeed subscription with liveness tracking.
// Every delivery counts as activity; when the monitor reports the
// subscription stale, the watch loop spends one reconnect attempt per check
// and resubscribes after the backoff delay. An exhausted budget sticks until
// activity is observed again.
type monitorFeed struct {
	inner    ChangeFeed
	liveness Liveness
	clock    clockwork.Clock
	interval time.Duration
}

func (f *monitorFeed) Subscribe(ctx context.Context, roomID uuid.UUID, deliver func(*models.Room)) (func(), error) {
	wrapped := func(room *models.Room) {
		f.liveness.RecordActivity()
		deliver(room)
	}

	stop, err := f.inner.Subscribe(ctx, roomID, wrapped)
	if err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w := &feedWatch{stop: stop}
	go f.watch(watchCtx, roomID, wrapped, w)

	return func() {
		cancel()
		w.Stop()
	}, nil
}

func (f *monitorFeed) watch(ctx context.Context, roomID uuid.UUID, deliver func(*models.Room), w *feedWatch) {
	ticker := f.clock.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			f.checkOnce(ctx, roomID, deliver, w)
		}
	}
}

// checkOnce runs one health check: no-op while the subscription looks alive,
// otherwise one paced resubscription attempt.
func (f *monitorFeed) checkOnce(ctx context.Context, roomID uuid.UUID, deliver func(*models.Room), w *feedWatch) {
	if f.liveness.IsConnected() {
		return
	}

	delay, ok := f.liveness.NextRetry()
	if !ok {
		return
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-f.clock.After(delay):
		}
	}

	w.Stop()
	stop, err := f.inner.Subscribe(ctx, roomID, deliver)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to resubscribe to room feed")
		return
	}
	w.Set(stop)
	log.Info().Str("room_id", roomID.String()).Msg("room feed resubscribed")
}

// feedWatch holds the stop function of the current underlying subscription,
// which resubscription swaps out.
type feedWatch struct {
	mu   sync.Mutex
	stop func()
}

func (w *feedWatch) Stop() {
	w.mu.Lock()
	stop := w.stop
	w.stop = nil
	w.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (w *feedWatch) Set(stop func()) {
	w.mu.Lock()
	w.stop = stop
	w.mu.Unlock()
}
