// Package presence keeps a participant's liveness fields fresh in the store
// and restores them after a network outage. Presence is advisory: nothing in
// the game's phase logic keys off heartbeats alone, and the host's countdown
// timer guarantees forward progress even if every presence write is lost.
package presence

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quizwire/quizwire/go/internal/store"
	"github.com/quizwire/quizwire/go/internal/trivia"
)

// DefaultHeartbeatInterval is how often lastSeen is refreshed while
// connected.
const DefaultHeartbeatInterval = 30 * time.Second

// Coordinator owns the heartbeat loop and the reconnect/disconnect writes
// for one store node. Both roles use it: players point it at their player
// node, the host at the session node.
type Coordinator struct {
	store    store.Store
	clock    clockwork.Clock
	logger   zerolog.Logger
	path     string
	interval time.Duration

	// reattach re-establishes subscriptions after a reconnect. Optional.
	reattach func(ctx context.Context) error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock substitutes the wall clock.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

// WithInterval overrides the heartbeat interval.
func WithInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.interval = d }
}

// WithLogger replaces the default logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithReattach registers the subscription re-establishment hook invoked by
// Reconnect.
func WithReattach(fn func(ctx context.Context) error) Option {
	return func(c *Coordinator) { c.reattach = fn }
}

// New builds a coordinator for the node at path.
func New(st store.Store, path string, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    st,
		clock:    clockwork.NewRealClock(),
		logger:   log.Logger,
		path:     path,
		interval: DefaultHeartbeatInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("path", path).Logger()
	return c
}

// Run refreshes lastSeen on a fixed interval until ctx is cancelled.
// Heartbeat failures are logged and retried on the next tick, never
// surfaced: a missed heartbeat must not take the participant down.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := c.clock.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			c.beat(ctx)
		}
	}
}

func (c *Coordinator) beat(ctx context.Context) {
	now := trivia.NewMillis(c.clock.Now())
	if err := c.store.Merge(ctx, c.path, map[string]store.Value{
		"lastSeen": int64(now),
	}); err != nil {
		c.logger.Warn().Err(err).Msg("heartbeat write failed")
	}
}

// Reconnect restores presence after a network outage and re-establishes
// subscriptions through the reattach hook. Resynchronization is re-read
// plus re-subscribe; there is no cursor to resume from.
func (c *Coordinator) Reconnect(ctx context.Context) error {
	now := trivia.NewMillis(c.clock.Now())
	if err := c.store.Merge(ctx, c.path, map[string]store.Value{
		"connected": true,
		"lastSeen":  int64(now),
	}); err != nil {
		return err
	}
	if c.reattach != nil {
		if err := c.reattach(ctx); err != nil {
			return err
		}
	}
	c.logger.Info().Msg("presence restored")
	return nil
}

// MarkDisconnected writes connected=false best-effort before teardown. The
// write is advisory; an abrupt process kill never sends it and the rest of
// the system tolerates that.
func (c *Coordinator) MarkDisconnected(ctx context.Context) {
	now := trivia.NewMillis(c.clock.Now())
	if err := c.store.Merge(ctx, c.path, map[string]store.Value{
		"connected": false,
		"lastSeen":  int64(now),
	}); err != nil {
		c.logger.Warn().Err(err).Msg("disconnect presence write failed")
	}
}
