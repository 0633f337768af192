// Package player implements the player role: joining a session, at-most-once
// answer submission, and a local view kept in sync with whatever phase the
// session is actually in. The player never computes correctness locally; the
// host's reveal write is the single source of truth for answers and scores.
package player

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quizwire/quizwire/go/internal/store"
	"github.com/quizwire/quizwire/go/internal/trivia"
)

const noAnswer = -1

// Client is one player's connection to a session. All exported methods are
// safe for concurrent use; store callbacks serialize against them through
// the client mutex.
type Client struct {
	store  store.Store
	clock  clockwork.Clock
	logger zerolog.Logger

	code string
	id   string
	name string

	mu sync.Mutex
	// local mirror of store state
	phase trivia.Phase
	round *trivia.QuestionRound
	// answeredOrdinal is the at-most-once submission guard: set synchronously
	// before the store write so rapid duplicate input cannot double-submit,
	// rolled back if the write fails so a retry stays possible.
	answeredOrdinal int
	selected        *string

	subs     []store.Subscription
	onChange func(View)
}

// Option configures a Client.
type Option func(*Client)

// WithClock substitutes the wall clock.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithLogger replaces the default logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithPlayerID pins the player identifier instead of generating one.
func WithPlayerID(id string) Option {
	return func(c *Client) { c.id = id }
}

// WithOnChange registers a callback invoked with a fresh View after every
// local state change. Called from subscription goroutines, one at a time.
func WithOnChange(fn func(View)) Option {
	return func(c *Client) { c.onChange = fn }
}

// Join validates inputs, registers the player in the session, and subscribes
// to the question and phase nodes. Join failures are user-visible and
// non-retryable without changing input, except store failures which wrap
// ErrStoreUnavailable.
func Join(ctx context.Context, st store.Store, code, name string, opts ...Option) (*Client, error) {
	if err := trivia.ValidateCode(code); err != nil {
		return nil, err
	}
	if err := trivia.ValidateName(name); err != nil {
		return nil, err
	}

	c := &Client{
		store:           st,
		clock:           clockwork.NewRealClock(),
		logger:          log.Logger,
		code:            code,
		name:            name,
		answeredOrdinal: noAnswer,
		phase:           trivia.PhaseLobby,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.id == "" {
		c.id = trivia.NewPlayerID()
	}
	c.logger = c.logger.With().Str("session", code).Str("player", c.id).Logger()

	sessionValue, ok, err := st.Read(ctx, trivia.SessionPath(code))
	if err != nil {
		return nil, fmt.Errorf("%w: read session: %v", trivia.ErrStoreUnavailable, err)
	}
	if !ok {
		return nil, trivia.ErrSessionNotFound
	}
	var session trivia.Session
	if err := trivia.Decode(sessionValue, &session); err != nil {
		return nil, fmt.Errorf("malformed session node: %w", err)
	}
	if session.Phase != trivia.PhaseLobby {
		return nil, trivia.ErrAlreadyStarted
	}

	playersValue, _, err := st.Read(ctx, trivia.PlayersPath(code))
	if err != nil {
		return nil, fmt.Errorf("%w: read players: %v", trivia.ErrStoreUnavailable, err)
	}
	players, err := trivia.DecodePlayers(playersValue)
	if err != nil {
		return nil, fmt.Errorf("malformed players node: %w", err)
	}
	if session.Settings.MaxPlayers > 0 && len(players) >= session.Settings.MaxPlayers {
		return nil, trivia.ErrSessionFull
	}
	normalized := trivia.NormalizeName(name)
	for _, p := range players {
		if trivia.NormalizeName(p.Name) == normalized {
			return nil, trivia.ErrNameTaken
		}
	}

	now := trivia.NewMillis(c.clock.Now())
	node, err := trivia.Encode(trivia.Player{
		ID:        c.id,
		Name:      name,
		Score:     0,
		Connected: true,
		JoinedAt:  now,
		LastSeen:  now,
	})
	if err != nil {
		return nil, err
	}
	if err := st.Write(ctx, trivia.PlayerPath(code, c.id), node); err != nil {
		return nil, fmt.Errorf("%w: register player: %v", trivia.ErrStoreUnavailable, err)
	}

	if err := c.attach(); err != nil {
		return nil, err
	}
	c.logger.Info().Str("name", name).Msg("joined session")
	return c, nil
}

// ID returns the generated player identifier.
func (c *Client) ID() string {
	return c.id
}

// PlayerPath is the store node this player owns.
func (c *Client) PlayerPath() string {
	return trivia.PlayerPath(c.code, c.id)
}

// attach establishes the question and phase subscriptions.
func (c *Client) attach() error {
	questionSub, err := c.store.Subscribe(trivia.QuestionPath(c.code), c.onQuestion)
	if err != nil {
		return fmt.Errorf("%w: subscribe question: %v", trivia.ErrStoreUnavailable, err)
	}
	phaseSub, err := c.store.Subscribe(trivia.PhasePath(c.code), c.onPhase)
	if err != nil {
		questionSub.Unsubscribe()
		return fmt.Errorf("%w: subscribe phase: %v", trivia.ErrStoreUnavailable, err)
	}

	c.mu.Lock()
	c.subs = append(c.subs, questionSub, phaseSub)
	c.mu.Unlock()
	return nil
}

// Submit sends the player's answer for the current question. At most one
// submission succeeds per question ordinal; later calls return
// ErrAlreadyAnswered without touching the store. A store failure rolls the
// local guard back so the player can retry.
func (c *Client) Submit(ctx context.Context, option string) error {
	c.mu.Lock()
	if c.phase != trivia.PhaseQuestion || c.round == nil || c.round.Revealed {
		c.mu.Unlock()
		return trivia.ErrWrongPhase
	}
	ordinal := c.round.Ordinal
	if c.answeredOrdinal == ordinal {
		c.mu.Unlock()
		return trivia.ErrAlreadyAnswered
	}
	c.answeredOrdinal = ordinal
	c.selected = &option
	c.mu.Unlock()

	now := trivia.NewMillis(c.clock.Now())
	err := c.store.Merge(ctx, c.PlayerPath(), map[string]store.Value{
		"currentAnswer":     option,
		"answerSubmittedAt": int64(now),
	})
	if err != nil {
		c.mu.Lock()
		if c.answeredOrdinal == ordinal {
			c.answeredOrdinal = noAnswer
			c.selected = nil
		}
		c.mu.Unlock()
		return fmt.Errorf("%w: submit answer: %v", trivia.ErrStoreUnavailable, err)
	}

	c.logger.Debug().Int("ordinal", ordinal).Str("answer", option).Msg("answer submitted")
	c.notify()
	return nil
}

// onQuestion ingests the current question node. Deliveries are checked for
// the revealed flag before offering interaction: a player subscribing
// mid-question to an already-revealed round renders the result view on first
// paint, never an answerable prompt.
func (c *Client) onQuestion(v store.Value) {
	var round *trivia.QuestionRound
	if v != nil {
		round = &trivia.QuestionRound{}
		if err := trivia.Decode(v, round); err != nil {
			c.logger.Error().Err(err).Msg("malformed question node, ignoring")
			return
		}
	}

	c.mu.Lock()
	previous := c.round
	c.round = round
	if round != nil && (previous == nil || previous.Ordinal != round.Ordinal) {
		// fresh question: clear local selection unless it was ours for this
		// very ordinal (reconnect reconciliation sets that up)
		if c.answeredOrdinal != round.Ordinal {
			c.selected = nil
		}
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Client) onPhase(v store.Value) {
	phase, ok := v.(string)
	if !ok {
		return
	}
	p := trivia.Phase(phase)
	if !p.Valid() {
		c.logger.Warn().Str("phase", phase).Msg("unknown phase value, ignoring")
		return
	}
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
	c.notify()
}

// Resubscribe tears down and re-establishes subscriptions after a network
// restore, refreshes presence, and reconciles the local answer guard against
// whatever is actually in the store. There is no saved cursor to resume
// from; resynchronization is re-read plus re-subscribe.
func (c *Client) Resubscribe(ctx context.Context) error {
	c.mu.Lock()
	old := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, sub := range old {
		sub.Unsubscribe()
	}

	now := trivia.NewMillis(c.clock.Now())
	if err := c.store.Merge(ctx, c.PlayerPath(), map[string]store.Value{
		"connected": true,
		"lastSeen":  int64(now),
	}); err != nil {
		return fmt.Errorf("%w: presence restore: %v", trivia.ErrStoreUnavailable, err)
	}

	// reconcile the at-most-once guard with persisted state before handlers
	// start delivering, so a submission that survived the outage is not
	// repeated
	ownValue, ok, err := c.store.Read(ctx, c.PlayerPath())
	if err != nil {
		return fmt.Errorf("%w: read own node: %v", trivia.ErrStoreUnavailable, err)
	}
	questionValue, hasQuestion, err := c.store.Read(ctx, trivia.QuestionPath(c.code))
	if err != nil {
		return fmt.Errorf("%w: read question: %v", trivia.ErrStoreUnavailable, err)
	}

	c.mu.Lock()
	c.answeredOrdinal = noAnswer
	c.selected = nil
	if ok && hasQuestion {
		var own trivia.Player
		var round trivia.QuestionRound
		if trivia.Decode(ownValue, &own) == nil && trivia.Decode(questionValue, &round) == nil {
			if own.CurrentAnswer != nil {
				c.answeredOrdinal = round.Ordinal
				c.selected = own.CurrentAnswer
			}
		}
	}
	c.mu.Unlock()

	if err := c.attach(); err != nil {
		return err
	}
	c.logger.Info().Msg("resubscribed after reconnect")
	return nil
}

// Leave marks the player disconnected and tears down subscriptions. The
// presence write is best-effort: an abrupt process kill never sends it, and
// the session must survive that.
func (c *Client) Leave(ctx context.Context) {
	now := trivia.NewMillis(c.clock.Now())
	if err := c.store.Merge(ctx, c.PlayerPath(), map[string]store.Value{
		"connected": false,
		"lastSeen":  int64(now),
	}); err != nil {
		c.logger.Warn().Err(err).Msg("disconnect presence write failed")
	}

	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

func (c *Client) notify() {
	if c.onChange == nil {
		return
	}
	c.onChange(c.View())
}
