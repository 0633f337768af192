// Package host owns game progression for a session. The machine is the
// single writer of session-level phase: it sequences questions, runs the
// countdown-vs-all-answered race, scores reveals, and terminates the game.
//
// The machine is a single logical thread of control. Store subscription
// callbacks and timer expirations become messages in an inbox processed one
// at a time, so every transition decision runs serialized; the explicit
// transition guard protects the one race that spans the timer goroutines and
// the subscription feed.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quizwire/quizwire/go/internal/store"
	"github.com/quizwire/quizwire/go/internal/trivia"
	"github.com/quizwire/quizwire/go/internal/trivia/questions"
	"github.com/quizwire/quizwire/go/internal/trivia/scoring"
)

const (
	// startingCountdown is the local (not store-mediated) delay between the
	// host pressing start and the first question going out.
	startingCountdown = 3 * time.Second

	// revealDisplayDelay is how long results stay up before the next
	// question or game over.
	revealDisplayDelay = 5 * time.Second

	inboxSize = 64
)

// ErrMachineClosed is returned for host actions issued after the game ended
// or the run context was cancelled.
var ErrMachineClosed = errors.New("state machine is not running")

// Result is what the machine hands to a ResultSink when a session completes.
type Result struct {
	Code      string
	Settings  trivia.Settings
	CreatedAt time.Time
	EndedAt   time.Time
	Standings []scoring.Standing
}

// ResultSink receives the final outcome of a finished session. Optional;
// failures are logged and never block the GameOver transition.
type ResultSink interface {
	SaveResult(ctx context.Context, result Result) error
}

type timerKind int

const (
	timerStarting timerKind = iota
	timerQuestion
	timerReveal
)

// message is one unit of work for the inbox loop.
type message struct {
	// exactly one of the following is set
	players   store.Value // players subtree snapshot
	hasPlayer bool
	timer     timerKind
	hasTimer  bool
	ordinal   int
	start     chan error // host "start" action, replied to on the channel
}

// Machine drives one session. Create with New, publish the session with
// Open, then process events with Run.
type Machine struct {
	store    store.Store
	clock    clockwork.Clock
	logger   zerolog.Logger
	sink     ResultSink
	code     string
	settings trivia.Settings
	rounds   []trivia.QuestionRecord

	inbox      chan message
	playersSub store.Subscription
	timers     *timerSet

	// transitioning is the exactly-once guard for Question(n) -> Revealed(n).
	// Both race branches (timer fired, all answered) try to claim it; the
	// loser becomes a no-op. Cancelling the countdown timer is not by itself
	// a sufficient lock because an already-queued expiration can still be
	// sitting in the inbox.
	transitioning atomic.Bool

	// state below is touched only by the Run loop
	phase     trivia.Phase
	createdAt time.Time
	current   *trivia.QuestionRound
	players   map[string]trivia.Player
	scores    map[string]int

	done      chan struct{}
	standings []scoring.Standing
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock substitutes the wall clock, used by tests to drive timers
// deterministically.
func WithClock(clock clockwork.Clock) Option {
	return func(m *Machine) { m.clock = clock }
}

// WithCode pins the session code instead of generating one.
func WithCode(code string) Option {
	return func(m *Machine) { m.code = code }
}

// WithLogger replaces the default logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(m *Machine) { m.logger = logger }
}

// WithResultSink registers a sink for the final result.
func WithResultSink(sink ResultSink) Option {
	return func(m *Machine) { m.sink = sink }
}

// New draws the session's questions and prepares a machine. A source that
// cannot supply settings.TotalQuestions valid records fails here, at
// creation, rather than mid-game.
func New(st store.Store, src questions.Source, settings trivia.Settings, opts ...Option) (*Machine, error) {
	rounds, err := src.Draw(settings.TotalQuestions)
	if err != nil {
		return nil, fmt.Errorf("draw questions: %w", err)
	}

	m := &Machine{
		store:    st,
		clock:    clockwork.NewRealClock(),
		logger:   log.Logger,
		code:     trivia.NewSessionCode(),
		settings: settings,
		rounds:   rounds,
		inbox:    make(chan message, inboxSize),
		players:  make(map[string]trivia.Player),
		scores:   make(map[string]int),
		phase:    trivia.PhaseLobby,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.timers = newTimerSet(m.clock)
	m.logger = m.logger.With().Str("session", m.code).Logger()
	return m, nil
}

// Code returns the session code players join with.
func (m *Machine) Code() string {
	return m.code
}

// Open writes the lobby session node into the store and subscribes to the
// player list. Call before Run.
func (m *Machine) Open(ctx context.Context) error {
	m.createdAt = m.clock.Now()
	session := trivia.Session{
		Code:                 m.code,
		Phase:                trivia.PhaseLobby,
		CreatedAt:            trivia.NewMillis(m.createdAt),
		Settings:             m.settings,
		CurrentQuestionIndex: -1,
	}
	value, err := trivia.Encode(session)
	if err != nil {
		return err
	}
	value["players"] = map[string]any{}
	if err := m.store.Write(ctx, trivia.SessionPath(m.code), value); err != nil {
		return fmt.Errorf("%w: create session: %v", trivia.ErrStoreUnavailable, err)
	}

	sub, err := m.store.Subscribe(trivia.PlayersPath(m.code), func(v store.Value) {
		select {
		case m.inbox <- message{players: v, hasPlayer: true}:
		case <-m.done:
		}
	})
	if err != nil {
		return fmt.Errorf("%w: subscribe players: %v", trivia.ErrStoreUnavailable, err)
	}
	m.playersSub = sub

	m.logger.Info().
		Int("questions", len(m.rounds)).
		Int("duration_sec", m.settings.QuestionDurationSec).
		Msg("session opened")
	return nil
}

// Start triggers Lobby -> Starting. Precondition: at least one connected
// player. Safe to call from any goroutine; the decision runs on the loop.
func (m *Machine) Start(ctx context.Context) error {
	resp := make(chan error, 1)
	select {
	case m.inbox <- message{start: resp}:
	case <-m.done:
		return ErrMachineClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes inbox messages until the game is over or ctx is cancelled.
// On exit all timers are cancelled and the player subscription is torn down.
func (m *Machine) Run(ctx context.Context) error {
	defer func() {
		m.timers.cancelAll()
		if m.playersSub != nil {
			m.playersSub.Unsubscribe()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			m.closeOnce()
			return ctx.Err()
		case msg := <-m.inbox:
			m.dispatch(ctx, msg)
			if m.phase == trivia.PhaseGameOver {
				m.closeOnce()
				return nil
			}
		}
	}
}

// Done is closed when the machine has terminated.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// FinalStandings returns the end-of-game ranking. Valid once Done is closed
// after a completed game.
func (m *Machine) FinalStandings() []scoring.Standing {
	return m.standings
}

func (m *Machine) closeOnce() {
	select {
	case <-m.done:
	default:
		close(m.done)
	}
}

func (m *Machine) dispatch(ctx context.Context, msg message) {
	switch {
	case msg.start != nil:
		msg.start <- m.handleStart(ctx)
	case msg.hasPlayer:
		m.handlePlayers(ctx, msg.players)
	case msg.hasTimer:
		m.handleTimer(ctx, msg.timer, msg.ordinal)
	}
}

func (m *Machine) handleStart(ctx context.Context) error {
	if m.phase != trivia.PhaseLobby {
		return trivia.ErrWrongPhase
	}
	if m.connectedCount() == 0 {
		return trivia.ErrNoPlayers
	}

	if err := m.store.Merge(ctx, trivia.SessionPath(m.code), map[string]store.Value{
		"phase": string(trivia.PhaseStarting),
	}); err != nil {
		return fmt.Errorf("%w: write starting phase: %v", trivia.ErrStoreUnavailable, err)
	}
	m.phase = trivia.PhaseStarting
	m.scheduleTimer(ctx, timerStarting, 0, startingCountdown)
	m.logger.Info().Int("players", m.connectedCount()).Msg("session starting")
	return nil
}

// handlePlayers ingests a fresh snapshot of the player list. Runs on every
// player-node change: joins, answers, presence flips. The all-answered check
// re-evaluates here each time, not only on answer writes, because a
// disconnect can make a previously incomplete answer set trivially complete.
func (m *Machine) handlePlayers(ctx context.Context, value store.Value) {
	players, err := trivia.DecodePlayers(value)
	if err != nil {
		m.logger.Error().Err(err).Msg("malformed players node, keeping previous view")
		return
	}
	m.players = players
	for id, p := range players {
		if _, known := m.scores[id]; !known {
			m.scores[id] = p.Score
			m.logger.Info().Str("player", id).Str("name", p.Name).Msg("player joined")
		}
	}

	if m.phase == trivia.PhaseQuestion && m.allConnectedAnswered() {
		m.finishQuestion(ctx, "all_answered")
	}
}

func (m *Machine) handleTimer(ctx context.Context, kind timerKind, ordinal int) {
	switch kind {
	case timerStarting:
		if m.phase != trivia.PhaseStarting {
			return
		}
		m.beginQuestion(ctx, 0)
	case timerQuestion:
		// A stale expiration can arrive after the all-answered branch won the
		// race or after the game moved on. Ordinal and phase make it a no-op;
		// the transition guard in finishQuestion is the final arbiter.
		if m.phase != trivia.PhaseQuestion || m.current == nil || m.current.Ordinal != ordinal {
			return
		}
		m.finishQuestion(ctx, "timeout")
	case timerReveal:
		if m.phase != trivia.PhaseRevealed || m.current == nil || m.current.Ordinal != ordinal {
			return
		}
		if next := ordinal + 1; next < len(m.rounds) {
			m.beginQuestion(ctx, next)
		} else {
			m.gameOver(ctx)
		}
	}
}

// beginQuestion publishes round n and resets every known player's answer
// fields in the same merge, so readers observe the new question and the
// cleared answers as one change.
func (m *Machine) beginQuestion(ctx context.Context, n int) {
	rec := m.rounds[n]
	round := trivia.QuestionRound{
		QuestionID:    rec.ID,
		Prompt:        rec.Prompt,
		Options:       rec.Options,
		CorrectOption: rec.CorrectOption,
		StartedAt:     trivia.NewMillis(m.clock.Now()),
		Revealed:      false,
		Ordinal:       n,
	}
	encoded, err := trivia.Encode(round)
	if err != nil {
		m.logger.Error().Err(err).Msg("encode question round")
		return
	}

	partial := map[string]store.Value{
		"phase":                string(trivia.PhaseQuestion),
		"currentQuestionIndex": n,
		"currentQuestion":      encoded,
	}
	for id := range m.players {
		partial["players/"+id+"/currentAnswer"] = nil
		partial["players/"+id+"/answerSubmittedAt"] = nil
	}
	if err := m.store.Merge(ctx, trivia.SessionPath(m.code), partial); err != nil {
		m.logger.Error().Err(err).Int("ordinal", n).Msg("publish question failed")
	}

	m.phase = trivia.PhaseQuestion
	m.current = &round
	m.transitioning.Store(false)
	m.scheduleTimer(ctx, timerQuestion, n, time.Duration(m.settings.QuestionDurationSec)*time.Second)

	m.logger.Info().
		Int("ordinal", n).
		Str("question", round.QuestionID).
		Msg("question started")
}

// finishQuestion enters Revealed(n) exactly once, whichever trigger won.
func (m *Machine) finishQuestion(ctx context.Context, reason string) {
	if !m.transitioning.CompareAndSwap(false, true) {
		m.logger.Debug().Str("reason", reason).Msg("reveal already in progress, ignoring trigger")
		return
	}
	m.timers.cancelAll()

	q := *m.current
	partial := map[string]store.Value{
		"phase":                    string(trivia.PhaseRevealed),
		"currentQuestion/revealed": true,
		// restated so a stale client cannot check answers against an older
		// question node
		"currentQuestion/correctOption": q.CorrectOption,
	}
	for id, p := range m.players {
		points := scoring.Score(q, p.CurrentAnswer, p.AnswerSubmittedAt, m.settings)
		m.scores[id] += points
		partial["players/"+id+"/score"] = m.scores[id]
	}
	if err := m.store.Merge(ctx, trivia.SessionPath(m.code), partial); err != nil {
		m.logger.Error().Err(err).Int("ordinal", q.Ordinal).Msg("reveal merge failed")
	}

	m.phase = trivia.PhaseRevealed
	m.current.Revealed = true
	m.scheduleTimer(ctx, timerReveal, q.Ordinal, revealDisplayDelay)

	m.logger.Info().
		Int("ordinal", q.Ordinal).
		Str("reason", reason).
		Msg("question revealed")
}

func (m *Machine) gameOver(ctx context.Context) {
	endedAt := m.clock.Now()
	if err := m.store.Merge(ctx, trivia.SessionPath(m.code), map[string]store.Value{
		"phase":   string(trivia.PhaseGameOver),
		"endedAt": int64(trivia.NewMillis(endedAt)),
	}); err != nil {
		m.logger.Error().Err(err).Msg("game over merge failed")
	}

	m.phase = trivia.PhaseGameOver
	m.current = nil
	m.timers.cancelAll()
	m.standings = scoring.Rank(m.rankedPlayers())

	if m.sink != nil {
		result := Result{
			Code:      m.code,
			Settings:  m.settings,
			CreatedAt: m.createdAt,
			EndedAt:   endedAt,
			Standings: m.standings,
		}
		if err := m.sink.SaveResult(ctx, result); err != nil {
			m.logger.Warn().Err(err).Msg("result archive failed")
		}
	}

	m.logger.Info().Int("players", len(m.players)).Msg("game over")
}

// rankedPlayers overlays the host-authoritative score totals onto the last
// observed player nodes. Scores never regress even if a stale player
// snapshot is in hand.
func (m *Machine) rankedPlayers() map[string]trivia.Player {
	out := make(map[string]trivia.Player, len(m.players))
	for id, p := range m.players {
		p.Score = m.scores[id]
		out[id] = p
	}
	return out
}

func (m *Machine) connectedCount() int {
	n := 0
	for _, p := range m.players {
		if p.Connected {
			n++
		}
	}
	return n
}

// allConnectedAnswered fires only when at least one player is connected; an
// empty set is never "complete". Disconnected players do not hold the round
// open, and the countdown timer remains the backstop when presence tracking
// fails entirely.
func (m *Machine) allConnectedAnswered() bool {
	connected := 0
	for _, p := range m.players {
		if !p.Connected {
			continue
		}
		connected++
		if !p.HasAnswered() {
			return false
		}
	}
	return connected > 0
}

func (m *Machine) scheduleTimer(ctx context.Context, kind timerKind, ordinal int, d time.Duration) {
	m.timers.schedule(ctx, d, func() {
		select {
		case m.inbox <- message{hasTimer: true, timer: kind, ordinal: ordinal}:
		case <-ctx.Done():
		}
	})
}
