package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizwire/quizwire/go/internal/store"
	"github.com/quizwire/quizwire/go/internal/store/memstore"
	"github.com/quizwire/quizwire/go/internal/trivia"
)

const code = "ABC123"

func writeSession(t *testing.T, st store.Store, phase trivia.Phase, settings trivia.Settings) {
	t.Helper()
	session := trivia.Session{
		Code:                 code,
		Phase:                phase,
		CreatedAt:            trivia.NewMillis(time.Now()),
		Settings:             settings,
		CurrentQuestionIndex: -1,
	}
	value, err := trivia.Encode(session)
	require.NoError(t, err)
	value["players"] = map[string]any{}
	require.NoError(t, st.Write(context.Background(), trivia.SessionPath(code), value))
}

func publishQuestion(t *testing.T, st store.Store, round trivia.QuestionRound) {
	t.Helper()
	encoded, err := trivia.Encode(round)
	require.NoError(t, err)
	require.NoError(t, st.Merge(context.Background(), trivia.SessionPath(code), map[string]store.Value{
		"phase":           string(trivia.PhaseQuestion),
		"currentQuestion": encoded,
	}))
}

func openRound(ordinal int) trivia.QuestionRound {
	return trivia.QuestionRound{
		QuestionID:    "q1",
		Prompt:        "What is the capital of France?",
		Options:       []string{"Berlin", "Paris", "Rome", "Madrid"},
		CorrectOption: "Paris",
		StartedAt:     trivia.NewMillis(time.Now()),
		Ordinal:       ordinal,
	}
}

func waitAnswerable(t *testing.T, c *Client) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.View().Answerable
	}, 2*time.Second, 5*time.Millisecond)
}

func TestJoinRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()

	_, err := Join(ctx, st, "short", "ada")
	require.ErrorIs(t, err, trivia.ErrInvalidInput)

	_, err = Join(ctx, st, code, "a")
	require.ErrorIs(t, err, trivia.ErrInvalidInput)

	_, err = Join(ctx, st, code, "this name is far too long to be allowed")
	require.ErrorIs(t, err, trivia.ErrInvalidInput)
}

func TestJoinSessionNotFound(t *testing.T) {
	_, err := Join(context.Background(), memstore.New(), code, "ada")
	require.ErrorIs(t, err, trivia.ErrSessionNotFound)
}

func TestJoinAfterStart(t *testing.T) {
	st := memstore.New()
	writeSession(t, st, trivia.PhaseQuestion, trivia.DefaultSettings())

	_, err := Join(context.Background(), st, code, "ada")
	require.ErrorIs(t, err, trivia.ErrAlreadyStarted)
}

func TestJoinNameTakenCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	writeSession(t, st, trivia.PhaseLobby, trivia.DefaultSettings())

	first, err := Join(ctx, st, code, "Ada")
	require.NoError(t, err)
	defer first.Leave(ctx)

	_, err = Join(ctx, st, code, "ada")
	require.ErrorIs(t, err, trivia.ErrNameTaken)
}

func TestJoinFull(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	settings := trivia.DefaultSettings()
	settings.MaxPlayers = 1
	writeSession(t, st, trivia.PhaseLobby, settings)

	first, err := Join(ctx, st, code, "ada")
	require.NoError(t, err)
	defer first.Leave(ctx)

	_, err = Join(ctx, st, code, "grace")
	require.ErrorIs(t, err, trivia.ErrSessionFull)
}

func TestSubmitIsAtMostOncePerOrdinal(t *testing.T) {
	ctx := context.Background()
	cs := &countingStore{Store: memstore.New()}
	writeSession(t, cs, trivia.PhaseLobby, trivia.DefaultSettings())

	c, err := Join(ctx, cs, code, "ada")
	require.NoError(t, err)
	defer c.Leave(ctx)

	publishQuestion(t, cs, openRound(0))
	waitAnswerable(t, c)

	require.NoError(t, c.Submit(ctx, "Paris"))
	require.ErrorIs(t, c.Submit(ctx, "Rome"), trivia.ErrAlreadyAnswered)

	// only the first answer persisted
	v, ok, err := cs.Read(ctx, c.PlayerPath()+"/currentAnswer")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Paris", v)
	assert.Equal(t, 1, cs.answerMerges(), "second submit never reached the store")

	// a new ordinal opens submission again
	publishQuestion(t, cs, openRound(1))
	require.Eventually(t, func() bool {
		view := c.View()
		return view.Round != nil && view.Round.Ordinal == 1 && view.Answerable
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Submit(ctx, "Rome"))
}

func TestSubmitWrongPhase(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	writeSession(t, st, trivia.PhaseLobby, trivia.DefaultSettings())

	c, err := Join(ctx, st, code, "ada")
	require.NoError(t, err)
	defer c.Leave(ctx)

	require.ErrorIs(t, c.Submit(ctx, "Paris"), trivia.ErrWrongPhase)
}

func TestSubmitAfterRevealIsWrongPhase(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	writeSession(t, st, trivia.PhaseLobby, trivia.DefaultSettings())

	c, err := Join(ctx, st, code, "ada")
	require.NoError(t, err)
	defer c.Leave(ctx)

	round := openRound(0)
	round.Revealed = true
	encoded, err := trivia.Encode(round)
	require.NoError(t, err)
	require.NoError(t, st.Merge(ctx, trivia.SessionPath(code), map[string]store.Value{
		"phase":           string(trivia.PhaseRevealed),
		"currentQuestion": encoded,
	}))

	require.Eventually(t, func() bool {
		return c.View().Round != nil
	}, 2*time.Second, 5*time.Millisecond)
	require.ErrorIs(t, c.Submit(ctx, "Paris"), trivia.ErrWrongPhase)
}

func TestSubmitRollbackOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	fs := &flakyStore{Store: memstore.New()}
	writeSession(t, fs, trivia.PhaseLobby, trivia.DefaultSettings())

	c, err := Join(ctx, fs, code, "ada")
	require.NoError(t, err)
	defer c.Leave(ctx)

	publishQuestion(t, fs, openRound(0))
	waitAnswerable(t, c)

	fs.fail(true)
	err = c.Submit(ctx, "Paris")
	require.ErrorIs(t, err, trivia.ErrStoreUnavailable)

	// guard rolled back: retry is possible and succeeds
	fs.fail(false)
	require.NoError(t, c.Submit(ctx, "Paris"))
	require.ErrorIs(t, c.Submit(ctx, "Paris"), trivia.ErrAlreadyAnswered)
}

func TestRevealedRoundIsResultViewOnFirstPaint(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	writeSession(t, st, trivia.PhaseLobby, trivia.DefaultSettings())

	c, err := Join(ctx, st, code, "ada")
	require.NoError(t, err)
	defer c.Leave(ctx)

	// the round is already revealed when it first reaches this client
	round := openRound(0)
	round.Revealed = true
	encoded, err := trivia.Encode(round)
	require.NoError(t, err)
	require.NoError(t, st.Merge(ctx, trivia.SessionPath(code), map[string]store.Value{
		"phase":           string(trivia.PhaseRevealed),
		"currentQuestion": encoded,
	}))

	require.Eventually(t, func() bool {
		view := c.View()
		return view.Round != nil && view.ShowResult
	}, 2*time.Second, 5*time.Millisecond)
	view := c.View()
	assert.False(t, view.Answerable, "revealed round must never render answerable")
	assert.Equal(t, "Paris", view.Round.CorrectOption)
}

func TestResubscribeReconcilesAnswerGuard(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	writeSession(t, st, trivia.PhaseLobby, trivia.DefaultSettings())

	c, err := Join(ctx, st, code, "ada")
	require.NoError(t, err)
	defer c.Leave(ctx)

	publishQuestion(t, st, openRound(0))
	waitAnswerable(t, c)
	require.NoError(t, c.Submit(ctx, "Paris"))

	require.NoError(t, c.Resubscribe(ctx))

	// presence restored
	v, ok, err := st.Read(ctx, c.PlayerPath()+"/connected")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, true, v)

	// the persisted answer still counts; no double submission after resync
	require.Eventually(t, func() bool {
		return c.View().Round != nil
	}, 2*time.Second, 5*time.Millisecond)
	require.ErrorIs(t, c.Submit(ctx, "Rome"), trivia.ErrAlreadyAnswered)
}

func TestLeaveWritesDisconnected(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	writeSession(t, st, trivia.PhaseLobby, trivia.DefaultSettings())

	c, err := Join(ctx, st, code, "ada")
	require.NoError(t, err)
	c.Leave(ctx)

	v, ok, err := st.Read(ctx, c.PlayerPath()+"/connected")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, false, v)
}

// countingStore counts answer merges reaching the store.
type countingStore struct {
	store.Store

	mu    sync.Mutex
	count int
}

func (c *countingStore) Merge(ctx context.Context, path string, partial map[string]store.Value) error {
	c.mu.Lock()
	if _, ok := partial["currentAnswer"]; ok {
		c.count++
	}
	c.mu.Unlock()
	return c.Store.Merge(ctx, path, partial)
}

func (c *countingStore) answerMerges() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// flakyStore fails merges on demand.
type flakyStore struct {
	store.Store

	mu      sync.Mutex
	failing bool
}

func (f *flakyStore) fail(on bool) {
	f.mu.Lock()
	f.failing = on
	f.mu.Unlock()
}

func (f *flakyStore) Merge(ctx context.Context, path string, partial map[string]store.Value) error {
	f.mu.Lock()
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return errors.New("connection reset")
	}
	return f.Store.Merge(ctx, path, partial)
}
