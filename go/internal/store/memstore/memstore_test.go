package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizwire/quizwire/go/internal/store"
)

func collect(t *testing.T, s *Store, path string) (<-chan store.Value, store.Subscription) {
	t.Helper()
	ch := make(chan store.Value, 64)
	sub, err := s.Subscribe(path, func(v store.Value) {
		ch <- v
	})
	require.NoError(t, err)
	return ch, sub
}

func next(t *testing.T, ch <-chan store.Value) store.Value {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification")
		return nil
	}
}

func TestWriteThenRead(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "sessions/ABC123", map[string]any{"phase": "LOBBY"}))

	v, ok, err := s.Read(ctx, "sessions/ABC123/phase")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "LOBBY", v)

	_, ok, err = s.Read(ctx, "sessions/MISSING")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLastWriterWins(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "sessions/X/phase", "LOBBY"))
	require.NoError(t, s.Write(ctx, "sessions/X/phase", "STARTING"))

	v, ok, _ := s.Read(ctx, "sessions/X/phase")
	require.True(t, ok)
	assert.Equal(t, "STARTING", v)
}

func TestSubscribeDeliversSnapshotFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "sessions/X", map[string]any{"phase": "LOBBY"}))

	ch, sub := collect(t, s, "sessions/X/phase")
	defer sub.Unsubscribe()

	assert.Equal(t, "LOBBY", next(t, ch))
}

func TestSubscriberSeesDescendantWrites(t *testing.T) {
	s := New()
	ctx := context.Background()

	ch, sub := collect(t, s, "sessions/X")
	defer sub.Unsubscribe()
	next(t, ch) // initial nil snapshot

	require.NoError(t, s.Write(ctx, "sessions/X/players/p1", map[string]any{"name": "ada"}))

	v := next(t, ch)
	tree, ok := v.(map[string]any)
	require.True(t, ok)
	players := tree["players"].(map[string]any)
	p1 := players["p1"].(map[string]any)
	assert.Equal(t, "ada", p1["name"])
}

func TestMergeIsAtomicPerSubscriber(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "sessions/X", map[string]any{
		"phase":   "QUESTION",
		"players": map[string]any{"p1": map[string]any{"currentAnswer": "Paris"}},
	}))

	ch, sub := collect(t, s, "sessions/X")
	defer sub.Unsubscribe()
	next(t, ch)

	// One merge touching two independent locations must arrive as one
	// notification with both applied.
	require.NoError(t, s.Merge(ctx, "sessions/X", map[string]store.Value{
		"phase":                    "REVEALED",
		"players/p1/currentAnswer": nil,
	}))

	v := next(t, ch).(map[string]any)
	assert.Equal(t, "REVEALED", v["phase"])
	p1 := v["players"].(map[string]any)["p1"].(map[string]any)
	_, hasAnswer := p1["currentAnswer"]
	assert.False(t, hasAnswer)

	// Nothing else queued: both locations produced a single delivery.
	select {
	case extra := <-ch:
		t.Fatalf("unexpected second notification: %v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPerPathOrderedDelivery(t *testing.T) {
	s := New()
	ctx := context.Background()

	ch, sub := collect(t, s, "counter")
	defer sub.Unsubscribe()
	next(t, ch)

	const n = 100
	for i := 0; i < n; i++ {
		require.NoError(t, s.Write(ctx, "counter", float64(i)))
	}
	for i := 0; i < n; i++ {
		assert.Equal(t, float64(i), next(t, ch))
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	s := New()
	ctx := context.Background()

	ch, sub := collect(t, s, "sessions/X")
	next(t, ch)
	sub.Unsubscribe()

	require.NoError(t, s.Write(ctx, "sessions/X", map[string]any{"phase": "LOBBY"}))

	select {
	case v := <-ch:
		t.Fatalf("delivery after unsubscribe: %v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNilWriteDeletes(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "sessions/X/players/p1", map[string]any{"name": "ada"}))
	require.NoError(t, s.Write(ctx, "sessions/X/players/p1", nil))

	_, ok, err := s.Read(ctx, "sessions/X/players/p1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "sessions/X", map[string]any{"phase": "LOBBY"}))

	v, _, _ := s.Read(ctx, "sessions/X")
	v.(map[string]any)["phase"] = "MUTATED"

	again, _, _ := s.Read(ctx, "sessions/X")
	assert.Equal(t, "LOBBY", again.(map[string]any)["phase"])
}
