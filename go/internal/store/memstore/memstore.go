// Package memstore is an in-process implementation of the session store.
// It backs every test in the engine and single-process demos. Semantics
// mirror the replicated backend: last writer wins, per-path in-order
// delivery per subscriber, initial snapshot on subscribe.
package memstore

import (
	"context"
	"strings"
	"sync"

	"github.com/quizwire/quizwire/go/internal/store"
)

// Store is a last-writer-wins key tree held in memory.
type Store struct {
	mu     sync.Mutex
	root   map[string]any
	subs   map[int]*subscriber
	nextID int
}

// New returns an empty store.
func New() *Store {
	return &Store{
		root: make(map[string]any),
		subs: make(map[int]*subscriber),
	}
}

// subscriber owns an unbounded mailbox drained by a dedicated goroutine.
// Writers enqueue under the store lock so every subscriber observes writes in
// the same order; a slow handler delays only its own subscription.
type subscriber struct {
	id    int
	path  []string
	fn    store.Handler
	owner *Store

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []store.Value
	closed bool
}

func (s *subscriber) push(v store.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, v)
	s.cond.Signal()
}

func (s *subscriber) run() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		v := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.fn(v)
	}
}

// Unsubscribe stops delivery. Queued but undelivered notifications are
// dropped.
func (s *subscriber) Unsubscribe() {
	s.owner.mu.Lock()
	delete(s.owner.subs, s.id)
	s.owner.mu.Unlock()

	s.mu.Lock()
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()
}

// Read returns a deep copy of the subtree at path.
func (s *Store) Read(ctx context.Context, path string) (store.Value, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := getPath(s.root, splitPath(path))
	if !ok {
		return nil, false, nil
	}
	return deepCopy(v), true, nil
}

// Write replaces the subtree at path and notifies affected subscribers.
func (s *Store) Write(ctx context.Context, path string, value store.Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	segs := splitPath(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	setPath(s.root, segs, deepCopy(value))
	s.notifyLocked([][]string{segs})
	return nil
}

// Merge applies a multi-location update under path. All locations mutate
// under one lock hold and each affected subscriber receives exactly one
// notification carrying the post-merge snapshot.
func (s *Store) Merge(ctx context.Context, path string, partial map[string]store.Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	base := splitPath(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := make([][]string, 0, len(partial))
	for rel, v := range partial {
		full := append(append([]string{}, base...), splitPath(rel)...)
		setPath(s.root, full, deepCopy(v))
		changed = append(changed, full)
	}
	s.notifyLocked(changed)
	return nil
}

// Subscribe registers fn and delivers the current snapshot as the first
// notification.
func (s *Store) Subscribe(path string, fn store.Handler) (store.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &subscriber{
		id:    s.nextID,
		path:  splitPath(path),
		fn:    fn,
		owner: s,
	}
	sub.cond = sync.NewCond(&sub.mu)
	s.nextID++
	s.subs[sub.id] = sub
	go sub.run()

	v, _ := getPath(s.root, sub.path)
	sub.push(deepCopy(v))
	return sub, nil
}

// notifyLocked pushes post-change snapshots to every subscriber whose path
// overlaps one of the changed paths. Called with s.mu held. A subscriber
// matched by several locations of one merge is notified once.
func (s *Store) notifyLocked(changed [][]string) {
	notified := make(map[int]bool)
	for _, sub := range s.subs {
		if notified[sub.id] {
			continue
		}
		for _, ch := range changed {
			if pathsOverlap(sub.path, ch) {
				v, _ := getPath(s.root, sub.path)
				sub.push(deepCopy(v))
				notified[sub.id] = true
				break
			}
		}
	}
}

// pathsOverlap reports whether one path is a prefix of the other: a write at
// either location changes the value visible at the other.
func pathsOverlap(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// getPath walks the tree without mutating it.
func getPath(root map[string]any, segs []string) (any, bool) {
	if len(segs) == 0 {
		return root, true
	}
	cur := any(root)
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// setPath replaces the subtree at segs, creating intermediate maps. A nil
// value deletes the leaf.
func setPath(root map[string]any, segs []string, value any) {
	if len(segs) == 0 {
		return
	}
	cur := root
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
	leaf := segs[len(segs)-1]
	if value == nil {
		delete(cur, leaf)
		return
	}
	cur[leaf] = value
}

func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = deepCopy(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = deepCopy(child)
		}
		return out
	default:
		return v
	}
}
