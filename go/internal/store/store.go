// Package store defines the replicated session store consumed by the trivia
// engine: a last-writer-wins key tree with push-based subscriptions. Writes
// propagate to every subscriber, including the writer. Delivery is in order
// per path per subscriber; there is no ordering guarantee across independent
// paths, which is why multi-location updates go through a single Merge.
package store

import "context"

// Value is a JSON-shaped value tree: map[string]any, []any, string,
// json.Number/float64, bool, or nil.
type Value = any

// Handler receives the value at the subscribed path. It is invoked once with
// the current value immediately after subscribing and then on every
// subsequent change, one call at a time per subscription.
type Handler func(value Value)

// Subscription identifies an active subscription.
type Subscription interface {
	// Unsubscribe stops delivery. Safe to call more than once.
	Unsubscribe()
}

// Store is the replicated key-tree consumed by hosts and players. Paths are
// slash-separated, e.g. "sessions/ABC123/players/p1".
type Store interface {
	// Read returns the value at path, with ok=false when the path is absent.
	Read(ctx context.Context, path string) (Value, bool, error)

	// Write replaces the subtree at path. A nil value deletes it.
	Write(ctx context.Context, path string, value Value) error

	// Merge applies a multi-location update rooted at path. Each key in
	// partial is a field name or a slash-separated relative path; each entry
	// replaces the value at its location, nil deleting it. All entries are
	// applied atomically from the readers' point of view: a subscriber
	// observes either none or all of them.
	Merge(ctx context.Context, path string, partial map[string]Value) error

	// Subscribe registers fn for changes at or below path. Writes to a
	// descendant of path notify with the subtree at path; writes to an
	// ancestor notify when they cover path.
	Subscribe(path string, fn Handler) (Subscription, error)
}
