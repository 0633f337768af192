// Package natsstore implements the session store on a NATS JetStream
// key/value bucket. Each session lives under one KV key (the session code)
// as a single JSON document; writes are compare-and-swap on the key's
// revision, so concurrent merges from host and players serialize without a
// coordinator. Watch on the key fans changes out to path subscribers.
package natsstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/quizwire/quizwire/go/internal/store"
)

const (
	// maxCASRetries bounds the read-modify-write loop under contention. Games
	// have a handful of writers, so conflicts resolve in one or two rounds.
	maxCASRetries = 8

	natsMaxReconnects = -1
	natsReconnectWait = 2 * time.Second
)

// Config selects the NATS endpoint and the KV bucket holding sessions.
type Config struct {
	URL    string
	Bucket string
}

// Store is a session store backed by a JetStream KV bucket.
type Store struct {
	nc     *nats.Conn
	kv     jetstream.KeyValue
	logger zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger replaces the default logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Connect dials NATS, ensures the bucket exists, and returns the store.
func Connect(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	s := &Store{logger: log.Logger}
	for _, opt := range opts {
		opt(s)
	}

	natsOpts := []nats.Option{
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			s.logger.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			s.logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			s.logger.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "trivia session documents",
		History:     1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create KV bucket: %w", err)
	}

	s.nc = nc
	s.kv = kv
	s.logger = s.logger.With().Str("bucket", cfg.Bucket).Logger()
	s.logger.Info().Str("url", cfg.URL).Msg("session store connected")
	return s, nil
}

// Close drops the NATS connection. Outstanding subscriptions stop delivering.
func (s *Store) Close() {
	if s.nc != nil {
		s.nc.Close()
	}
}

// Read returns the value at path, decoded from the session document.
func (s *Store) Read(ctx context.Context, path string) (store.Value, bool, error) {
	key, rel, err := keyFor(path)
	if err != nil {
		return nil, false, err
	}
	entry, err := s.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv get %s: %w", key, err)
	}
	doc, err := decodeDoc(entry.Value())
	if err != nil {
		return nil, false, err
	}
	v, ok := getNode(doc, rel)
	if !ok {
		return nil, false, nil
	}
	return v, true, nil
}

// Write replaces the subtree at path. Writing nil at the session root deletes
// the key.
func (s *Store) Write(ctx context.Context, path string, value store.Value) error {
	key, rel, err := keyFor(path)
	if err != nil {
		return err
	}
	if len(rel) == 0 && value == nil {
		if err := s.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			return fmt.Errorf("kv delete %s: %w", key, err)
		}
		return nil
	}
	return s.update(ctx, key, func(doc map[string]any) {
		if len(rel) == 0 {
			m, _ := normalize(value).(map[string]any)
			clearMap(doc)
			for k, v := range m {
				doc[k] = v
			}
			return
		}
		setNode(doc, rel, normalize(value))
	})
}

// Merge applies a multi-location update under path. Keys of partial are field
// names or slash-separated relative paths; all locations land in a single
// document revision, so watchers observe the merge as one change. A nil value
// deletes its location.
func (s *Store) Merge(ctx context.Context, path string, partial map[string]store.Value) error {
	key, rel, err := keyFor(path)
	if err != nil {
		return err
	}
	return s.update(ctx, key, func(doc map[string]any) {
		for k, v := range partial {
			full := append(append([]string{}, rel...), splitPath(k)...)
			setNode(doc, full, normalize(v))
		}
	})
}

// update runs a CAS read-modify-write loop on one key.
func (s *Store) update(ctx context.Context, key string, mutate func(doc map[string]any)) error {
	var lastErr error
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		entry, err := s.kv.Get(ctx, key)
		switch {
		case errors.Is(err, jetstream.ErrKeyNotFound):
			doc := make(map[string]any)
			mutate(doc)
			data, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("encode session document: %w", err)
			}
			if _, err := s.kv.Create(ctx, key, data); err == nil {
				return nil
			} else {
				// someone else created the key first; re-read and retry
				lastErr = err
			}
		case err != nil:
			return fmt.Errorf("kv get %s: %w", key, err)
		default:
			doc, err := decodeDoc(entry.Value())
			if err != nil {
				return err
			}
			mutate(doc)
			data, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("encode session document: %w", err)
			}
			if _, err := s.kv.Update(ctx, key, data, entry.Revision()); err == nil {
				return nil
			} else {
				lastErr = err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return fmt.Errorf("kv update %s: retries exhausted: %w", key, lastErr)
}

// Subscribe watches the session key and delivers the subtree at path whenever
// it changes. The first delivery is the current snapshot. Deliveries dedupe
// on the subtree: a revision that leaves the subscribed path untouched is
// not forwarded.
func (s *Store) Subscribe(path string, fn store.Handler) (store.Subscription, error) {
	key, rel, err := keyFor(path)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	watcher, err := s.kv.Watch(ctx, key)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("kv watch %s: %w", key, err)
	}

	sub := &subscription{cancel: cancel, watcher: watcher}
	go s.deliver(ctx, watcher, rel, fn)
	return sub, nil
}

func (s *Store) deliver(ctx context.Context, watcher jetstream.KeyWatcher, rel []string, fn store.Handler) {
	var last store.Value
	delivered := false

	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-watcher.Updates():
			if !ok {
				return
			}
			if entry == nil {
				// end of initial replay; an absent key still yields a snapshot
				if !delivered {
					delivered = true
					fn(nil)
				}
				continue
			}

			var v store.Value
			if entry.Operation() == jetstream.KeyValuePut {
				doc, err := decodeDoc(entry.Value())
				if err != nil {
					s.logger.Error().Err(err).Str("key", entry.Key()).Msg("malformed session document, skipping revision")
					continue
				}
				v, _ = getNode(doc, rel)
			}
			if delivered && reflect.DeepEqual(last, v) {
				continue
			}
			last = v
			delivered = true
			fn(v)
		}
	}
}

type subscription struct {
	cancel  context.CancelFunc
	watcher jetstream.KeyWatcher

	once sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.watcher.Stop()
		s.cancel()
	})
}

// keyFor maps a store path onto a bucket key plus a relative path inside the
// session document. Every path lives under sessions/<code>.
func keyFor(path string) (string, []string, error) {
	segs := splitPath(path)
	if len(segs) < 2 || segs[0] != "sessions" {
		return "", nil, fmt.Errorf("path %q is not under sessions/", path)
	}
	return segs[1], segs[2:], nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func decodeDoc(data []byte) (map[string]any, error) {
	doc := make(map[string]any)
	if len(data) == 0 {
		return doc, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode session document: %w", err)
	}
	return doc, nil
}

// normalize round-trips a value through JSON so documents hold only plain
// maps, slices, strings, numbers, and bools regardless of what callers pass.
func normalize(v store.Value) any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return v
	}
	return out
}

func getNode(doc map[string]any, segs []string) (any, bool) {
	if len(segs) == 0 {
		return doc, true
	}
	cur := any(doc)
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

func setNode(doc map[string]any, segs []string, value any) {
	if len(segs) == 0 {
		return
	}
	cur := doc
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

func clearMap(m map[string]any) {
	for k := range m {
		delete(m, k)
	}
}
