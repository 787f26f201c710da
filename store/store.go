//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks

// Package store provides the realtime document store the engine runs on:
// documents addressed by slash-separated paths, append-only child
// collections, and watch subscriptions that push the full current snapshot
// on every committed change.
package store

import (
	"context"
	"time"
)

// Document is a schemaless document body. Values survive a codec
// round-trip as strings, bools, int64s, and []any; use the typed field
// helpers when reading.
type Document map[string]any

// Snapshot is the full current state of a watched path, pushed to
// subscribers on every change. A document watch carries zero or one docs;
// a collection watch carries every child.
type Snapshot struct {
	Path string
	Docs []Document
}

// Exists reports whether a document watch currently sees a document.
func (s Snapshot) Exists() bool { return len(s.Docs) > 0 }

// Doc returns the single document of a document-watch snapshot.
func (s Snapshot) Doc() Document {
	if len(s.Docs) == 0 {
		return nil
	}
	return s.Docs[0]
}

// Store is the adapter contract every controller consumes. Mutations are
// visible to all active watches before the call returns.
type Store interface {
	// Get returns the document at path, or ErrNotFound.
	Get(ctx context.Context, path string) (Document, error)
	// Set writes the document at path. With merge, existing fields not in
	// doc are preserved (field-level union); without, the document is
	// replaced.
	Set(ctx context.Context, path string, doc Document, merge bool) error
	// Update applies a partial document; fails with ErrNotFound if the
	// document is absent.
	Update(ctx context.Context, path string, partial Document) error
	// AppendChild adds a child document to a collection, assigning a
	// server timestamp (field "ts", monotonic per collection) and an
	// identifier (field "id"). A caller-supplied "id" is honored for
	// idempotent retries: re-appending an existing id is a no-op.
	AppendChild(ctx context.Context, collection string, doc Document) (string, error)
	// Watch subscribes to a single document.
	Watch(path string) (*Subscription, error)
	// WatchCollection subscribes, unordered, to the children of a
	// collection.
	WatchCollection(collection string) (*Subscription, error)
	// WatchOrdered subscribes to a collection ordered by orderField
	// ascending. Collections without a registered index fail with
	// ErrIndexMissing; callers fall back to WatchCollection and sort
	// client-side.
	WatchOrdered(collection, orderField string) (*Subscription, error)
	Close() error
}

// Field helpers tolerant of codec round-trips.

func (d Document) String(key string) string {
	s, _ := d[key].(string)
	return s
}

func (d Document) Bool(key string) bool {
	b, _ := d[key].(bool)
	return b
}

func (d Document) Int64(key string) int64 {
	switch v := d[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case uint64:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// Time decodes a unix-nanosecond field. The zero time marks an absent or
// unassigned timestamp.
func (d Document) Time(key string) time.Time {
	ns := d.Int64(key)
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

func (d Document) Strings(key string) []string {
	switch v := d[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
