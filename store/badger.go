package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"wordins/errors"
)

const updatesBuffer = 1

// Badger implements Store on a BadgerDB keyspace. Documents live at their
// path verbatim; children of a collection live under "collection/<id>" so
// a prefix scan returns the whole collection.
//
// The store is shared by concurrent clients and never assumes exclusive
// access: every mutation is a check-then-write or field union inside a
// single badger transaction, and re-application is harmless.
type Badger struct {
	db      *badger.DB
	log     *slog.Logger
	hub     *hub
	ordered map[string]struct{}

	// lastTS makes server timestamps strictly monotonic per collection,
	// the ordering key messages rely on.
	tsMu   sync.Mutex
	lastTS map[string]int64

	closeMu sync.RWMutex
	closed  bool

	now func() time.Time
}

// New wraps an opened BadgerDB. Collections whose leaf name appears in
// orderedCollections support WatchOrdered; everything else must go through
// the unordered fallback.
func New(db *badger.DB, log *slog.Logger, orderedCollections ...string) *Badger {
	ordered := make(map[string]struct{}, len(orderedCollections))
	for _, name := range orderedCollections {
		ordered[name] = struct{}{}
	}
	return &Badger{
		db:      db,
		log:     log,
		hub:     newHub(),
		ordered: ordered,
		lastTS:  make(map[string]int64),
		now:     time.Now,
	}
}

func (b *Badger) Get(ctx context.Context, docPath string) (Document, error) {
	if err := b.guard(ctx); err != nil {
		return nil, err
	}
	var doc Document
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		doc, err = readDoc(txn, docPath)
		return err
	})
	if err != nil {
		return nil, b.wrap("get", docPath, err)
	}
	return doc, nil
}

func (b *Badger) Set(ctx context.Context, docPath string, doc Document, merge bool) error {
	if err := b.guard(ctx); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		out := doc
		if merge {
			existing, err := readDoc(txn, docPath)
			switch {
			case err == nil:
				out = mergeDocs(existing, doc)
			case isNotFound(err):
				// absent doc: merge degenerates to a plain write
			default:
				return err
			}
		}
		return writeDoc(txn, docPath, out)
	})
	if err != nil {
		return b.wrap("set", docPath, err)
	}
	b.notify(docPath)
	return nil
}

func (b *Badger) Update(ctx context.Context, docPath string, partial Document) error {
	if err := b.guard(ctx); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		existing, err := readDoc(txn, docPath)
		if err != nil {
			return err
		}
		return writeDoc(txn, docPath, mergeDocs(existing, partial))
	})
	if err != nil {
		return b.wrap("update", docPath, err)
	}
	b.notify(docPath)
	return nil
}

func (b *Badger) AppendChild(ctx context.Context, collection string, doc Document) (string, error) {
	if err := b.guard(ctx); err != nil {
		return "", err
	}
	id := doc.String("id")
	if id == "" {
		id = uuid.NewString()
	}
	childPath := collection + "/" + id

	appended := false
	err := b.db.Update(func(txn *badger.Txn) error {
		// Idempotent retry: an already-appended id stays untouched, its
		// original timestamp included.
		if _, err := txn.Get([]byte(childPath)); err == nil {
			return nil
		} else if !isNotFound(err) {
			return err
		}
		out := mergeDocs(doc, Document{"id": id, "ts": b.nextTimestamp(collection)})
		appended = true
		return writeDoc(txn, childPath, out)
	})
	if err != nil {
		return "", b.wrap("append", collection, err)
	}
	if appended {
		b.notify(childPath)
	}
	return id, nil
}

func (b *Badger) Watch(docPath string) (*Subscription, error) {
	return b.subscribe(docPath, watchDoc, "")
}

func (b *Badger) WatchCollection(collection string) (*Subscription, error) {
	return b.subscribe(collection, watchCollection, "")
}

func (b *Badger) WatchOrdered(collection, orderField string) (*Subscription, error) {
	if _, ok := b.ordered[path.Base(collection)]; !ok {
		return nil, fmt.Errorf("%w: collection %q, field %q", errors.ErrIndexMissing, collection, orderField)
	}
	return b.subscribe(collection, watchOrdered, orderField)
}

func (b *Badger) subscribe(watchPath string, kind watchKind, orderBy string) (*Subscription, error) {
	if err := b.guard(context.Background()); err != nil {
		return nil, err
	}
	sub := &Subscription{
		path:    watchPath,
		kind:    kind,
		orderBy: orderBy,
		updates: make(chan Snapshot, updatesBuffer),
	}
	b.hub.add(sub)

	// Watches fire immediately with the current state, then on every
	// subsequent committed change.
	snap, err := b.snapshot(sub)
	if err != nil {
		sub.Cancel()
		return nil, err
	}
	sub.push(snap)
	return sub, nil
}

func (b *Badger) Close() error {
	b.closeMu.Lock()
	if b.closed {
		b.closeMu.Unlock()
		return nil
	}
	b.closed = true
	b.closeMu.Unlock()

	b.hub.closeAll()
	b.log.Info("Closing document store")
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("%w: closing: %v", errors.ErrStoreUnavailable, err)
	}
	return nil
}

// notify recomputes and pushes a fresh snapshot to every subscription
// concerned by the change, before the mutating call returns. This is what
// makes a write observable by all active watchers as part of its
// durability contract.
func (b *Badger) notify(key string) {
	for _, sub := range b.hub.affected(key) {
		snap, err := b.snapshot(sub)
		if err != nil {
			b.log.Warn("Dropping snapshot after failed re-read", "path", sub.path, "error", err)
			continue
		}
		sub.push(snap)
	}
}

func (b *Badger) snapshot(sub *Subscription) (Snapshot, error) {
	snap := Snapshot{Path: sub.path}
	err := b.db.View(func(txn *badger.Txn) error {
		if sub.kind == watchDoc {
			doc, err := readDoc(txn, sub.path)
			if isNotFound(err) {
				return nil
			}
			if err != nil {
				return err
			}
			snap.Docs = []Document{doc}
			return nil
		}

		prefix := []byte(sub.path + "/")
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			rest := strings.TrimPrefix(string(item.Key()), sub.path+"/")
			if strings.Contains(rest, "/") {
				continue
			}
			err := item.Value(func(raw []byte) error {
				doc, err := decodeDoc(raw)
				if err != nil {
					return err
				}
				snap.Docs = append(snap.Docs, doc)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Snapshot{}, b.wrap("snapshot", sub.path, err)
	}
	if sub.kind == watchOrdered {
		orderSnapshot(snap.Docs, sub.orderBy)
	}
	return snap, nil
}

func (b *Badger) nextTimestamp(collection string) int64 {
	b.tsMu.Lock()
	defer b.tsMu.Unlock()
	ts := b.now().UTC().UnixNano()
	if last := b.lastTS[collection]; ts <= last {
		ts = last + 1
	}
	b.lastTS[collection] = ts
	return ts
}

func (b *Badger) guard(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		return fmt.Errorf("%w: store closed", errors.ErrStoreUnavailable)
	}
	return nil
}

// wrap maps adapter-level failures onto the engine taxonomy. NotFound
// passes through untouched; anything else is a store availability problem
// the caller retries as a whole operation.
func (b *Badger) wrap(op, p string, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, errors.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", op, p, errors.ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w: %v", op, p, errors.ErrStoreUnavailable, err)
}

func readDoc(txn *badger.Txn, docPath string) (Document, error) {
	item, err := txn.Get([]byte(docPath))
	if isNotFound(err) {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var doc Document
	err = item.Value(func(raw []byte) error {
		var derr error
		doc, derr = decodeDoc(raw)
		return derr
	})
	return doc, err
}

func writeDoc(txn *badger.Txn, docPath string, doc Document) error {
	raw, err := encodeDoc(doc)
	if err != nil {
		return err
	}
	return txn.Set([]byte(docPath), raw)
}

// mergeDocs is the field-level union of Set(merge=true) and Update:
// patch fields win, untouched fields survive.
func mergeDocs(base, patch Document) Document {
	out := make(Document, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

func isNotFound(err error) bool {
	return stderrors.Is(err, badger.ErrKeyNotFound) || stderrors.Is(err, errors.ErrNotFound)
}
