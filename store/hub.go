package store

import (
	"sort"
	"strings"
	"sync"
)

type watchKind int

const (
	watchDoc watchKind = iota
	watchCollection
	watchOrdered
)

// Subscription is a cancellable live view of a watched path. Updates
// carries one full snapshot per observed change, with latest-wins
// coalescing: a slow consumer sees fewer, newer snapshots, never stale
// ones. Cancel is idempotent, closes Updates, and stops delivery.
type Subscription struct {
	path      string
	kind      watchKind
	orderBy   string
	updates   chan Snapshot
	mu        sync.Mutex
	closed    bool
	onCancel  func()
}

func (s *Subscription) Updates() <-chan Snapshot { return s.updates }

func (s *Subscription) Cancel() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.updates)
	s.mu.Unlock()
	if s.onCancel != nil {
		s.onCancel()
	}
}

// push delivers a snapshot, replacing an unconsumed older one rather than
// blocking the writer.
func (s *Subscription) push(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.updates <- snap:
			return
		default:
			select {
			case <-s.updates:
			default:
			}
		}
	}
}

// matches reports whether a committed change at key concerns this
// subscription. Document watches match the exact path; collection watches
// match direct children only, so a watch on a room document never fires
// for its nested message collection.
func (s *Subscription) matches(key string) bool {
	if s.kind == watchDoc {
		return key == s.path
	}
	rest, ok := strings.CutPrefix(key, s.path+"/")
	return ok && !strings.Contains(rest, "/")
}

// hub is the in-process subscriber registry. Every committed store
// mutation fans out through it to the matching subscriptions.
type hub struct {
	mu   sync.RWMutex
	subs map[uint64]*Subscription
	next uint64
}

func newHub() *hub {
	return &hub{subs: make(map[uint64]*Subscription)}
}

func (h *hub) add(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	h.subs[id] = sub
	sub.onCancel = func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

// affected returns the subscriptions concerned by a change at key.
func (h *hub) affected(key string) []*Subscription {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*Subscription
	for _, sub := range h.subs {
		if sub.matches(key) {
			out = append(out, sub)
		}
	}
	return out
}

// closeAll cancels every live subscription, used on store shutdown.
func (h *hub) closeAll() {
	h.mu.RLock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()
	for _, sub := range subs {
		sub.Cancel()
	}
}

// orderSnapshot sorts collection docs for ordered watches: orderBy field
// ascending, identifier as the deterministic tie-break. Docs without the
// field sort first (value zero).
func orderSnapshot(docs []Document, orderBy string) {
	sort.SliceStable(docs, func(i, j int) bool {
		a, b := docs[i].Int64(orderBy), docs[j].Int64(orderBy)
		if a != b {
			return a < b
		}
		return docs[i].String("id") < docs[j].String("id")
	})
}
