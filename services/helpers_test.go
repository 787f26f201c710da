package services

import (
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"wordins/domain"
	"wordins/store"
)

var (
	alice = domain.Identity{ID: "alice", Name: "Alice", AvatarURL: "https://cdn/a.png"}
	bob   = domain.Identity{ID: "bob", Name: "Bob", AvatarURL: "https://cdn/b.png"}
	carol = domain.Identity{ID: "carol", Name: "Carol"}
)

const testWindow = 150 * time.Millisecond

func newTestStore(t *testing.T, ordered ...string) *store.Badger {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	s := store.New(db, slog.New(slog.DiscardHandler), ordered...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// newServices wires the full controller stack on a fresh store.
func newServices(t *testing.T, ordered ...string) (*store.Badger, *MembershipService, *MessageService, *PresenceService, *DirectoryService) {
	t.Helper()
	s := newTestStore(t, ordered...)
	log := slog.New(slog.DiscardHandler)
	directory := NewDirectoryService(s, log)
	presence := NewPresenceService(s, log, testWindow)
	membership := NewMembershipService(s, log, directory, ConfirmPolicy{MaxAttempts: 3, Interval: time.Millisecond})
	messages := NewMessageService(s, log, presence)
	return s, membership, messages, presence, directory
}

// await reads from a subscription channel until pred holds or the
// deadline passes. Updates coalesce, so intermediate states may be
// skipped; only the predicate matters.
func await[T any](t *testing.T, ch <-chan T, pred func(T) bool, what string) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				t.Fatalf("subscription closed while waiting for %s", what)
			}
			if pred(v) {
				return v
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %s", what)
			return zero
		}
	}
}
