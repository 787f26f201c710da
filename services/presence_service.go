//go:generate go run go.uber.org/mock/mockgen -source=presence_service.go -destination=../mocks/mock_presence_service.go -package=mocks
package services

import (
	"context"
	stderrors "errors"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"wordins/domain"
	"wordins/errors"
	"wordins/store"
)

type IPresenceService interface {
	SetTyping(ctx context.Context, roomID string, user domain.Identity, isTyping bool) error
	Subscribe(roomID, excludeUserID string) (*PresenceSubscription, error)
}

// PresenceService owns the ephemeral per-(room, user) typing flags.
// Entries expire by staleness rather than explicit clearing, so a client
// that crashes mid-type disappears from everyone's view after the window.
type PresenceService struct {
	store  store.Store
	log    *slog.Logger
	window time.Duration
	now    func() time.Time
}

func NewPresenceService(s store.Store, log *slog.Logger, stalenessWindow time.Duration) *PresenceService {
	return &PresenceService{store: s, log: log, window: stalenessWindow, now: time.Now}
}

// SetTyping upserts the caller's typing state. Non-members are ignored
// silently; presence is advisory and never worth failing a keystroke for.
func (s *PresenceService) SetTyping(ctx context.Context, roomID string, user domain.Identity, isTyping bool) error {
	roomDoc, err := s.store.Get(ctx, roomPath(roomID))
	if stderrors.Is(err, errors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !roomFromDoc(roomID, roomDoc).IsMember(user.ID) {
		s.log.Debug("Ignoring typing signal from non-member", "room", roomID, "user", user.ID)
		return nil
	}
	return s.store.Set(ctx, typingPath(roomID, user.ID), store.Document{
		"uid":       user.ID,
		"name":      user.Name,
		"typing":    isTyping,
		"updatedAt": s.now().UTC().UnixNano(),
	}, false)
}

// PresenceSubscription streams the display names currently typing,
// sorted, excluding the subscriber. Updates fire on store changes and on
// an expiry tick, so names vanish when their state goes stale even if it
// was never cleared.
type PresenceSubscription struct {
	updates chan []string
	cancel  func()
}

func (p *PresenceSubscription) Updates() <-chan []string { return p.updates }
func (p *PresenceSubscription) Cancel()                  { p.cancel() }

func (s *PresenceService) Subscribe(roomID, excludeUserID string) (*PresenceSubscription, error) {
	sub, err := s.store.WatchCollection(typingCollection(roomID))
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	var stop sync.Once
	out := &PresenceSubscription{
		updates: make(chan []string, 1),
		cancel: func() {
			sub.Cancel()
			stop.Do(func() { close(done) })
		},
	}

	go func() {
		defer close(out.updates)
		ticker := time.NewTicker(s.window / 2)
		defer ticker.Stop()

		var states []domain.TypingState
		var last []string
		first := true

		project := func() {
			names := s.project(states, excludeUserID)
			if first || !slices.Equal(names, last) {
				first = false
				last = names
				push(out.updates, names)
			}
		}

		for {
			select {
			case snap, ok := <-sub.Updates():
				if !ok {
					return
				}
				states = states[:0]
				for _, doc := range snap.Docs {
					states = append(states, typingFromDoc(doc))
				}
				project()
			case <-ticker.C:
				project()
			case <-done:
				return
			}
		}
	}()
	return out, nil
}

func (s *PresenceService) project(states []domain.TypingState, excludeUserID string) []string {
	now := s.now().UTC()
	names := make([]string, 0, len(states))
	for _, state := range states {
		if state.UserID == excludeUserID {
			continue
		}
		if state.Active(now, s.window) {
			names = append(names, state.Name)
		}
	}
	sort.Strings(names)
	return names
}

func typingFromDoc(doc store.Document) domain.TypingState {
	return domain.TypingState{
		UserID:    doc.String("uid"),
		Name:      doc.String("name"),
		Typing:    doc.Bool("typing"),
		UpdatedAt: doc.Time("updatedAt"),
	}
}
