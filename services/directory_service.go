//go:generate go run go.uber.org/mock/mockgen -source=directory_service.go -destination=../mocks/mock_directory_service.go -package=mocks
package services

import (
	"context"
	stderrors "errors"
	"log/slog"

	"wordins/domain"
	"wordins/errors"
	"wordins/store"
)

// RoomSummary is the cached metadata the directory sidebar renders.
type RoomSummary struct {
	ID          string
	DisplayName string
	InviteOnly  bool
	Pending     bool // user has a live join request rather than membership
}

type IDirectoryService interface {
	RecordVisit(ctx context.Context, user domain.Identity, roomID string) error
	Forget(ctx context.Context, user domain.Identity, roomID string) error
	ListVisible(ctx context.Context, user domain.Identity) ([]RoomSummary, error)
	WatchVisible(user domain.Identity) (*DirectorySubscription, error)
}

// DirectoryService owns the per-user recent-room list. It is eventually
// consistent with membership state: rooms the user no longer belongs to
// (and has no pending request for) are hidden at read time rather than
// eagerly pruned.
type DirectoryService struct {
	store store.Store
	log   *slog.Logger
}

func NewDirectoryService(s store.Store, log *slog.Logger) *DirectoryService {
	return &DirectoryService{store: s, log: log}
}

// RecordVisit moves roomID to the front of the user's list, deduplicated
// and capped. Concurrent visits are last-writer-wins; the list is a pure
// function of the final write, so re-application is harmless.
func (s *DirectoryService) RecordVisit(ctx context.Context, user domain.Identity, roomID string) error {
	recent, err := s.recent(ctx, user.ID)
	if err != nil {
		return err
	}
	recent.Visit(roomID)
	return s.store.Set(ctx, directoryPath(user.ID), store.Document{"rooms": recent.RoomIDs}, false)
}

// Forget drops roomID from the user's list, used when leaving a room.
func (s *DirectoryService) Forget(ctx context.Context, user domain.Identity, roomID string) error {
	recent, err := s.recent(ctx, user.ID)
	if err != nil {
		return err
	}
	recent.Forget(roomID)
	return s.store.Set(ctx, directoryPath(user.ID), store.Document{"rooms": recent.RoomIDs}, false)
}

// ListVisible returns the recent rooms the user may still see: those they
// are a member of, or hold a live pending join request for. A room that
// rejected the user stays hidden even though it was recently visited.
func (s *DirectoryService) ListVisible(ctx context.Context, user domain.Identity) ([]RoomSummary, error) {
	recent, err := s.recent(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	var visible []RoomSummary
	for _, roomID := range recent.RoomIDs {
		summary, ok, err := s.visibleSummary(ctx, user.ID, roomID)
		if err != nil {
			return nil, err
		}
		if ok {
			visible = append(visible, summary)
		}
	}
	return visible, nil
}

func (s *DirectoryService) visibleSummary(ctx context.Context, userID, roomID string) (RoomSummary, bool, error) {
	doc, err := s.store.Get(ctx, roomPath(roomID))
	if stderrors.Is(err, errors.ErrNotFound) {
		return RoomSummary{}, false, nil // room deleted since the visit
	}
	if err != nil {
		return RoomSummary{}, false, err
	}
	room := roomFromDoc(roomID, doc)
	summary := RoomSummary{ID: roomID, DisplayName: room.DisplayName, InviteOnly: room.InviteOnly}

	if room.IsMember(userID) {
		return summary, true, nil
	}

	requestDoc, err := s.store.Get(ctx, requestPath(roomID, userID))
	if stderrors.Is(err, errors.ErrNotFound) {
		return RoomSummary{}, false, nil
	}
	if err != nil {
		return RoomSummary{}, false, err
	}
	if requestFromDoc(roomID, requestDoc).Status == domain.JoinPending {
		summary.Pending = true
		return summary, true, nil
	}
	return RoomSummary{}, false, nil
}

func (s *DirectoryService) recent(ctx context.Context, userID string) (domain.RecentRooms, error) {
	recent := domain.RecentRooms{UserID: userID}
	doc, err := s.store.Get(ctx, directoryPath(userID))
	if stderrors.Is(err, errors.ErrNotFound) {
		return recent, nil
	}
	if err != nil {
		return recent, err
	}
	recent.RoomIDs = doc.Strings("rooms")
	return recent, nil
}

// DirectorySubscription streams the user's visible room list. It
// re-evaluates on directory-document changes; membership edits made
// elsewhere converge on the user's next visit or directory write.
type DirectorySubscription struct {
	updates chan []RoomSummary
	cancel  func()
}

func (d *DirectorySubscription) Updates() <-chan []RoomSummary { return d.updates }
func (d *DirectorySubscription) Cancel()                       { d.cancel() }

func (s *DirectoryService) WatchVisible(user domain.Identity) (*DirectorySubscription, error) {
	sub, err := s.store.Watch(directoryPath(user.ID))
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	out := &DirectorySubscription{
		updates: make(chan []RoomSummary, 1),
		cancel: func() {
			cancel()
			sub.Cancel()
		},
	}
	go func() {
		defer close(out.updates)
		for range sub.Updates() {
			visible, err := s.ListVisible(ctx, user)
			if err != nil {
				s.log.Warn("Skipping directory projection", "user", user.ID, "error", err)
				continue
			}
			push(out.updates, visible)
		}
	}()
	return out, nil
}
