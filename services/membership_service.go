//go:generate go run go.uber.org/mock/mockgen -source=membership_service.go -destination=../mocks/mock_membership_service.go -package=mocks
package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/samber/lo"

	"wordins/domain"
	"wordins/errors"
	"wordins/store"
)

// Decision is a creator's verdict on a pending join request.
type Decision string

const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
)

// MembershipState is the engine's answer to "where does this user stand
// with this room", pushed to the presentation layer on every change.
type MembershipState int

const (
	StateNone MembershipState = iota
	StatePending
	StateMember
	StateRejected
)

func (s MembershipState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateMember:
		return "member"
	case StateRejected:
		return "rejected"
	default:
		return "none"
	}
}

// ConfirmPolicy bounds the eventual-consistency wait after room creation:
// the write must become visible within MaxAttempts reads spaced by
// Interval, or CreateRoom fails with ErrConfirmationTimeout.
type ConfirmPolicy struct {
	MaxAttempts uint64
	Interval    time.Duration
}

type IMembershipService interface {
	CreateRoom(ctx context.Context, name string, inviteOnly bool, creator domain.Identity) (domain.Room, error)
	Room(ctx context.Context, roomID string) (domain.Room, error)
	RequestJoin(ctx context.Context, roomID string, user domain.Identity) (MembershipState, error)
	DecideJoinRequest(ctx context.Context, roomID, requesterID string, decision Decision, decider domain.Identity) (domain.JoinStatus, error)
	CancelJoinRequest(ctx context.Context, roomID string, user domain.Identity) error
	LeaveRoom(ctx context.Context, roomID string, user domain.Identity) error
	WatchMembership(roomID string, user domain.Identity) (*MembershipSubscription, error)
	WatchJoinRequests(ctx context.Context, roomID string, creator domain.Identity) (*JoinRequestSubscription, error)
}

// MembershipService owns room existence, the member set, the invite-only
// flag, and the join-request lifecycle.
type MembershipService struct {
	store     store.Store
	log       *slog.Logger
	directory IDirectoryService
	confirm   ConfirmPolicy
	now       func() time.Time
}

func NewMembershipService(s store.Store, log *slog.Logger, directory IDirectoryService, confirm ConfirmPolicy) *MembershipService {
	return &MembershipService{
		store:     s,
		log:       log,
		directory: directory,
		confirm:   confirm,
		now:       time.Now,
	}
}

// CreateRoom writes a new room with the creator as sole member, then
// polls until the write is visible. The store may be eventually
// consistent, so the creator is confirmed only once a read sees the
// document.
func (s *MembershipService) CreateRoom(ctx context.Context, name string, inviteOnly bool, creator domain.Identity) (domain.Room, error) {
	room, err := domain.NewRoom(name, inviteOnly, creator, s.now().UTC())
	if err != nil {
		return domain.Room{}, err
	}

	if _, err := s.store.Get(ctx, roomPath(room.ID)); err == nil {
		return domain.Room{}, fmt.Errorf("room %q: %w", room.ID, errors.ErrAlreadyExists)
	} else if !stderrors.Is(err, errors.ErrNotFound) {
		return domain.Room{}, err
	}

	if err := s.store.Set(ctx, roomPath(room.ID), roomToDoc(room), false); err != nil {
		return domain.Room{}, err
	}
	if err := s.awaitVisible(ctx, room.ID); err != nil {
		return domain.Room{}, err
	}

	s.recordVisit(ctx, creator, room.ID)
	s.log.Info("Room created", "room", room.ID, "creator", creator.ID, "inviteOnly", inviteOnly)
	return room, nil
}

func (s *MembershipService) awaitVisible(ctx context.Context, roomID string) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.confirm.Interval), s.confirm.MaxAttempts),
		ctx,
	)
	err := backoff.Retry(func() error {
		_, err := s.store.Get(ctx, roomPath(roomID))
		return err
	}, policy)
	if stderrors.Is(err, errors.ErrNotFound) {
		return fmt.Errorf("room %q not visible after %d attempts: %w",
			roomID, s.confirm.MaxAttempts, errors.ErrConfirmationTimeout)
	}
	return err
}

// Room resolves a room by identifier.
func (s *MembershipService) Room(ctx context.Context, roomID string) (domain.Room, error) {
	doc, err := s.store.Get(ctx, roomPath(roomID))
	if err != nil {
		return domain.Room{}, err
	}
	return roomFromDoc(roomID, doc), nil
}

// RequestJoin either joins an open room directly (idempotent member
// union) or files a join request on an invite-only one. A live pending
// request is reused, never duplicated; a rejection is sticky.
func (s *MembershipService) RequestJoin(ctx context.Context, roomID string, user domain.Identity) (MembershipState, error) {
	room, err := s.Room(ctx, roomID)
	if err != nil {
		return StateNone, err
	}
	if room.IsMember(user.ID) {
		return StateMember, nil
	}

	if !room.InviteOnly {
		if err := s.unionMember(ctx, room, user.ID); err != nil {
			return StateNone, err
		}
		s.recordVisit(ctx, user, roomID)
		return StateMember, nil
	}

	existing, err := s.store.Get(ctx, requestPath(roomID, user.ID))
	switch {
	case err == nil:
		request := requestFromDoc(roomID, existing)
		switch request.Status {
		case domain.JoinPending:
			return StatePending, nil
		case domain.JoinApproved:
			// Approved but the member union has not landed yet; re-apply
			// it, racing approvals converge on the same set.
			if err := s.unionMember(ctx, room, user.ID); err != nil {
				return StateNone, err
			}
			return StateMember, nil
		case domain.JoinRejected:
			return StateRejected, nil
		}
		// cancelled: fall through and file a fresh request
	case !stderrors.Is(err, errors.ErrNotFound):
		return StateNone, err
	}

	request := domain.NewJoinRequest(roomID, user, s.now().UTC())
	if err := s.store.Set(ctx, requestPath(roomID, user.ID), requestToDoc(request), false); err != nil {
		return StateNone, err
	}
	s.recordVisit(ctx, user, roomID)
	s.log.Info("Join requested", "room", roomID, "user", user.ID)
	return StatePending, nil
}

// DecideJoinRequest arbitrates a pending request. Only the room creator
// may decide; re-deciding a terminal request is a no-op returning the
// existing status. Approval unions the member first and marks the request
// second, so a crash in between heals on re-application.
func (s *MembershipService) DecideJoinRequest(ctx context.Context, roomID, requesterID string, decision Decision, decider domain.Identity) (domain.JoinStatus, error) {
	room, err := s.Room(ctx, roomID)
	if err != nil {
		return "", err
	}
	if !room.IsCreator(decider.ID) {
		return "", fmt.Errorf("only the creator decides join requests: %w", errors.ErrForbidden)
	}

	doc, err := s.store.Get(ctx, requestPath(roomID, requesterID))
	if err != nil {
		return "", err
	}
	request := requestFromDoc(roomID, doc)
	if request.Status.Terminal() {
		return request.Status, nil
	}

	next := domain.JoinRejected
	if decision == Approve {
		next = domain.JoinApproved
		if err := s.unionMember(ctx, room, requesterID); err != nil {
			return "", err
		}
	}
	if err := s.store.Update(ctx, requestPath(roomID, requesterID), store.Document{"status": string(next)}); err != nil {
		return "", err
	}
	s.log.Info("Join request decided", "room", roomID, "requester", requesterID, "status", next)
	return next, nil
}

// CancelJoinRequest withdraws the caller's own pending request; a no-op
// when none is pending.
func (s *MembershipService) CancelJoinRequest(ctx context.Context, roomID string, user domain.Identity) error {
	doc, err := s.store.Get(ctx, requestPath(roomID, user.ID))
	if stderrors.Is(err, errors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if requestFromDoc(roomID, doc).Status != domain.JoinPending {
		return nil
	}
	return s.store.Update(ctx, requestPath(roomID, user.ID), store.Document{"status": string(domain.JoinCancelled)})
}

// LeaveRoom removes a member. Creators cannot leave their own room, so
// the member set never empties while the room document exists.
func (s *MembershipService) LeaveRoom(ctx context.Context, roomID string, user domain.Identity) error {
	room, err := s.Room(ctx, roomID)
	if err != nil {
		return err
	}
	if room.IsCreator(user.ID) {
		return fmt.Errorf("creator cannot leave room %q: %w", roomID, errors.ErrForbidden)
	}
	if !room.IsMember(user.ID) {
		return fmt.Errorf("user %q in room %q: %w", user.ID, roomID, errors.ErrNotMember)
	}

	delete(room.Members, user.ID)
	if err := s.store.Update(ctx, roomPath(roomID), store.Document{"members": room.MemberList()}); err != nil {
		return err
	}
	if err := s.directory.Forget(ctx, user, roomID); err != nil {
		s.log.Warn("Directory cleanup failed", "room", roomID, "user", user.ID, "error", err)
	}
	s.log.Info("Member left", "room", roomID, "user", user.ID)
	return nil
}

// recordVisit keeps the user's directory current. Directory updates are
// best effort; a failed write only delays the sidebar, never the join.
func (s *MembershipService) recordVisit(ctx context.Context, user domain.Identity, roomID string) {
	if err := s.directory.RecordVisit(ctx, user, roomID); err != nil {
		s.log.Warn("Directory visit not recorded", "room", roomID, "user", user.ID, "error", err)
	}
}

// unionMember applies the idempotent member union. Adding an
// already-present member is a no-op, which is what makes concurrent joins
// and double approvals race-free without locks.
func (s *MembershipService) unionMember(ctx context.Context, room domain.Room, userID string) error {
	room.Members[userID] = struct{}{}
	return s.store.Update(ctx, roomPath(room.ID), store.Document{"members": room.MemberList()})
}

// MembershipUpdate is one state observation for (room, user).
type MembershipUpdate struct {
	State MembershipState
	Room  domain.Room
}

// MembershipSubscription is a live view of a user's standing with a room,
// merging the room-document and request-document watches. Updates from
// the two underlying streams interleave arbitrarily; each observation is
// computed from the latest snapshot of both.
type MembershipSubscription struct {
	updates chan MembershipUpdate
	cancel  func()
}

func (m *MembershipSubscription) Updates() <-chan MembershipUpdate { return m.updates }
func (m *MembershipSubscription) Cancel()                          { m.cancel() }

func (s *MembershipService) WatchMembership(roomID string, user domain.Identity) (*MembershipSubscription, error) {
	roomSub, err := s.store.Watch(roomPath(roomID))
	if err != nil {
		return nil, err
	}
	requestSub, err := s.store.Watch(requestPath(roomID, user.ID))
	if err != nil {
		roomSub.Cancel()
		return nil, err
	}

	out := &MembershipSubscription{
		updates: make(chan MembershipUpdate, 1),
		cancel: func() {
			roomSub.Cancel()
			requestSub.Cancel()
		},
	}

	go func() {
		defer close(out.updates)
		var roomSnap, requestSnap store.Snapshot
		roomCh, requestCh := roomSub.Updates(), requestSub.Updates()
		for roomCh != nil || requestCh != nil {
			select {
			case snap, ok := <-roomCh:
				if !ok {
					roomCh = nil
					continue
				}
				roomSnap = snap
			case snap, ok := <-requestCh:
				if !ok {
					requestCh = nil
					continue
				}
				requestSnap = snap
			}
			push(out.updates, s.membershipState(roomID, user.ID, roomSnap, requestSnap))
		}
	}()
	return out, nil
}

func (s *MembershipService) membershipState(roomID, userID string, roomSnap, requestSnap store.Snapshot) MembershipUpdate {
	if !roomSnap.Exists() {
		return MembershipUpdate{State: StateNone}
	}
	room := roomFromDoc(roomID, roomSnap.Doc())
	if room.IsMember(userID) {
		return MembershipUpdate{State: StateMember, Room: room}
	}
	if requestSnap.Exists() {
		switch requestFromDoc(roomID, requestSnap.Doc()).Status {
		case domain.JoinPending:
			return MembershipUpdate{State: StatePending, Room: room}
		case domain.JoinApproved:
			// membership write still in flight
			return MembershipUpdate{State: StateMember, Room: room}
		case domain.JoinRejected:
			return MembershipUpdate{State: StateRejected, Room: room}
		}
	}
	return MembershipUpdate{State: StateNone, Room: room}
}

// JoinRequestSubscription streams the pending requests of a room, oldest
// first, for the creator's approval view.
type JoinRequestSubscription struct {
	updates chan []domain.JoinRequest
	cancel  func()
}

func (j *JoinRequestSubscription) Updates() <-chan []domain.JoinRequest { return j.updates }
func (j *JoinRequestSubscription) Cancel()                              { j.cancel() }

func (s *MembershipService) WatchJoinRequests(ctx context.Context, roomID string, creator domain.Identity) (*JoinRequestSubscription, error) {
	room, err := s.Room(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.IsCreator(creator.ID) {
		return nil, fmt.Errorf("join requests are visible to the creator only: %w", errors.ErrForbidden)
	}

	sub, err := s.store.WatchCollection(requestsCollection(roomID))
	if err != nil {
		return nil, err
	}
	out := &JoinRequestSubscription{
		updates: make(chan []domain.JoinRequest, 1),
		cancel:  sub.Cancel,
	}
	go func() {
		defer close(out.updates)
		for snap := range sub.Updates() {
			pending := lo.FilterMap(snap.Docs, func(doc store.Document, _ int) (domain.JoinRequest, bool) {
				request := requestFromDoc(roomID, doc)
				return request, request.Status == domain.JoinPending
			})
			sort.Slice(pending, func(i, j int) bool {
				return pending[i].RequestedAt.Before(pending[j].RequestedAt)
			})
			push(out.updates, pending)
		}
	}()
	return out, nil
}

// push delivers with latest-wins semantics: an unconsumed older value is
// replaced rather than blocking the pump.
func push[T any](ch chan T, value T) {
	for {
		select {
		case ch <- value:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

func roomToDoc(room domain.Room) store.Document {
	return store.Document{
		"roomName":   room.DisplayName,
		"creator":    room.CreatorID,
		"inviteOnly": room.InviteOnly,
		"members":    room.MemberList(),
		"createdAt":  room.CreatedAt.UnixNano(),
	}
}

func roomFromDoc(roomID string, doc store.Document) domain.Room {
	return domain.Room{
		ID:          roomID,
		DisplayName: doc.String("roomName"),
		CreatorID:   doc.String("creator"),
		InviteOnly:  doc.Bool("inviteOnly"),
		Members:     domain.MembersFromList(doc.Strings("members")),
		CreatedAt:   doc.Time("createdAt"),
	}
}

func requestToDoc(request domain.JoinRequest) store.Document {
	return store.Document{
		"uid":         request.RequesterID,
		"name":        request.Name,
		"photoURL":    request.AvatarURL,
		"status":      string(request.Status),
		"requestedAt": request.RequestedAt.UnixNano(),
	}
}

func requestFromDoc(roomID string, doc store.Document) domain.JoinRequest {
	return domain.JoinRequest{
		RoomID:      roomID,
		RequesterID: doc.String("uid"),
		Name:        doc.String("name"),
		AvatarURL:   doc.String("photoURL"),
		Status:      domain.JoinStatus(doc.String("status")),
		RequestedAt: doc.Time("requestedAt"),
	}
}
