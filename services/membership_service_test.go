package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"wordins/domain"
	"wordins/errors"
)

func TestMembership_CreateRoom_CreatorIsMember(t *testing.T) {
	req := require.New(t)
	_, membership, _, _, _ := newServices(t)
	ctx := context.Background()

	room, err := membership.CreateRoom(ctx, "Book Club 42", false, alice)
	req.NoError(err)
	req.Equal("book-club-42", room.ID)

	// Round-trip: the stored room keeps the creator in its member set
	stored, err := membership.Room(ctx, "book-club-42")
	req.NoError(err)
	req.True(stored.IsMember(alice.ID))
	req.True(stored.IsCreator(alice.ID))
	req.NotEmpty(stored.Members)
}

func TestMembership_CreateRoom_NameCollision(t *testing.T) {
	req := require.New(t)
	_, membership, _, _, _ := newServices(t)
	ctx := context.Background()

	_, err := membership.CreateRoom(ctx, "Book Club 42", false, alice)
	req.NoError(err)

	// Normalization makes differently-spelled names collide
	_, err = membership.CreateRoom(ctx, "  book   club 42 ", true, bob)
	req.ErrorIs(err, errors.ErrAlreadyExists)

	_, err = membership.CreateRoom(ctx, "   ", false, alice)
	req.ErrorIs(err, errors.ErrInvalidRoomName)
}

func TestMembership_RequestJoin_OpenRoom_Idempotent(t *testing.T) {
	req := require.New(t)
	_, membership, _, _, _ := newServices(t)
	ctx := context.Background()

	_, err := membership.CreateRoom(ctx, "book-club-42", false, alice)
	req.NoError(err)

	// Joining twice yields the same final membership, never duplicates
	state, err := membership.RequestJoin(ctx, "book-club-42", bob)
	req.NoError(err)
	req.Equal(StateMember, state)
	state, err = membership.RequestJoin(ctx, "book-club-42", bob)
	req.NoError(err)
	req.Equal(StateMember, state)

	room, err := membership.Room(ctx, "book-club-42")
	req.NoError(err)
	req.Equal([]string{"alice", "bob"}, room.MemberList())

	// And no join request was ever filed
	_, err = membership.store.Get(ctx, requestPath("book-club-42", bob.ID))
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestMembership_InviteOnly_ApprovalFlow(t *testing.T) {
	req := require.New(t)
	_, membership, _, _, _ := newServices(t)
	ctx := context.Background()

	_, err := membership.CreateRoom(ctx, "private-room-1", true, alice)
	req.NoError(err)

	// B's ask files a pending request without touching the member set
	state, err := membership.RequestJoin(ctx, "private-room-1", bob)
	req.NoError(err)
	req.Equal(StatePending, state)

	room, err := membership.Room(ctx, "private-room-1")
	req.NoError(err)
	req.False(room.IsMember(bob.ID))

	// Asking again reuses the live request
	state, err = membership.RequestJoin(ctx, "private-room-1", bob)
	req.NoError(err)
	req.Equal(StatePending, state)

	// Approval unions B in and terminates the request
	status, err := membership.DecideJoinRequest(ctx, "private-room-1", bob.ID, Approve, alice)
	req.NoError(err)
	req.Equal(domain.JoinApproved, status)

	room, err = membership.Room(ctx, "private-room-1")
	req.NoError(err)
	req.True(room.IsMember(bob.ID))

	// Re-deciding is a no-op returning the terminal status
	status, err = membership.DecideJoinRequest(ctx, "private-room-1", bob.ID, Reject, alice)
	req.NoError(err)
	req.Equal(domain.JoinApproved, status)
	room, err = membership.Room(ctx, "private-room-1")
	req.NoError(err)
	req.True(room.IsMember(bob.ID))
}

func TestMembership_DecideJoinRequest_CreatorOnly(t *testing.T) {
	req := require.New(t)
	_, membership, _, _, _ := newServices(t)
	ctx := context.Background()

	_, err := membership.CreateRoom(ctx, "private-room-1", true, alice)
	req.NoError(err)
	_, err = membership.RequestJoin(ctx, "private-room-1", bob)
	req.NoError(err)

	// The check lives in the controller, not the UI
	_, err = membership.DecideJoinRequest(ctx, "private-room-1", bob.ID, Approve, carol)
	req.ErrorIs(err, errors.ErrForbidden)
	_, err = membership.DecideJoinRequest(ctx, "private-room-1", bob.ID, Approve, bob)
	req.ErrorIs(err, errors.ErrForbidden)
}

func TestMembership_Rejection_IsSticky(t *testing.T) {
	req := require.New(t)
	_, membership, _, _, _ := newServices(t)
	ctx := context.Background()

	_, err := membership.CreateRoom(ctx, "private-room-1", true, alice)
	req.NoError(err)
	_, err = membership.RequestJoin(ctx, "private-room-1", bob)
	req.NoError(err)

	status, err := membership.DecideJoinRequest(ctx, "private-room-1", bob.ID, Reject, alice)
	req.NoError(err)
	req.Equal(domain.JoinRejected, status)

	// A rejected requester does not get a fresh pending request
	state, err := membership.RequestJoin(ctx, "private-room-1", bob)
	req.NoError(err)
	req.Equal(StateRejected, state)
}

func TestMembership_CancelThenReRequest(t *testing.T) {
	req := require.New(t)
	_, membership, _, _, _ := newServices(t)
	ctx := context.Background()

	_, err := membership.CreateRoom(ctx, "private-room-1", true, alice)
	req.NoError(err)

	// Cancelling with nothing pending is a no-op
	req.NoError(membership.CancelJoinRequest(ctx, "private-room-1", bob))

	_, err = membership.RequestJoin(ctx, "private-room-1", bob)
	req.NoError(err)
	req.NoError(membership.CancelJoinRequest(ctx, "private-room-1", bob))
	req.NoError(membership.CancelJoinRequest(ctx, "private-room-1", bob))

	// A withdrawn requester may ask again
	state, err := membership.RequestJoin(ctx, "private-room-1", bob)
	req.NoError(err)
	req.Equal(StatePending, state)
}

func TestMembership_LeaveRoom(t *testing.T) {
	req := require.New(t)
	_, membership, _, _, directory := newServices(t)
	ctx := context.Background()

	_, err := membership.CreateRoom(ctx, "book-club-42", false, alice)
	req.NoError(err)
	_, err = membership.RequestJoin(ctx, "book-club-42", bob)
	req.NoError(err)

	// Creators cannot leave: the member set must never empty
	req.ErrorIs(membership.LeaveRoom(ctx, "book-club-42", alice), errors.ErrForbidden)

	// Non-members cannot leave either
	req.ErrorIs(membership.LeaveRoom(ctx, "book-club-42", carol), errors.ErrNotMember)

	req.NoError(membership.LeaveRoom(ctx, "book-club-42", bob))
	room, err := membership.Room(ctx, "book-club-42")
	req.NoError(err)
	req.False(room.IsMember(bob.ID))

	// And the room left the directory too
	visible, err := directory.ListVisible(ctx, bob)
	req.NoError(err)
	req.Empty(visible)

	// Leaving twice fails the second time
	req.ErrorIs(membership.LeaveRoom(ctx, "book-club-42", bob), errors.ErrNotMember)
}

func TestMembership_WatchMembership_FollowsApproval(t *testing.T) {
	req := require.New(t)
	_, membership, _, _, _ := newServices(t)
	ctx := context.Background()

	_, err := membership.CreateRoom(ctx, "private-room-1", true, alice)
	req.NoError(err)

	sub, err := membership.WatchMembership("private-room-1", bob)
	req.NoError(err)
	defer sub.Cancel()

	_, err = membership.RequestJoin(ctx, "private-room-1", bob)
	req.NoError(err)
	await(t, sub.Updates(), func(u MembershipUpdate) bool { return u.State == StatePending }, "pending state")

	_, err = membership.DecideJoinRequest(ctx, "private-room-1", bob.ID, Approve, alice)
	req.NoError(err)
	update := await(t, sub.Updates(), func(u MembershipUpdate) bool { return u.State == StateMember }, "member state")
	req.True(update.Room.IsMember(bob.ID))
}

func TestMembership_WatchJoinRequests(t *testing.T) {
	req := require.New(t)
	_, membership, _, _, _ := newServices(t)
	ctx := context.Background()

	_, err := membership.CreateRoom(ctx, "private-room-1", true, alice)
	req.NoError(err)

	_, err = membership.WatchJoinRequests(ctx, "private-room-1", bob)
	req.ErrorIs(err, errors.ErrForbidden)

	sub, err := membership.WatchJoinRequests(ctx, "private-room-1", alice)
	req.NoError(err)
	defer sub.Cancel()

	_, err = membership.RequestJoin(ctx, "private-room-1", bob)
	req.NoError(err)
	_, err = membership.RequestJoin(ctx, "private-room-1", carol)
	req.NoError(err)

	pending := await(t, sub.Updates(), func(rs []domain.JoinRequest) bool { return len(rs) == 2 }, "two pending requests")
	req.Equal(bob.ID, pending[0].RequesterID) // oldest first
	req.Equal(carol.ID, pending[1].RequesterID)

	// Deciding one drops it from the pending view
	_, err = membership.DecideJoinRequest(ctx, "private-room-1", bob.ID, Approve, alice)
	req.NoError(err)
	await(t, sub.Updates(), func(rs []domain.JoinRequest) bool {
		return len(rs) == 1 && rs[0].RequesterID == carol.ID
	}, "one pending request")
}
