package domain

import "time"

// JoinStatus is the lifecycle state of a join request.
// pending is the only live state; all others are terminal.
type JoinStatus string

const (
	JoinPending   JoinStatus = "pending"
	JoinApproved  JoinStatus = "approved"
	JoinRejected  JoinStatus = "rejected"
	JoinCancelled JoinStatus = "cancelled"
)

func (s JoinStatus) Terminal() bool {
	return s == JoinApproved || s == JoinRejected || s == JoinCancelled
}

// JoinRequest is a requester's ask to enter an invite-only room, keyed by
// (room, requester) so at most one live request can exist per pair.
type JoinRequest struct {
	RoomID      string
	RequesterID string
	Name        string
	AvatarURL   string
	Status      JoinStatus
	RequestedAt time.Time
}

func NewJoinRequest(roomID string, requester Identity, at time.Time) JoinRequest {
	return JoinRequest{
		RoomID:      roomID,
		RequesterID: requester.ID,
		Name:        requester.Name,
		AvatarURL:   requester.AvatarURL,
		Status:      JoinPending,
		RequestedAt: at,
	}
}

// CanTransition reports whether moving to next respects the monotonic
// pending -> terminal state machine. Terminal states never change, and
// nothing ever returns to pending.
func (r JoinRequest) CanTransition(next JoinStatus) bool {
	return r.Status == JoinPending && next.Terminal()
}
