package domain

import "github.com/samber/lo"

// RecentRoomsCap bounds the per-user directory list.
const RecentRoomsCap = 10

// RecentRooms is a user's most-recent-first list of visited room
// identifiers, deduplicated and capped. Owned exclusively by the room
// directory for that user.
type RecentRooms struct {
	UserID  string
	RoomIDs []string
}

// Visit moves roomID to the front, deduplicates, and trims to the cap.
func (r *RecentRooms) Visit(roomID string) {
	r.RoomIDs = lo.Uniq(append([]string{roomID}, r.RoomIDs...))
	if len(r.RoomIDs) > RecentRoomsCap {
		r.RoomIDs = r.RoomIDs[:RecentRoomsCap]
	}
}

// Forget drops roomID from the list, if present.
func (r *RecentRooms) Forget(roomID string) {
	r.RoomIDs = lo.Without(r.RoomIDs, roomID)
}
