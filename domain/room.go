package domain

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"wordins/errors"
)

const maxRoomNameRunes = 64

// Room is a named chat channel with a member set and invite policy.
// The identifier is the normalized name and is immutable once created.
type Room struct {
	ID          string
	DisplayName string
	CreatorID   string
	InviteOnly  bool
	Members     map[string]struct{}
	CreatedAt   time.Time
}

// NormalizeRoomID maps a user-facing room name to its unique identifier:
// trimmed, lowercased, inner whitespace collapsed to single dashes.
func NormalizeRoomID(name string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(name))
	id = strings.Join(strings.Fields(id), "-")
	if id == "" || utf8.RuneCountInString(name) > maxRoomNameRunes {
		return "", errors.ErrInvalidRoomName
	}
	return id, nil
}

func NewRoom(name string, inviteOnly bool, creator Identity, at time.Time) (Room, error) {
	id, err := NormalizeRoomID(name)
	if err != nil {
		return Room{}, err
	}
	return Room{
		ID:          id,
		DisplayName: strings.TrimSpace(name),
		CreatorID:   creator.ID,
		InviteOnly:  inviteOnly,
		Members:     map[string]struct{}{creator.ID: {}},
		CreatedAt:   at,
	}, nil
}

func (r Room) IsMember(userID string) bool {
	_, ok := r.Members[userID]
	return ok
}

func (r Room) IsCreator(userID string) bool {
	return r.CreatorID == userID
}

// MemberList returns the member set as a sorted slice, the shape it is
// persisted in. Sorting keeps the stored form deterministic so concurrent
// last-writer-wins unions converge on identical documents.
func (r Room) MemberList() []string {
	members := make([]string, 0, len(r.Members))
	for id := range r.Members {
		members = append(members, id)
	}
	sort.Strings(members)
	return members
}

// MembersFromList rebuilds the in-memory set from the persisted slice.
// Duplicates collapse, making re-applied unions harmless.
func MembersFromList(ids []string) map[string]struct{} {
	members := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		members[id] = struct{}{}
	}
	return members
}
