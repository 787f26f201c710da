package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"wordins/errors"
)

func TestPresence_SetTyping_NonMemberIsSilent(t *testing.T) {
	req := require.New(t)
	s, membership, _, presence, _ := newServices(t)
	ctx := context.Background()

	_, err := membership.CreateRoom(ctx, "book-club-42", false, alice)
	req.NoError(err)

	// Neither an unknown room nor a non-member is an error
	req.NoError(presence.SetTyping(ctx, "no-such-room", bob, true))
	req.NoError(presence.SetTyping(ctx, "book-club-42", bob, true))

	// And nothing was written for the non-member
	_, err = s.Get(ctx, typingPath("book-club-42", bob.ID))
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestPresence_Subscribe_ExcludesSubscriber(t *testing.T) {
	req := require.New(t)
	_, membership, _, presence, _ := newServices(t)
	ctx := context.Background()

	_, err := membership.CreateRoom(ctx, "book-club-42", false, alice)
	req.NoError(err)
	_, err = membership.RequestJoin(ctx, "book-club-42", bob)
	req.NoError(err)

	sub, err := presence.Subscribe("book-club-42", bob.ID)
	req.NoError(err)
	defer sub.Cancel()

	req.NoError(presence.SetTyping(ctx, "book-club-42", alice, true))
	req.NoError(presence.SetTyping(ctx, "book-club-42", bob, true))

	// Bob watches: Alice shows up, Bob's own flag never does
	names := await(t, sub.Updates(), func(ns []string) bool { return len(ns) > 0 }, "typing names")
	req.Equal([]string{"Alice"}, names)
}

func TestPresence_Subscribe_ClearedStateDisappears(t *testing.T) {
	req := require.New(t)
	_, membership, _, presence, _ := newServices(t)
	ctx := context.Background()

	_, err := membership.CreateRoom(ctx, "book-club-42", false, alice)
	req.NoError(err)

	sub, err := presence.Subscribe("book-club-42", bob.ID)
	req.NoError(err)
	defer sub.Cancel()

	req.NoError(presence.SetTyping(ctx, "book-club-42", alice, true))
	await(t, sub.Updates(), func(ns []string) bool { return len(ns) == 1 }, "alice typing")

	req.NoError(presence.SetTyping(ctx, "book-club-42", alice, false))
	await(t, sub.Updates(), func(ns []string) bool { return len(ns) == 0 }, "alice stopped")
}

func TestPresence_Subscribe_StaleStateExpiresWithoutClear(t *testing.T) {
	req := require.New(t)
	_, membership, _, presence, _ := newServices(t)
	ctx := context.Background()

	_, err := membership.CreateRoom(ctx, "book-club-42", false, alice)
	req.NoError(err)

	sub, err := presence.Subscribe("book-club-42", bob.ID)
	req.NoError(err)
	defer sub.Cancel()

	// Alice starts typing and then her client vanishes: no clear ever
	// arrives, only the staleness ticker removes her
	req.NoError(presence.SetTyping(ctx, "book-club-42", alice, true))
	await(t, sub.Updates(), func(ns []string) bool { return len(ns) == 1 }, "alice typing")
	await(t, sub.Updates(), func(ns []string) bool { return len(ns) == 0 }, "alice expired")
}

func TestPresence_Subscribe_SortedNames(t *testing.T) {
	req := require.New(t)
	_, membership, _, presence, _ := newServices(t)
	ctx := context.Background()

	_, err := membership.CreateRoom(ctx, "book-club-42", false, alice)
	req.NoError(err)
	_, err = membership.RequestJoin(ctx, "book-club-42", bob)
	req.NoError(err)
	_, err = membership.RequestJoin(ctx, "book-club-42", carol)
	req.NoError(err)

	sub, err := presence.Subscribe("book-club-42", "")
	req.NoError(err)
	defer sub.Cancel()

	// Written out of order, projected sorted
	req.NoError(presence.SetTyping(ctx, "book-club-42", carol, true))
	req.NoError(presence.SetTyping(ctx, "book-club-42", alice, true))
	req.NoError(presence.SetTyping(ctx, "book-club-42", bob, true))

	names := await(t, sub.Updates(), func(ns []string) bool { return len(ns) == 3 }, "three typists")
	req.Equal([]string{"Alice", "Bob", "Carol"}, names)
}

func TestPresence_Cancel_IsIdempotent(t *testing.T) {
	req := require.New(t)
	_, membership, _, presence, _ := newServices(t)
	ctx := context.Background()

	_, err := membership.CreateRoom(ctx, "book-club-42", false, alice)
	req.NoError(err)

	sub, err := presence.Subscribe("book-club-42", "")
	req.NoError(err)
	sub.Cancel()
	sub.Cancel()

	// The updates channel drains and closes after cancellation
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-sub.Updates():
			if !ok {
				return
			}
		case <-deadline:
			req.FailNow("updates channel was not closed after Cancel")
		}
	}
}
