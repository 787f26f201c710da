package e2e

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"wordins/domain"
	"wordins/services"
)

type testRoomLifecycleSuite struct {
	BaseEngineSuite
}

func TestRoomLifecycleSuite(t *testing.T) {
	suite.Run(t, &testRoomLifecycleSuite{})
}

var (
	alice = domain.Identity{ID: "alice", Name: "Alice", AvatarURL: "https://cdn/a.png"}
	bob   = domain.Identity{ID: "bob", Name: "Bob", AvatarURL: "https://cdn/b.png"}
	carol = domain.Identity{ID: "carol", Name: "Carol"}
)

func (s *testRoomLifecycleSuite) TestOpenRoomChatFlow() {
	var sub *services.MessageSubscription

	s.Step("Alice creates an open room and Bob joins", func(ctx context.Context) {
		room, err := s.Engine.Membership.CreateRoom(ctx, "Friday Hangout", false, alice)
		s.Require().NoError(err)
		s.Require().Equal("friday-hangout", room.ID)

		state, err := s.Engine.Membership.RequestJoin(ctx, room.ID, bob)
		s.Require().NoError(err)
		s.Require().Equal(services.StateMember, state)
	})

	s.Step("Bob subscribes and both exchange messages", func(ctx context.Context) {
		var err error
		sub, err = s.Engine.Messages.Subscribe("friday-hangout")
		s.Require().NoError(err)

		_, err = s.Engine.Messages.Send(ctx, services.SendCommand{
			RoomID: "friday-hangout", Sender: alice, Body: "welcome!",
		})
		s.Require().NoError(err)
		_, err = s.Engine.Messages.Send(ctx, services.SendCommand{
			RoomID: "friday-hangout", Sender: bob, Body: "thanks", Effect: domain.EffectConfetti,
		})
		s.Require().NoError(err)
	})

	s.Step("The timeline arrives ordered with sender snapshots", func(ctx context.Context) {
		defer sub.Cancel()
		msgs := AwaitUpdate(&s.BaseEngineSuite, sub.Updates(), func(ms []domain.Message) bool {
			return len(ms) == 2
		}, "two messages")

		s.Require().Equal("welcome!", msgs[0].Body)
		s.Require().Equal("Alice", msgs[0].SenderName)
		s.Require().Equal("thanks", msgs[1].Body)
		s.Require().Equal(domain.EffectConfetti, msgs[1].Effect)
		s.Require().True(msgs[0].SentAt.Before(msgs[1].SentAt))
	})

	s.Step("An outsider cannot post", func(ctx context.Context) {
		_, err := s.Engine.Messages.Send(ctx, services.SendCommand{
			RoomID: "friday-hangout", Sender: carol, Body: "let me in",
		})
		s.Require().Error(err)
	})
}

func (s *testRoomLifecycleSuite) TestInviteOnlyApprovalFlow() {
	s.Step("Alice creates an invite-only room", func(ctx context.Context) {
		_, err := s.Engine.Membership.CreateRoom(ctx, "Secret Society", true, alice)
		s.Require().NoError(err)
	})

	var memberSub *services.MembershipSubscription
	s.Step("Bob requests to join and watches his own state", func(ctx context.Context) {
		var err error
		memberSub, err = s.Engine.Membership.WatchMembership("secret-society", bob)
		s.Require().NoError(err)

		state, err := s.Engine.Membership.RequestJoin(ctx, "secret-society", bob)
		s.Require().NoError(err)
		s.Require().Equal(services.StatePending, state)

		AwaitUpdate(&s.BaseEngineSuite, memberSub.Updates(), func(u services.MembershipUpdate) bool {
			return u.State == services.StatePending
		}, "pending membership state")
	})

	s.Step("Alice sees the pending request and approves it", func(ctx context.Context) {
		reqSub, err := s.Engine.Membership.WatchJoinRequests(ctx, "secret-society", alice)
		s.Require().NoError(err)
		defer reqSub.Cancel()

		pending := AwaitUpdate(&s.BaseEngineSuite, reqSub.Updates(), func(rs []domain.JoinRequest) bool {
			return len(rs) == 1
		}, "one pending request")
		s.Require().Equal(bob.ID, pending[0].RequesterID)

		status, err := s.Engine.Membership.DecideJoinRequest(ctx, "secret-society", bob.ID, services.Approve, alice)
		s.Require().NoError(err)
		s.Require().Equal(domain.JoinApproved, status)
	})

	s.Step("Bob's watch converges to member and he can post", func(ctx context.Context) {
		defer memberSub.Cancel()
		AwaitUpdate(&s.BaseEngineSuite, memberSub.Updates(), func(u services.MembershipUpdate) bool {
			return u.State == services.StateMember
		}, "member state")

		_, err := s.Engine.Messages.Send(ctx, services.SendCommand{
			RoomID: "secret-society", Sender: bob, Body: "finally in",
		})
		s.Require().NoError(err)
	})

	s.Step("Carol gets rejected and stays out", func(ctx context.Context) {
		_, err := s.Engine.Membership.RequestJoin(ctx, "secret-society", carol)
		s.Require().NoError(err)
		status, err := s.Engine.Membership.DecideJoinRequest(ctx, "secret-society", carol.ID, services.Reject, alice)
		s.Require().NoError(err)
		s.Require().Equal(domain.JoinRejected, status)

		// Re-asking does not resurrect the request
		state, err := s.Engine.Membership.RequestJoin(ctx, "secret-society", carol)
		s.Require().NoError(err)
		s.Require().Equal(services.StateRejected, state)
	})
}

func (s *testRoomLifecycleSuite) TestPresenceAndDirectory() {
	s.Step("Setup: a shared room", func(ctx context.Context) {
		_, err := s.Engine.Membership.CreateRoom(ctx, "watercooler", false, alice)
		s.Require().NoError(err)
		_, err = s.Engine.Membership.RequestJoin(ctx, "watercooler", bob)
		s.Require().NoError(err)
	})

	s.Step("Typing indicators appear and expire on their own", func(ctx context.Context) {
		sub, err := s.Engine.Presence.Subscribe("watercooler", bob.ID)
		s.Require().NoError(err)
		defer sub.Cancel()

		s.Require().NoError(s.Engine.Presence.SetTyping(ctx, "watercooler", alice, true))
		names := AwaitUpdate(&s.BaseEngineSuite, sub.Updates(), func(ns []string) bool {
			return len(ns) == 1
		}, "alice typing")
		s.Require().Equal([]string{"Alice"}, names)

		// Alice's client goes silent; the staleness window clears her
		AwaitUpdate(&s.BaseEngineSuite, sub.Updates(), func(ns []string) bool {
			return len(ns) == 0
		}, "typing state expired")
	})

	s.Step("The directory tracks visits and leaving forgets", func(ctx context.Context) {
		visible, err := s.Engine.Directory.ListVisible(ctx, bob)
		s.Require().NoError(err)
		s.Require().Len(visible, 1)
		s.Require().Equal("watercooler", visible[0].ID)

		s.Require().NoError(s.Engine.Membership.LeaveRoom(ctx, "watercooler", bob))
		visible, err = s.Engine.Directory.ListVisible(ctx, bob)
		s.Require().NoError(err)
		s.Require().Empty(visible)
	})
}
