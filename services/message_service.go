//go:generate go run go.uber.org/mock/mockgen -source=message_service.go -destination=../mocks/mock_message_service.go -package=mocks
package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"wordins/domain"
	"wordins/errors"
	"wordins/projection"
	"wordins/store"
)

// SendCommand carries everything a message append needs. ClientID makes
// retries idempotent: re-sending the same command after a transient store
// failure yields exactly one message. A zero ClientID is assigned fresh.
type SendCommand struct {
	RoomID   string
	Sender   domain.Identity
	Body     string
	Effect   domain.Effect
	ClientID uuid.UUID
}

type IMessageService interface {
	Send(ctx context.Context, cmd SendCommand) (domain.Message, error)
	Subscribe(roomID string) (*MessageSubscription, error)
}

// MessageService owns the append-only message collections and their
// ordered live views.
type MessageService struct {
	store    store.Store
	log      *slog.Logger
	presence IPresenceService
}

func NewMessageService(s store.Store, log *slog.Logger, presence IPresenceService) *MessageService {
	return &MessageService{store: s, log: log, presence: presence}
}

// Send validates locally, appends the message with a sender snapshot, and
// clears the sender's typing flag. Validation failures never reach the
// store; store failures surface to the caller, who retries the whole
// command (same ClientID) explicitly.
func (s *MessageService) Send(ctx context.Context, cmd SendCommand) (domain.Message, error) {
	if err := (domain.Draft{Body: cmd.Body, Effect: cmd.Effect}).Validate(); err != nil {
		return domain.Message{}, err
	}

	roomDoc, err := s.store.Get(ctx, roomPath(cmd.RoomID))
	if err != nil {
		return domain.Message{}, err
	}
	room := roomFromDoc(cmd.RoomID, roomDoc)
	if !room.IsMember(cmd.Sender.ID) {
		return domain.Message{}, fmt.Errorf("sender %q in room %q: %w", cmd.Sender.ID, cmd.RoomID, errors.ErrNotMember)
	}

	clientID := cmd.ClientID
	if clientID == uuid.Nil {
		clientID = uuid.New()
	}
	id, err := s.store.AppendChild(ctx, messagesCollection(cmd.RoomID), store.Document{
		"id":             clientID.String(),
		"uid":            cmd.Sender.ID,
		"sender":         cmd.Sender.Name,
		"senderPhotoURL": cmd.Sender.AvatarURL,
		"text":           cmd.Body,
		"effect":         string(cmd.Effect),
	})
	if err != nil {
		return domain.Message{}, err
	}

	// Sending is the natural end of typing; clear the flag so receivers
	// drop the indicator together with the message arriving.
	if err := s.presence.SetTyping(ctx, cmd.RoomID, cmd.Sender, false); err != nil {
		s.log.Warn("Typing flag not cleared after send", "room", cmd.RoomID, "user", cmd.Sender.ID, "error", err)
	}

	appended, err := s.store.Get(ctx, messagesCollection(cmd.RoomID)+"/"+id)
	if err != nil {
		return domain.Message{}, err
	}
	return messageFromDoc(cmd.RoomID, appended), nil
}

// MessageSubscription is the live, totally ordered view of a room's
// messages. Each update is the full refreshed timeline, not a diff.
type MessageSubscription struct {
	updates chan []domain.Message
	cancel  func()
}

func (m *MessageSubscription) Updates() <-chan []domain.Message { return m.updates }
func (m *MessageSubscription) Cancel()                          { m.cancel() }

// Subscribe attaches to a room's message stream. It prefers the store's
// ordered watch; when the collection has no index for it, the unordered
// watch plus client-side projection is a permanent, equivalent mode (the
// timeline sorts deterministically either way).
func (s *MessageService) Subscribe(roomID string) (*MessageSubscription, error) {
	sub, err := s.store.WatchOrdered(messagesCollection(roomID), "ts")
	if stderrors.Is(err, errors.ErrIndexMissing) {
		s.log.Debug("Ordered watch unavailable, sorting client-side", "room", roomID)
		sub, err = s.store.WatchCollection(messagesCollection(roomID))
	}
	if err != nil {
		return nil, err
	}

	out := &MessageSubscription{
		updates: make(chan []domain.Message, 1),
		cancel:  sub.Cancel,
	}
	go func() {
		defer close(out.updates)
		var timeline projection.Timeline
		for snap := range sub.Updates() {
			msgs := lo.Map(snap.Docs, func(doc store.Document, _ int) domain.Message {
				return messageFromDoc(roomID, doc)
			})
			timeline.Apply(msgs)
			push(out.updates, timeline.Messages)
		}
	}()
	return out, nil
}

func messageFromDoc(roomID string, doc store.Document) domain.Message {
	// Messages written by unknown clients may carry malformed ids; a
	// zero uuid keeps them visible and deterministically ordered.
	id, err := uuid.Parse(doc.String("id"))
	if err != nil {
		id = uuid.Nil
	}
	return domain.Message{
		ID:         id,
		RoomID:     roomID,
		SenderID:   doc.String("uid"),
		SenderName: doc.String("sender"),
		AvatarURL:  doc.String("senderPhotoURL"),
		Body:       doc.String("text"),
		Effect:     domain.Effect(doc.String("effect")),
		SentAt:     doc.Time("ts"),
	}
}
