package chat

import (
	"context"
	"time"

	domain "github.com/example/roomchat/domain/chat"
	"github.com/example/roomchat/events"
	"github.com/example/roomchat/modules/broadcast"
	"github.com/google/uuid"
)

// TypingPayload is broadcast as user-typing.
type TypingPayload struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// SendMessage appends content to roomID's log and broadcasts it to every
// subscriber, the sender's own connections included. Only durable
// participants may send; live subscription is not required.
func (s *Service) SendMessage(ctx context.Context, identity domain.Identity, roomID, content string) (*domain.Message, error) {
	if roomID == "" {
		return nil, ErrRoomIDRequired
	}

	unlock := s.locks.lock(roomID)
	defer unlock()

	room, err := s.store.FindByRoomID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(identity.UserID) {
		return nil, domain.ErrForbidden
	}
	if err := ValidateMessage(content); err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		Seq:       room.MessageCount + 1,
		UserID:    identity.UserID,
		Username:  identity.Username,
		Content:   content,
		CreatedAt: s.nextCreatedAt(room),
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	s.broadcast(roomID, broadcast.EventNewMessage, msg, nil)

	s.logger.Debug("Message sent", "roomID", roomID, "seq", msg.Seq, "userID", identity.UserID)
	s.publisher.MessageSent(ctx, events.MessageSentEvent{
		MessageID: msg.ID,
		RoomID:    roomID,
		Seq:       msg.Seq,
		UserID:    identity.UserID,
		Username:  identity.Username,
		Length:    len(content),
		Timestamp: msg.CreatedAt,
	})
	return msg, nil
}

// nextCreatedAt returns a timestamp strictly after the room's last activity so
// that createdAt identifies exactly one message in the room.
func (s *Service) nextCreatedAt(room *domain.Room) time.Time {
	ts := s.timestamp()
	if !ts.After(room.LastActivity) {
		ts = room.LastActivity.Add(time.Microsecond)
	}
	return ts
}

// Typing relays a typing indicator to the other subscribers of roomID.
// Connections that are not subscribed are ignored.
func (s *Service) Typing(client *broadcast.Client, roomID string, isTyping bool) {
	unlock := s.locks.lock(roomID)
	defer unlock()

	if !s.hub.IsSubscribed(roomID, client) {
		return
	}
	s.broadcast(roomID, broadcast.EventUserTyping, TypingPayload{
		RoomID:   roomID,
		UserID:   client.Identity.UserID,
		Username: client.Identity.Username,
		IsTyping: isTyping,
	}, client)
}
