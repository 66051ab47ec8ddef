package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/example/roomchat/domain/chat"
	"github.com/example/roomchat/events"
	"github.com/example/roomchat/modules/broadcast"
	"github.com/example/roomchat/modules/presence"
	"github.com/example/roomchat/modules/store"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/jaevor/go-nanoid"
)

const roomIDLength = 10

// Publisher receives domain events after the corresponding change is durable.
// Publishing is best-effort and never affects the operation's outcome.
type Publisher interface {
	RoomCreated(ctx context.Context, event events.RoomCreatedEvent)
	UserJoined(ctx context.Context, event events.UserJoinedEvent)
	UserLeft(ctx context.Context, event events.UserLeftEvent)
	MessageSent(ctx context.Context, event events.MessageSentEvent)
}

type nopPublisher struct{}

func (nopPublisher) RoomCreated(context.Context, events.RoomCreatedEvent) {}
func (nopPublisher) UserJoined(context.Context, events.UserJoinedEvent)   {}
func (nopPublisher) UserLeft(context.Context, events.UserLeftEvent)       {}
func (nopPublisher) MessageSent(context.Context, events.MessageSentEvent) {}

// Service is the room session and message-broadcast engine.
//
// Durable participation lives in the RoomStore; live subscription lives in the
// Hub. Every operation that reads and then writes a room's participant set or
// log runs under that room's lock, and broadcasts are issued before the lock is
// released so that delivery order equals log order.
type Service struct {
	store     store.RoomStore
	presence  *presence.Registry
	hub       *broadcast.Hub
	publisher Publisher
	logger    types.Logger

	locks *roomLocks
	newID func() string
	now   func() time.Time
}

// NewService creates a new chat Service. A nil publisher disables events.
func NewService(st store.RoomStore, reg *presence.Registry, hub *broadcast.Hub, publisher Publisher, logger types.Logger) (*Service, error) {
	newID, err := nanoid.Standard(roomIDLength)
	if err != nil {
		return nil, fmt.Errorf("failed to create room id generator: %w", err)
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &Service{
		store:     st,
		presence:  reg,
		hub:       hub,
		publisher: publisher,
		logger:    logger,
		locks:     newRoomLocks(),
		newID:     newID,
		now:       time.Now,
	}, nil
}

// Attach registers a freshly authenticated connection.
func (s *Service) Attach(client *broadcast.Client) {
	s.hub.Attach(client)
	if s.presence.Register(client.Identity.UserID, client.ID) {
		s.logger.Debug("User online", "userID", client.Identity.UserID)
	}
}

// Detach removes a closed connection from every room and from presence.
// It supersedes any in-flight join for the same connection.
func (s *Service) Detach(client *broadcast.Client) {
	rooms := s.hub.Detach(client)
	if s.presence.Deregister(client.Identity.UserID, client.ID) {
		s.logger.Debug("User offline", "userID", client.Identity.UserID)
	}
	s.logger.Info("Connection closed",
		"clientID", client.ID,
		"userID", client.Identity.UserID,
		"rooms", len(rooms))
}

// CreateRoom creates a room whose only participant is the creator.
func (s *Service) CreateRoom(ctx context.Context, identity domain.Identity, name string) (*domain.Room, error) {
	name = strings.TrimSpace(name)
	if err := ValidateRoomName(name); err != nil {
		return nil, err
	}

	now := s.timestamp()
	room := &domain.Room{
		ID:           s.newID(),
		Name:         name,
		CreatedBy:    identity,
		Participants: []domain.Identity{identity},
		CreatedAt:    now,
		LastActivity: now,
	}
	if err := s.store.Insert(ctx, room); err != nil {
		return nil, err
	}

	s.logger.Info("Room created", "roomID", room.ID, "name", room.Name, "userID", identity.UserID)
	s.publisher.RoomCreated(ctx, events.RoomCreatedEvent{
		RoomID:    room.ID,
		RoomName:  room.Name,
		CreatedBy: identity.UserID,
		Username:  identity.Username,
		Timestamp: now,
	})
	return room, nil
}

// EnsureParticipant adds identity to roomID's durable participant set.
// It reports whether the set changed. Live subscribers are told about new
// participants with user-joined.
func (s *Service) EnsureParticipant(ctx context.Context, identity domain.Identity, roomID string) (*domain.Room, bool, error) {
	unlock := s.locks.lock(roomID)
	defer unlock()

	room, err := s.store.FindByRoomID(ctx, roomID)
	if err != nil {
		return nil, false, err
	}
	changed, err := s.ensureParticipantLocked(ctx, room, identity)
	if err != nil {
		return nil, false, err
	}
	if changed {
		s.announceJoin(ctx, room, identity, nil)
	}
	return room, changed, nil
}

func (s *Service) ensureParticipantLocked(ctx context.Context, room *domain.Room, identity domain.Identity) (bool, error) {
	if room.HasParticipant(identity.UserID) {
		return false, nil
	}
	participants := append(append([]domain.Identity{}, room.Participants...), identity)
	if err := s.store.UpdateParticipants(ctx, room.ID, participants); err != nil {
		return false, err
	}
	room.Participants = participants
	return true, nil
}

func (s *Service) announceJoin(ctx context.Context, room *domain.Room, identity domain.Identity, except *broadcast.Client) {
	s.broadcast(room.ID, broadcast.EventUserJoined, identity, except)
	s.logger.Info("User joined room", "userID", identity.UserID, "roomID", room.ID)
	s.publisher.UserJoined(ctx, events.UserJoinedEvent{
		RoomID:    room.ID,
		UserID:    identity.UserID,
		Username:  identity.Username,
		Timestamp: s.now().UTC(),
	})
}

// JoinRoom makes the connection's identity a participant if needed, subscribes
// the connection and returns a snapshot with the most recent messages.
// Rejoining as an existing participant does not announce user-joined.
func (s *Service) JoinRoom(ctx context.Context, client *broadcast.Client, roomID string) (*domain.RoomSnapshot, error) {
	if roomID == "" {
		return nil, ErrRoomIDRequired
	}
	unlock := s.locks.lock(roomID)
	defer unlock()

	room, err := s.store.FindByRoomID(ctx, roomID)
	if err != nil {
		return nil, err
	}

	// Subscribe first so a concurrent Detach either sees the subscription or
	// makes this call fail; roll back if anything durable fails afterwards.
	wasSubscribed := s.hub.IsSubscribed(roomID, client)
	if err := s.hub.Subscribe(roomID, client); err != nil {
		return nil, err
	}
	rollback := func() {
		if !wasSubscribed {
			s.hub.Unsubscribe(roomID, client)
		}
	}

	recent, err := s.store.RecentMessages(ctx, roomID, DefaultHistoryLimit)
	if err != nil {
		rollback()
		return nil, err
	}
	changed, err := s.ensureParticipantLocked(ctx, room, client.Identity)
	if err != nil {
		rollback()
		return nil, err
	}
	if changed {
		s.announceJoin(ctx, room, client.Identity, client)
	}

	return &domain.RoomSnapshot{
		Room:     *room,
		Messages: recent,
		HasMore:  room.MessageCount > int64(len(recent)),
	}, nil
}

// LeaveRoom removes identity from the participant set and unsubscribes all of
// its connections from the room. Leaving a missing room or a room the identity
// is not part of is a no-op.
func (s *Service) LeaveRoom(ctx context.Context, identity domain.Identity, roomID string) error {
	if roomID == "" {
		return ErrRoomIDRequired
	}
	unlock := s.locks.lock(roomID)
	defer unlock()

	room, err := s.store.FindByRoomID(ctx, roomID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !room.HasParticipant(identity.UserID) {
		return nil
	}

	if err := s.store.UpdateParticipants(ctx, roomID, room.WithoutParticipant(identity.UserID)); err != nil {
		return err
	}
	removed := s.hub.UnsubscribeUser(roomID, identity.UserID)
	s.broadcast(roomID, broadcast.EventUserLeft, identity, nil)

	s.logger.Info("User left room", "userID", identity.UserID, "roomID", roomID, "connections", len(removed))
	s.publisher.UserLeft(ctx, events.UserLeftEvent{
		RoomID:    roomID,
		UserID:    identity.UserID,
		Username:  identity.Username,
		Timestamp: s.now().UTC(),
	})
	return nil
}

// ListRooms returns the rooms identity participates in, most recently active first.
func (s *Service) ListRooms(ctx context.Context, identity domain.Identity) ([]domain.RoomSummary, error) {
	return s.store.FindByParticipant(ctx, identity.UserID)
}

// GetRoom returns a room to one of its participants.
func (s *Service) GetRoom(ctx context.Context, identity domain.Identity, roomID string) (*domain.Room, error) {
	return s.authorize(ctx, identity, roomID)
}

// CheckRoom probes existence and membership without changing any state.
func (s *Service) CheckRoom(ctx context.Context, identity domain.Identity, roomID string) (*domain.RoomCheck, error) {
	room, err := s.store.FindByRoomID(ctx, roomID)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.RoomCheck{Exists: false}, nil
	}
	if err != nil {
		return nil, err
	}
	isParticipant := room.HasParticipant(identity.UserID)
	return &domain.RoomCheck{
		Exists:        true,
		Name:          room.Name,
		IsParticipant: &isParticipant,
	}, nil
}

// OnlineUsers returns the participants of roomID that have a live connection.
func (s *Service) OnlineUsers(ctx context.Context, identity domain.Identity, roomID string) ([]domain.Identity, error) {
	room, err := s.authorize(ctx, identity, roomID)
	if err != nil {
		return nil, err
	}
	online := make(map[string]bool)
	for _, id := range s.presence.OnlineSubsetOf(room.ParticipantIDs()) {
		online[id] = true
	}
	users := make([]domain.Identity, 0, len(online))
	for _, p := range room.Participants {
		if online[p.UserID] {
			users = append(users, p)
		}
	}
	return users, nil
}

// Stats reports live state for health checks.
func (s *Service) Stats() map[string]any {
	return map[string]any{
		"connected_clients": s.hub.ClientCount(),
		"active_rooms":      s.hub.RoomCount(),
		"online_users":      s.presence.OnlineCount(),
	}
}

// authorize loads roomID and checks that identity participates in it.
func (s *Service) authorize(ctx context.Context, identity domain.Identity, roomID string) (*domain.Room, error) {
	if roomID == "" {
		return nil, ErrRoomIDRequired
	}
	room, err := s.store.FindByRoomID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(identity.UserID) {
		return nil, domain.ErrForbidden
	}
	return room, nil
}

func (s *Service) broadcast(roomID, event string, data any, except *broadcast.Client) {
	frame, err := broadcast.Encode(event, data)
	if err != nil {
		s.logger.Error("Failed to encode broadcast", "event", event, "roomID", roomID, "error", err)
		return
	}
	s.hub.Publish(roomID, frame, except)
}

func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}
