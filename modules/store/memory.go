package store

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "github.com/example/roomchat/domain/chat"
)

// MemoryStore keeps rooms in process memory. It is used by tests and by
// STORE_DRIVER=memory for throwaway deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	rooms    map[string]*domain.Room
	messages map[string][]domain.Message
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms:    make(map[string]*domain.Room),
		messages: make(map[string][]domain.Message),
	}
}

func copyRoom(r *domain.Room) *domain.Room {
	c := *r
	c.Participants = append([]domain.Identity(nil), r.Participants...)
	return &c
}

func (s *MemoryStore) Insert(_ context.Context, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rooms[room.ID]; exists {
		return unavailable("insert room", errDuplicateRoom)
	}
	s.rooms[room.ID] = copyRoom(room)
	s.messages[room.ID] = nil
	return nil
}

func (s *MemoryStore) FindByRoomID(_ context.Context, roomID string) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyRoom(room), nil
}

func (s *MemoryStore) FindByParticipant(_ context.Context, userID string) ([]domain.RoomSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]domain.RoomSummary, 0)
	for _, room := range s.rooms {
		if room.HasParticipant(userID) {
			summaries = append(summaries, room.Summary())
		}
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastActivity.After(summaries[j].LastActivity)
	})
	return summaries, nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[msg.RoomID]
	if !ok {
		return domain.ErrNotFound
	}
	if msg.Seq != room.MessageCount+1 {
		return unavailable("append message", errSeqConflict)
	}
	s.messages[msg.RoomID] = append(s.messages[msg.RoomID], *msg)
	room.LastActivity = msg.CreatedAt
	room.MessageCount = msg.Seq
	return nil
}

func (s *MemoryStore) UpdateParticipants(_ context.Context, roomID string, participants []domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return domain.ErrNotFound
	}
	room.Participants = append([]domain.Identity(nil), participants...)
	return nil
}

func (s *MemoryStore) RecentMessages(_ context.Context, roomID string, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.messages[roomID]
	start := len(log) - limit
	if start < 0 {
		start = 0
	}
	return append([]domain.Message{}, log[start:]...), nil
}

func (s *MemoryStore) MessagesBefore(_ context.Context, roomID string, beforeSeq int64, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.messages[roomID]
	end := int(beforeSeq - 1)
	if end > len(log) {
		end = len(log)
	}
	if end <= 0 {
		return []domain.Message{}, nil
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	return append([]domain.Message{}, log[start:end]...), nil
}

func (s *MemoryStore) SeqAt(_ context.Context, roomID string, createdAt time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log := s.messages[roomID]
	i := sort.Search(len(log), func(i int) bool {
		return !log[i].CreatedAt.Before(createdAt)
	})
	if i < len(log) && log[i].CreatedAt.Equal(createdAt) {
		return log[i].Seq, nil
	}
	return 0, domain.ErrNotFound
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
