package chat

import (
	"context"
	"errors"
	"time"

	domain "github.com/example/roomchat/domain/chat"
)

// GetRecent returns the last limit messages of roomID, oldest first.
func (s *Service) GetRecent(ctx context.Context, identity domain.Identity, roomID string, limit int) ([]domain.Message, error) {
	if _, err := s.authorize(ctx, identity, roomID); err != nil {
		return nil, err
	}
	return s.store.RecentMessages(ctx, roomID, defaultLimit(limit))
}

// GetBefore returns up to limit messages strictly preceding the message whose
// createdAt equals cursor. A cursor that matches no message yields an empty
// page with HasMore false.
func (s *Service) GetBefore(ctx context.Context, identity domain.Identity, roomID string, cursor time.Time, limit int) (*domain.HistoryPage, error) {
	if _, err := s.authorize(ctx, identity, roomID); err != nil {
		return nil, err
	}
	limit = defaultLimit(limit)

	seq, err := s.store.SeqAt(ctx, roomID, cursor)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.HistoryPage{Messages: []domain.Message{}, HasMore: false}, nil
	}
	if err != nil {
		return nil, err
	}

	msgs, err := s.store.MessagesBefore(ctx, roomID, seq, limit)
	if err != nil {
		return nil, err
	}
	// Seqs are contiguous from 1, so the cursor sits at index seq-1.
	k := seq - 1
	return &domain.HistoryPage{
		Messages: msgs,
		HasMore:  k-int64(limit) > 0,
	}, nil
}

// History serves get-messages: the latest page when before is nil, otherwise
// the page preceding the cursor.
func (s *Service) History(ctx context.Context, identity domain.Identity, roomID string, limit int, before *time.Time) (*domain.HistoryPage, error) {
	if before != nil {
		return s.GetBefore(ctx, identity, roomID, *before, limit)
	}

	// The count and the page must come from the same log state.
	unlock := s.locks.lock(roomID)
	defer unlock()

	room, err := s.authorize(ctx, identity, roomID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.RecentMessages(ctx, roomID, defaultLimit(limit))
	if err != nil {
		return nil, err
	}
	return &domain.HistoryPage{
		Messages: msgs,
		HasMore:  room.MessageCount > int64(len(msgs)),
	}, nil
}

// defaultLimit substitutes DefaultHistoryLimit for a missing limit. The upper
// bound is applied by the transports with NormalizeLimit.
func defaultLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}
