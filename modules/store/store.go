// Package store persists rooms, participant sets and message logs.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/example/roomchat/domain/chat"
)

// Supported drivers for NewFromConfig.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// RoomStore is the durable collaborator of the chat engine. Every failure other
// than a missing record is reported as domain.ErrStorageUnavailable.
type RoomStore interface {
	// Insert persists a new room together with its initial participant set.
	Insert(ctx context.Context, room *domain.Room) error
	// FindByRoomID returns the room with its participants, or domain.ErrNotFound.
	FindByRoomID(ctx context.Context, roomID string) (*domain.Room, error)
	// FindByParticipant lists rooms userID participates in, most recently active first.
	FindByParticipant(ctx context.Context, userID string) ([]domain.RoomSummary, error)
	// AppendMessage inserts msg and sets the room's last activity to msg.CreatedAt
	// and its message count to msg.Seq in one transaction.
	AppendMessage(ctx context.Context, msg *domain.Message) error
	// UpdateParticipants replaces the participant set of roomID.
	UpdateParticipants(ctx context.Context, roomID string, participants []domain.Identity) error
	// RecentMessages returns the last limit messages of roomID, oldest first.
	RecentMessages(ctx context.Context, roomID string, limit int) ([]domain.Message, error)
	// MessagesBefore returns up to limit messages with seq lower than beforeSeq, oldest first.
	MessagesBefore(ctx context.Context, roomID string, beforeSeq int64, limit int) ([]domain.Message, error)
	// SeqAt resolves a createdAt cursor to the seq of the message carrying it exactly.
	SeqAt(ctx context.Context, roomID string, createdAt time.Time) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a RoomStore backend.
type Config struct {
	Driver      string
	SQLitePath  string
	DatabaseURL string
	Debug       bool
}

// NewFromConfig opens the backend named by cfg.Driver.
func NewFromConfig(ctx context.Context, cfg Config) (RoomStore, error) {
	switch cfg.Driver {
	case DriverSQLite, "":
		s, err := OpenSQLite(cfg.SQLitePath, cfg.Debug)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

var (
	errDuplicateRoom = errors.New("room id already exists")
	errSeqConflict   = errors.New("message sequence conflict")
)

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStorageUnavailable, op, err)
}

func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

// exactMicros converts a cursor to stored precision. Cursors finer than a
// microsecond cannot identify a stored message.
func exactMicros(t time.Time) (int64, bool) {
	return t.UnixMicro(), t.Equal(t.Truncate(time.Microsecond))
}
