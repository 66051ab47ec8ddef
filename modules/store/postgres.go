package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/example/roomchat/domain/chat"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS rooms (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	created_by_id    TEXT NOT NULL,
	created_by_name  TEXT NOT NULL,
	created_at_us    BIGINT NOT NULL,
	last_activity_us BIGINT NOT NULL,
	message_count    BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_rooms_last_activity ON rooms (last_activity_us DESC);

CREATE TABLE IF NOT EXISTS room_participants (
	room_id  TEXT NOT NULL REFERENCES rooms (id) ON DELETE CASCADE,
	user_id  TEXT NOT NULL,
	username TEXT NOT NULL,
	position INT NOT NULL,
	PRIMARY KEY (room_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_room_participants_user ON room_participants (user_id);

CREATE TABLE IF NOT EXISTS messages (
	id            TEXT PRIMARY KEY,
	room_id       TEXT NOT NULL REFERENCES rooms (id) ON DELETE CASCADE,
	seq           BIGINT NOT NULL,
	user_id       TEXT NOT NULL,
	username      TEXT NOT NULL,
	content       TEXT NOT NULL,
	created_at_us BIGINT NOT NULL,
	UNIQUE (room_id, seq)
);
CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages (room_id, created_at_us);
`

// PostgresStore implements RoomStore on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and ensures the schema exists.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s, err := NewPostgresStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an existing pool and applies the schema.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Insert(ctx context.Context, room *domain.Room) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO rooms (id, name, created_by_id, created_by_name, created_at_us, last_activity_us, message_count)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			room.ID, room.Name, room.CreatedBy.UserID, room.CreatedBy.Username,
			room.CreatedAt.UnixMicro(), room.LastActivity.UnixMicro(), room.MessageCount,
		)
		if err != nil {
			return err
		}
		return insertParticipants(ctx, tx, room.ID, room.Participants)
	})
	if err != nil {
		return unavailable("insert room", err)
	}
	return nil
}

func insertParticipants(ctx context.Context, tx pgx.Tx, roomID string, participants []domain.Identity) error {
	batch := &pgx.Batch{}
	for i, p := range participants {
		batch.Queue(
			`INSERT INTO room_participants (room_id, user_id, username, position) VALUES ($1, $2, $3, $4)`,
			roomID, p.UserID, p.Username, i,
		)
	}
	return tx.SendBatch(ctx, batch).Close()
}

func (s *PostgresStore) FindByRoomID(ctx context.Context, roomID string) (*domain.Room, error) {
	var room *domain.Room
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead}, func(tx pgx.Tx) error {
		var rec roomRecord
		err := tx.QueryRow(ctx,
			`SELECT id, name, created_by_id, created_by_name, created_at_us, last_activity_us, message_count
			 FROM rooms WHERE id = $1`, roomID,
		).Scan(&rec.ID, &rec.Name, &rec.CreatedByID, &rec.CreatedByName, &rec.CreatedAtUs, &rec.LastActivityUs, &rec.MessageCount)
		if err != nil {
			return err
		}

		rows, err := tx.Query(ctx,
			`SELECT room_id, user_id, username, position FROM room_participants WHERE room_id = $1 ORDER BY position`, roomID)
		if err != nil {
			return err
		}
		parts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (participantRecord, error) {
			var p participantRecord
			err := row.Scan(&p.RoomID, &p.UserID, &p.Username, &p.Position)
			return p, err
		})
		if err != nil {
			return err
		}
		room = rec.toDomain(parts)
		return nil
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, unavailable("find room", err)
	}
	return room, nil
}

func (s *PostgresStore) FindByParticipant(ctx context.Context, userID string) ([]domain.RoomSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.id, r.name, r.created_by_id, r.created_by_name, r.created_at_us, r.last_activity_us, r.message_count,
		       (SELECT count(*) FROM room_participants c WHERE c.room_id = r.id)
		FROM rooms r
		JOIN room_participants p ON p.room_id = r.id
		WHERE p.user_id = $1
		ORDER BY r.last_activity_us DESC`, userID)
	if err != nil {
		return nil, unavailable("find rooms by participant", err)
	}

	summaries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.RoomSummary, error) {
		var rec roomRecord
		var count int
		if err := row.Scan(&rec.ID, &rec.Name, &rec.CreatedByID, &rec.CreatedByName,
			&rec.CreatedAtUs, &rec.LastActivityUs, &rec.MessageCount, &count); err != nil {
			return domain.RoomSummary{}, err
		}
		summary := rec.toDomain(nil).Summary()
		summary.ParticipantCount = count
		return summary, nil
	})
	if err != nil {
		return nil, unavailable("find rooms by participant", err)
	}
	if summaries == nil {
		summaries = []domain.RoomSummary{}
	}
	return summaries, nil
}

func (s *PostgresStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE rooms SET last_activity_us = $1, message_count = $2 WHERE id = $3 AND message_count = $4`,
			msg.CreatedAt.UnixMicro(), msg.Seq, msg.RoomID, msg.Seq-1,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rooms WHERE id = $1)`, msg.RoomID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return domain.ErrNotFound
			}
			return errSeqConflict
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO messages (id, room_id, seq, user_id, username, content, created_at_us)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			msg.ID, msg.RoomID, msg.Seq, msg.UserID, msg.Username, msg.Content, msg.CreatedAt.UnixMicro(),
		)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return unavailable("append message", err)
	}
	return nil
}

func (s *PostgresStore) UpdateParticipants(ctx context.Context, roomID string, participants []domain.Identity) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// Lock the room row so concurrent rewrites of the set serialize.
		var id string
		if err := tx.QueryRow(ctx, `SELECT id FROM rooms WHERE id = $1 FOR UPDATE`, roomID).Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrNotFound
			}
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM room_participants WHERE room_id = $1`, roomID); err != nil {
			return err
		}
		return insertParticipants(ctx, tx, roomID, participants)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return unavailable("update participants", err)
	}
	return nil
}

func (s *PostgresStore) RecentMessages(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	return s.queryMessages(ctx, "recent messages",
		`SELECT id, room_id, seq, user_id, username, content, created_at_us
		 FROM messages WHERE room_id = $1 ORDER BY seq DESC LIMIT $2`, roomID, limit)
}

func (s *PostgresStore) MessagesBefore(ctx context.Context, roomID string, beforeSeq int64, limit int) ([]domain.Message, error) {
	return s.queryMessages(ctx, "messages before",
		`SELECT id, room_id, seq, user_id, username, content, created_at_us
		 FROM messages WHERE room_id = $1 AND seq < $2 ORDER BY seq DESC LIMIT $3`, roomID, beforeSeq, limit)
}

func (s *PostgresStore) queryMessages(ctx context.Context, op, query string, args ...any) ([]domain.Message, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (messageRecord, error) {
		var m messageRecord
		err := row.Scan(&m.ID, &m.RoomID, &m.Seq, &m.UserID, &m.Username, &m.Content, &m.CreatedAtUs)
		return m, err
	})
	if err != nil {
		return nil, unavailable(op, err)
	}
	return oldestFirst(recs), nil
}

func (s *PostgresStore) SeqAt(ctx context.Context, roomID string, createdAt time.Time) (int64, error) {
	us, ok := exactMicros(createdAt)
	if !ok {
		return 0, domain.ErrNotFound
	}
	var seq int64
	err := s.pool.QueryRow(ctx,
		`SELECT seq FROM messages WHERE room_id = $1 AND created_at_us = $2`, roomID, us,
	).Scan(&seq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, unavailable("resolve cursor", err)
	}
	return seq, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
