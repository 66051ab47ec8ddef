package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/example/roomchat/domain/chat"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Timestamps are stored as unix microseconds so that a createdAt cursor
// round-trips exactly on every driver.

type roomRecord struct {
	ID             string `gorm:"primaryKey;type:text"`
	Name           string `gorm:"not null;type:text"`
	CreatedByID    string `gorm:"not null;type:text"`
	CreatedByName  string `gorm:"not null;type:text"`
	CreatedAtUs    int64  `gorm:"not null"`
	LastActivityUs int64  `gorm:"not null;index"`
	MessageCount   int64  `gorm:"not null;default:0"`
}

func (roomRecord) TableName() string { return "rooms" }

type participantRecord struct {
	RoomID   string `gorm:"primaryKey;type:text"`
	UserID   string `gorm:"primaryKey;type:text;index"`
	Username string `gorm:"not null;type:text"`
	Position int    `gorm:"not null"`
}

func (participantRecord) TableName() string { return "room_participants" }

type messageRecord struct {
	ID          string `gorm:"primaryKey;type:text"`
	RoomID      string `gorm:"not null;type:text;uniqueIndex:idx_messages_room_seq,priority:1;index:idx_messages_room_created,priority:1"`
	Seq         int64  `gorm:"not null;uniqueIndex:idx_messages_room_seq,priority:2"`
	UserID      string `gorm:"not null;type:text"`
	Username    string `gorm:"not null;type:text"`
	Content     string `gorm:"not null;type:text"`
	CreatedAtUs int64  `gorm:"not null;index:idx_messages_room_created,priority:2"`
}

func (messageRecord) TableName() string { return "messages" }

func (r *messageRecord) toDomain() domain.Message {
	return domain.Message{
		ID:        r.ID,
		RoomID:    r.RoomID,
		Seq:       r.Seq,
		UserID:    r.UserID,
		Username:  r.Username,
		Content:   r.Content,
		CreatedAt: fromMicros(r.CreatedAtUs),
	}
}

func (r *roomRecord) toDomain(parts []participantRecord) *domain.Room {
	room := &domain.Room{
		ID:           r.ID,
		Name:         r.Name,
		CreatedBy:    domain.Identity{UserID: r.CreatedByID, Username: r.CreatedByName},
		Participants: make([]domain.Identity, 0, len(parts)),
		CreatedAt:    fromMicros(r.CreatedAtUs),
		LastActivity: fromMicros(r.LastActivityUs),
		MessageCount: r.MessageCount,
	}
	for _, p := range parts {
		room.Participants = append(room.Participants, domain.Identity{UserID: p.UserID, Username: p.Username})
	}
	return room
}

func participantRecords(roomID string, participants []domain.Identity) []participantRecord {
	recs := make([]participantRecord, 0, len(participants))
	for i, p := range participants {
		recs = append(recs, participantRecord{RoomID: roomID, UserID: p.UserID, Username: p.Username, Position: i})
	}
	return recs
}

// GormStore implements RoomStore on GORM. SQLite is the default backend.
type GormStore struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) a SQLite database at path and migrates it.
func OpenSQLite(path string, debug bool) (*GormStore, error) {
	logLevel := logger.Silent
	if debug {
		logLevel = logger.Info
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY under load.
	sqlDB.SetMaxOpenConns(1)

	return NewGormStore(db)
}

// NewGormStore wraps an open database and migrates the chat schema.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&roomRecord{}, &participantRecord{}, &messageRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Insert(ctx context.Context, room *domain.Room) error {
	rec := roomRecord{
		ID:             room.ID,
		Name:           room.Name,
		CreatedByID:    room.CreatedBy.UserID,
		CreatedByName:  room.CreatedBy.Username,
		CreatedAtUs:    room.CreatedAt.UnixMicro(),
		LastActivityUs: room.LastActivity.UnixMicro(),
		MessageCount:   room.MessageCount,
	}
	parts := participantRecords(room.ID, room.Participants)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec).Error; err != nil {
			return err
		}
		if len(parts) > 0 {
			if err := tx.Create(&parts).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return unavailable("insert room", err)
	}
	return nil
}

func (s *GormStore) FindByRoomID(ctx context.Context, roomID string) (*domain.Room, error) {
	var rec roomRecord
	var parts []participantRecord

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&rec, "id = ?", roomID).Error; err != nil {
			return err
		}
		return tx.Where("room_id = ?", roomID).Order("position").Find(&parts).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, unavailable("find room", err)
	}
	return rec.toDomain(parts), nil
}

func (s *GormStore) FindByParticipant(ctx context.Context, userID string) ([]domain.RoomSummary, error) {
	var recs []roomRecord
	err := s.db.WithContext(ctx).
		Select("rooms.*").
		Joins("JOIN room_participants ON room_participants.room_id = rooms.id").
		Where("room_participants.user_id = ?", userID).
		Order("rooms.last_activity_us DESC").
		Find(&recs).Error
	if err != nil {
		return nil, unavailable("find rooms by participant", err)
	}

	summaries := make([]domain.RoomSummary, 0, len(recs))
	if len(recs) == 0 {
		return summaries, nil
	}

	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	var counts []struct {
		RoomID string
		Count  int
	}
	err = s.db.WithContext(ctx).
		Model(&participantRecord{}).
		Select("room_id, count(*) AS count").
		Where("room_id IN ?", ids).
		Group("room_id").
		Scan(&counts).Error
	if err != nil {
		return nil, unavailable("count participants", err)
	}
	byRoom := make(map[string]int, len(counts))
	for _, c := range counts {
		byRoom[c.RoomID] = c.Count
	}

	for i := range recs {
		summary := recs[i].toDomain(nil).Summary()
		summary.ParticipantCount = byRoom[recs[i].ID]
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *GormStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	rec := messageRecord{
		ID:          msg.ID,
		RoomID:      msg.RoomID,
		Seq:         msg.Seq,
		UserID:      msg.UserID,
		Username:    msg.Username,
		Content:     msg.Content,
		CreatedAtUs: msg.CreatedAt.UnixMicro(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&roomRecord{}).
			Where("id = ? AND message_count = ?", msg.RoomID, msg.Seq-1).
			Updates(map[string]any{
				"last_activity_us": rec.CreatedAtUs,
				"message_count":    msg.Seq,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&roomRecord{}).Where("id = ?", msg.RoomID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return domain.ErrNotFound
			}
			return errSeqConflict
		}
		return tx.Create(&rec).Error
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return unavailable("append message", err)
	}
	return nil
}

func (s *GormStore) UpdateParticipants(ctx context.Context, roomID string, participants []domain.Identity) error {
	parts := participantRecords(roomID, participants)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&roomRecord{}).Where("id = ?", roomID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return domain.ErrNotFound
		}
		if err := tx.Where("room_id = ?", roomID).Delete(&participantRecord{}).Error; err != nil {
			return err
		}
		if len(parts) > 0 {
			return tx.Create(&parts).Error
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return unavailable("update participants", err)
	}
	return nil
}

func (s *GormStore) RecentMessages(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	var recs []messageRecord
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("seq DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, unavailable("recent messages", err)
	}
	return oldestFirst(recs), nil
}

func (s *GormStore) MessagesBefore(ctx context.Context, roomID string, beforeSeq int64, limit int) ([]domain.Message, error) {
	var recs []messageRecord
	err := s.db.WithContext(ctx).
		Where("room_id = ? AND seq < ?", roomID, beforeSeq).
		Order("seq DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, unavailable("messages before", err)
	}
	return oldestFirst(recs), nil
}

func (s *GormStore) SeqAt(ctx context.Context, roomID string, createdAt time.Time) (int64, error) {
	us, ok := exactMicros(createdAt)
	if !ok {
		return 0, domain.ErrNotFound
	}
	var rec messageRecord
	err := s.db.WithContext(ctx).
		Select("seq").
		Where("room_id = ? AND created_at_us = ?", roomID, us).
		Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, domain.ErrNotFound
		}
		return 0, unavailable("resolve cursor", err)
	}
	return rec.Seq, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return unavailable("ping", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// oldestFirst converts records fetched newest-first into an oldest-first log slice.
func oldestFirst(recs []messageRecord) []domain.Message {
	msgs := make([]domain.Message, len(recs))
	for i := range recs {
		msgs[len(recs)-1-i] = recs[i].toDomain()
	}
	return msgs
}
