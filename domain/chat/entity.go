package chat

import (
	"time"
)

// Identity is the verified (userId, username) pair attached to a connection.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Room represents a durable chat room.
type Room struct {
	ID           string     `json:"roomId"`
	Name         string     `json:"name"`
	CreatedBy    Identity   `json:"createdBy"`
	Participants []Identity `json:"participants"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastActivity time.Time  `json:"lastActivity"`
	MessageCount int64      `json:"messageCount"`
}

// HasParticipant reports whether userID is in the durable participant set.
func (r *Room) HasParticipant(userID string) bool {
	for _, p := range r.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// WithoutParticipant returns a copy of the participant set with userID removed.
func (r *Room) WithoutParticipant(userID string) []Identity {
	out := make([]Identity, 0, len(r.Participants))
	for _, p := range r.Participants {
		if p.UserID != userID {
			out = append(out, p)
		}
	}
	return out
}

// ParticipantIDs returns the user ids of all participants in join order.
func (r *Room) ParticipantIDs() []string {
	ids := make([]string, 0, len(r.Participants))
	for _, p := range r.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// Message is an immutable entry of a room's log.
// Seq is the 1-based append position within the room and the true ordering key.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Seq       int64     `json:"seq"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// RoomSummary is the listing view of a room.
type RoomSummary struct {
	ID               string    `json:"roomId"`
	Name             string    `json:"name"`
	CreatedBy        Identity  `json:"createdBy"`
	ParticipantCount int       `json:"participantCount"`
	MessageCount     int64     `json:"messageCount"`
	CreatedAt        time.Time `json:"createdAt"`
	LastActivity     time.Time `json:"lastActivity"`
}

// Summary returns the listing view of r.
func (r *Room) Summary() RoomSummary {
	return RoomSummary{
		ID:               r.ID,
		Name:             r.Name,
		CreatedBy:        r.CreatedBy,
		ParticipantCount: len(r.Participants),
		MessageCount:     r.MessageCount,
		CreatedAt:        r.CreatedAt,
		LastActivity:     r.LastActivity,
	}
}

// RoomSnapshot is returned to a connection that joins a room.
type RoomSnapshot struct {
	Room
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"hasMore"`
}

// RoomCheck is the result of an existence and membership probe.
type RoomCheck struct {
	Exists        bool   `json:"exists"`
	Name          string `json:"name,omitempty"`
	IsParticipant *bool  `json:"isParticipant,omitempty"`
}

// HistoryPage is a bounded, oldest-first slice of a room's log.
type HistoryPage struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"hasMore"`
}
