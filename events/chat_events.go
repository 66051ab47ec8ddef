package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// RoomCreatedEvent is emitted after a room is persisted.
type RoomCreatedEvent struct {
	RoomID    string    `json:"room_id"`
	RoomName  string    `json:"room_name"`
	CreatedBy string    `json:"created_by"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

// UserJoinedEvent is emitted when an identity becomes a new participant.
// Reconnects of an existing participant do not emit it.
type UserJoinedEvent struct {
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

// UserLeftEvent is emitted when an identity leaves the participant set.
type UserLeftEvent struct {
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageSentEvent is emitted after a message has been appended and broadcast.
type MessageSentEvent struct {
	MessageID string    `json:"message_id"`
	RoomID    string    `json:"room_id"`
	Seq       int64     `json:"seq"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Length    int       `json:"length"`
	Timestamp time.Time `json:"timestamp"`
}

// Event definitions for the chat domain.
var (
	RoomCreatedV1 = helper.EventDefinition[RoomCreatedEvent](
		"chat",
		"RoomCreated",
		"v1",
	)

	UserJoinedV1 = helper.EventDefinition[UserJoinedEvent](
		"chat",
		"UserJoined",
		"v1",
	)

	UserLeftV1 = helper.EventDefinition[UserLeftEvent](
		"chat",
		"UserLeft",
		"v1",
	)

	MessageSentV1 = helper.EventDefinition[MessageSentEvent](
		"chat",
		"MessageSent",
		"v1",
	)
)
