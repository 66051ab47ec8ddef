package broadcast

import (
	"encoding/json"
	"fmt"
)

// Outbound event names.
const (
	EventConnected        = "connected"
	EventRoomCreated      = "room-created"
	EventRoomJoined       = "room-joined"
	EventUserJoined       = "user-joined"
	EventUserLeft         = "user-left"
	EventNewMessage       = "new-message"
	EventPreviousMessages = "previous-messages"
	EventMyRooms          = "my-rooms"
	EventRoomExists       = "room-exists"
	EventUserTyping       = "user-typing"
	EventOnlineUsers      = "online-users"
	EventError            = "error"
)

// Frame is the envelope of every event sent over a connection.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode builds a wire frame for event with data as payload.
func Encode(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Data: payload})
}

// ErrorPayload is the data of an error frame.
type ErrorPayload struct {
	Message string `json:"message"`
}
