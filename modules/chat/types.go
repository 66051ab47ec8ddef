package chat

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	domain "github.com/example/roomchat/domain/chat"
)

// Validation constants
const (
	MaxRoomNameLength   = 100
	MaxMessageLength    = 5000
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 1000
)

// Validation errors
var (
	ErrRoomNameEmpty   = fmt.Errorf("%w: room name cannot be empty", domain.ErrValidation)
	ErrRoomNameTooLong = fmt.Errorf("%w: room name exceeds maximum length", domain.ErrValidation)
	ErrRoomNameInvalid = fmt.Errorf("%w: room name contains invalid characters", domain.ErrValidation)
	ErrMessageEmpty    = fmt.Errorf("%w: message content cannot be empty", domain.ErrValidation)
	ErrMessageTooLong  = fmt.Errorf("%w: message exceeds maximum length", domain.ErrValidation)
	ErrMessageInvalid  = fmt.Errorf("%w: message contains invalid characters", domain.ErrValidation)
	ErrRoomIDRequired  = fmt.Errorf("%w: room id is required", domain.ErrValidation)
)

// ValidateRoomName validates a room name.
func ValidateRoomName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrRoomNameEmpty
	}
	if len(name) > MaxRoomNameLength {
		return ErrRoomNameTooLong
	}
	if !utf8.ValidString(name) {
		return ErrRoomNameInvalid
	}
	return nil
}

// ValidateMessage validates a message content.
func ValidateMessage(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrMessageEmpty
	}
	if len(content) > MaxMessageLength {
		return ErrMessageTooLong
	}
	if !utf8.ValidString(content) {
		return ErrMessageInvalid
	}
	return nil
}

// NormalizeLimit applies the default and the upper bound to a history limit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

// Service names registered in the chat module's service container.
const (
	ServiceCreateRoom  = "create-room"
	ServiceListRooms   = "list-rooms"
	ServiceGetRoom     = "get-room"
	ServiceJoinRoom    = "join-room"
	ServiceLeaveRoom   = "leave-room"
	ServiceCheckRoom   = "check-room"
	ServiceGetMessages = "get-messages"
	ServiceSendMessage = "send-message"
	ServiceOnlineUsers = "online-users"
)

// Failure carries a domain error across the service container.
// Handlers return it inside the response instead of as an error so that the
// caller can restore the error kind.
type Failure struct {
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Err rebuilds the domain error, or nil on success.
func (f Failure) Err() error {
	return domain.ErrorFromCode(f.ErrorCode, f.Error)
}

func failure(err error) Failure {
	if err == nil {
		return Failure{}
	}
	return Failure{ErrorCode: domain.ErrorCode(err), Error: err.Error()}
}

// CreateRoomRequest is the request for creating a new room.
type CreateRoomRequest struct {
	Identity domain.Identity `json:"identity"`
	Name     string          `json:"name"`
}

// RoomResponse carries a single room.
type RoomResponse struct {
	Room *domain.Room `json:"room,omitempty"`
	Failure
}

// ListRoomsRequest asks for the caller's rooms.
type ListRoomsRequest struct {
	Identity domain.Identity `json:"identity"`
}

// ListRoomsResponse carries the caller's rooms, most recently active first.
type ListRoomsResponse struct {
	Rooms []domain.RoomSummary `json:"rooms"`
	Failure
}

// RoomRequest addresses one room on behalf of an identity.
type RoomRequest struct {
	Identity domain.Identity `json:"identity"`
	RoomID   string          `json:"room_id"`
}

// JoinRoomResponse reports whether the identity became a new participant.
type JoinRoomResponse struct {
	Room   *domain.Room `json:"room,omitempty"`
	Joined bool         `json:"joined"`
	Failure
}

// AckResponse is returned by operations without a payload.
type AckResponse struct {
	Success bool `json:"success"`
	Failure
}

// CheckRoomResponse carries an existence probe result.
type CheckRoomResponse struct {
	Check domain.RoomCheck `json:"check"`
	Failure
}

// GetMessagesRequest asks for a page of history.
type GetMessagesRequest struct {
	Identity domain.Identity `json:"identity"`
	RoomID   string          `json:"room_id"`
	Limit    int             `json:"limit"`
	Before   *time.Time      `json:"before,omitempty"`
}

// GetMessagesResponse carries a page of history.
type GetMessagesResponse struct {
	Page domain.HistoryPage `json:"page"`
	Failure
}

// SendMessageRequest is the request for sending a message.
type SendMessageRequest struct {
	Identity domain.Identity `json:"identity"`
	RoomID   string          `json:"room_id"`
	Content  string          `json:"content"`
}

// SendMessageResponse carries the appended message.
type SendMessageResponse struct {
	Message *domain.Message `json:"message,omitempty"`
	Failure
}

// OnlineUsersResponse lists participants with at least one live connection.
type OnlineUsersResponse struct {
	Users []domain.Identity `json:"users"`
	Failure
}
