package api

import (
	"time"

	domain "github.com/example/roomchat/domain/chat"
	"github.com/example/roomchat/modules/activity"
)

// RateLimitMessage is reported to clients whose sends are throttled.
const RateLimitMessage = "Rate limit exceeded, please slow down"

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CredentialsRequest is the body of register and login.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserResponse is returned after registration.
type UserResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateRoomRequest is the API request to create a room.
type CreateRoomRequest struct {
	Name string `json:"name"`
}

// SendMessageRequest is the API request to post a message.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// RoomListResponse is the API response for listing rooms.
type RoomListResponse struct {
	Rooms []domain.RoomSummary `json:"rooms"`
	Total int                  `json:"total"`
}

// JoinResponse reports whether joining changed the participant set.
type JoinResponse struct {
	Room   *domain.Room `json:"room"`
	Joined bool         `json:"joined"`
}

// HistoryResponse is the API response for a page of history.
type HistoryResponse struct {
	RoomID   string           `json:"roomId"`
	Messages []domain.Message `json:"messages"`
	HasMore  bool             `json:"hasMore"`
}

// OnlineUsersResponse lists the online participants of a room.
type OnlineUsersResponse struct {
	RoomID string            `json:"roomId"`
	Users  []domain.Identity `json:"users"`
}

// ActivityResponse is the API response for the activity feed.
type ActivityResponse struct {
	activity.Summary
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}
