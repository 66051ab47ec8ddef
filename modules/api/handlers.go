package api

import (
	"fmt"
	"time"

	domain "github.com/example/roomchat/domain/chat"
	"github.com/example/roomchat/modules/activity"
	"github.com/example/roomchat/modules/auth"
	"github.com/example/roomchat/modules/chat"
	"github.com/gofiber/fiber/v2"
)

// Handlers contains the REST handlers.
type Handlers struct {
	authAdapter     auth.AuthPort
	chatAdapter     chat.ChatPort
	activityAdapter activity.ActivityPort
	gate            *sendGate
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(authAdapter auth.AuthPort, chatAdapter chat.ChatPort, activityAdapter activity.ActivityPort, gate *sendGate) *Handlers {
	return &Handlers{
		authAdapter:     authAdapter,
		chatAdapter:     chatAdapter,
		activityAdapter: activityAdapter,
		gate:            gate,
	}
}

var errInvalidBody = fmt.Errorf("%w: invalid request body", domain.ErrValidation)

// Register handles POST /api/v1/auth/register.
func (h *Handlers) Register(c *fiber.Ctx) error {
	var req CredentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, errInvalidBody)
	}

	resp, err := h.authAdapter.Register(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(UserResponse{
		ID:        resp.ID,
		Username:  resp.Username,
		CreatedAt: resp.CreatedAt,
	})
}

// Login handles POST /api/v1/auth/login.
func (h *Handlers) Login(c *fiber.Ctx) error {
	var req CredentialsRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, errInvalidBody)
	}

	token, err := h.authAdapter.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(token)
}

// ListRooms handles GET /api/v1/rooms.
func (h *Handlers) ListRooms(c *fiber.Ctx) error {
	identity, ok := identityFrom(c)
	if !ok {
		return writeError(c, domain.ErrUnauthorized)
	}

	rooms, err := h.chatAdapter.ListRooms(c.UserContext(), identity)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(RoomListResponse{Rooms: rooms, Total: len(rooms)})
}

// CreateRoom handles POST /api/v1/rooms.
func (h *Handlers) CreateRoom(c *fiber.Ctx) error {
	identity, ok := identityFrom(c)
	if !ok {
		return writeError(c, domain.ErrUnauthorized)
	}

	var req CreateRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, errInvalidBody)
	}

	room, err := h.chatAdapter.CreateRoom(c.UserContext(), identity, req.Name)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(room)
}

// GetRoom handles GET /api/v1/rooms/:id.
func (h *Handlers) GetRoom(c *fiber.Ctx) error {
	identity, ok := identityFrom(c)
	if !ok {
		return writeError(c, domain.ErrUnauthorized)
	}

	room, err := h.chatAdapter.GetRoom(c.UserContext(), identity, c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(room)
}

// JoinRoom handles POST /api/v1/rooms/:id/join. It only adds the caller to the
// participant set; live delivery needs a WebSocket join.
func (h *Handlers) JoinRoom(c *fiber.Ctx) error {
	identity, ok := identityFrom(c)
	if !ok {
		return writeError(c, domain.ErrUnauthorized)
	}

	room, joined, err := h.chatAdapter.JoinRoom(c.UserContext(), identity, c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(JoinResponse{Room: room, Joined: joined})
}

// LeaveRoom handles POST /api/v1/rooms/:id/leave.
func (h *Handlers) LeaveRoom(c *fiber.Ctx) error {
	identity, ok := identityFrom(c)
	if !ok {
		return writeError(c, domain.ErrUnauthorized)
	}

	roomID := c.Params("id")
	if err := h.chatAdapter.LeaveRoom(c.UserContext(), identity, roomID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"roomId":  roomID,
		"success": true,
	})
}

// GetMessages handles GET /api/v1/rooms/:id/messages?limit=&before=.
func (h *Handlers) GetMessages(c *fiber.Ctx) error {
	identity, ok := identityFrom(c)
	if !ok {
		return writeError(c, domain.ErrUnauthorized)
	}

	before, err := parseCursor(c.Query("before"))
	if err != nil {
		return writeError(c, err)
	}
	limit := chat.NormalizeLimit(c.QueryInt("limit", chat.DefaultHistoryLimit))

	roomID := c.Params("id")
	page, err := h.chatAdapter.GetMessages(c.UserContext(), identity, roomID, limit, before)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(HistoryResponse{
		RoomID:   roomID,
		Messages: page.Messages,
		HasMore:  page.HasMore,
	})
}

// SendMessage handles POST /api/v1/rooms/:id/messages.
func (h *Handlers) SendMessage(c *fiber.Ctx) error {
	identity, ok := identityFrom(c)
	if !ok {
		return writeError(c, domain.ErrUnauthorized)
	}

	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, errInvalidBody)
	}
	if err := h.gate.allow(c.UserContext(), identity.UserID); err != nil {
		return writeError(c, err)
	}

	msg, err := h.chatAdapter.SendMessage(c.UserContext(), identity, c.Params("id"), req.Content)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// OnlineUsers handles GET /api/v1/rooms/:id/online.
func (h *Handlers) OnlineUsers(c *fiber.Ctx) error {
	identity, ok := identityFrom(c)
	if !ok {
		return writeError(c, domain.ErrUnauthorized)
	}

	roomID := c.Params("id")
	users, err := h.chatAdapter.OnlineUsers(c.UserContext(), identity, roomID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(OnlineUsersResponse{RoomID: roomID, Users: users})
}

// Activity handles GET /api/v1/activity.
func (h *Handlers) Activity(c *fiber.Ctx) error {
	summary, err := h.activityAdapter.Recent(c.UserContext(), c.QueryInt("limit", activity.DefaultFeedSize))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(ActivityResponse{Summary: *summary})
}

// parseCursor parses an RFC 3339 history cursor. An empty value means no cursor.
func parseCursor(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: before must be an RFC 3339 timestamp", domain.ErrValidation)
	}
	return &ts, nil
}
