package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/example/roomchat/domain/chat"
	"github.com/example/roomchat/modules/broadcast"
	"github.com/example/roomchat/modules/chat"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
)

// Connection tuning.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxFrameSize   = 64 * 1024
	operationLimit = 10 * time.Second
)

// Inbound event names.
const (
	inCreateRoom     = "create-room"
	inJoinRoom       = "join-room"
	inLeaveRoom      = "leave-room"
	inSendMessage    = "send-message"
	inGetMessages    = "get-messages"
	inGetMyRooms     = "get-my-rooms"
	inCheckRoom      = "check-room"
	inTyping         = "typing"
	inGetOnlineUsers = "get-online-users"
)

// Sessions is the engine a WebSocket connection drives.
type Sessions interface {
	Attach(client *broadcast.Client)
	Detach(client *broadcast.Client)
	CreateRoom(ctx context.Context, identity domain.Identity, name string) (*domain.Room, error)
	JoinRoom(ctx context.Context, client *broadcast.Client, roomID string) (*domain.RoomSnapshot, error)
	LeaveRoom(ctx context.Context, identity domain.Identity, roomID string) error
	SendMessage(ctx context.Context, identity domain.Identity, roomID, content string) (*domain.Message, error)
	History(ctx context.Context, identity domain.Identity, roomID string, limit int, before *time.Time) (*domain.HistoryPage, error)
	ListRooms(ctx context.Context, identity domain.Identity) ([]domain.RoomSummary, error)
	CheckRoom(ctx context.Context, identity domain.Identity, roomID string) (*domain.RoomCheck, error)
	Typing(client *broadcast.Client, roomID string, isTyping bool)
	OnlineUsers(ctx context.Context, identity domain.Identity, roomID string) ([]domain.Identity, error)
}

// SendMessagePayload is the data of send-message.
type SendMessagePayload struct {
	RoomID  string `json:"roomId"`
	Content string `json:"content"`
}

// GetMessagesPayload is the data of get-messages.
type GetMessagesPayload struct {
	RoomID string `json:"roomId"`
	Limit  int    `json:"limit,omitempty"`
	Before string `json:"before,omitempty"`
}

// TypingPayload is the data of typing.
type TypingPayload struct {
	RoomID   string `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
}

// PreviousMessagesPayload is the data of previous-messages.
type PreviousMessagesPayload struct {
	RoomID   string           `json:"roomId"`
	Messages []domain.Message `json:"messages"`
	HasMore  bool             `json:"hasMore"`
}

// singleArg is the object form of single-argument events.
type singleArg struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name"`
}

var errInvalidPayload = fmt.Errorf("%w: invalid payload", domain.ErrValidation)

// WebSocketHandler runs the event protocol for authenticated connections.
type WebSocketHandler struct {
	sessions Sessions
	gate     *sendGate
	logger   types.Logger
}

// NewWebSocketHandler creates a handler over sessions.
func NewWebSocketHandler(sessions Sessions, gate *sendGate, logger types.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		sessions: sessions,
		gate:     gate,
		logger:   logger,
	}
}

// Handle serves one connection until it closes. The identity was verified by
// WebSocketGuard before the upgrade.
func (h *WebSocketHandler) Handle(c *websocket.Conn) {
	identity, ok := c.Locals(UserContextKey).(*domain.Identity)
	if !ok || identity == nil {
		_ = c.Close()
		return
	}

	client := broadcast.NewClient(*identity, broadcast.DefaultSendBuffer)
	h.sessions.Attach(client)

	writerDone := make(chan struct{})
	go h.writePump(c, client, writerDone)

	defer func() {
		h.sessions.Detach(client)
		<-writerDone
		_ = c.Close()
	}()

	h.logger.Info("WebSocket connected", "clientID", client.ID, "userID", identity.UserID)
	h.reply(client, broadcast.EventConnected, identity)

	c.SetReadLimit(maxFrameSize)
	_ = c.SetReadDeadline(time.Now().Add(pongWait))
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket read error", "clientID", client.ID, "error", err)
			}
			break
		}

		var frame broadcast.Frame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
			h.replyError(client, "Invalid message format")
			continue
		}
		h.dispatch(client, frame)
	}

	h.logger.Info("WebSocket disconnected", "clientID", client.ID, "userID", identity.UserID)
}

// writePump is the only writer of c. It stops when the client is closed,
// either by Detach or because its queue overflowed.
func (h *WebSocketHandler) writePump(c *websocket.Conn, client *broadcast.Client, done chan<- struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	for {
		select {
		case frame := <-client.Outbound():
			_ = c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.logger.Debug("WebSocket write failed", "clientID", client.ID, "error", err)
				client.Close()
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.Close()
				_ = c.Close()
				return
			}
		case <-client.Done():
			// Unblocks the reader when the close did not come from it.
			_ = c.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			_ = c.Close()
			return
		}
	}
}

// dispatch runs one inbound event. Failures are reported to this client only.
func (h *WebSocketHandler) dispatch(client *broadcast.Client, frame broadcast.Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), operationLimit)
	defer cancel()

	identity := client.Identity
	var err error

	switch frame.Event {
	case inCreateRoom:
		var name string
		if name, err = decodeArg(frame.Data, func(a singleArg) string { return a.Name }); err == nil {
			var room *domain.Room
			if room, err = h.sessions.CreateRoom(ctx, identity, name); err == nil {
				h.reply(client, broadcast.EventRoomCreated, room)
			}
		}

	case inJoinRoom:
		var roomID string
		if roomID, err = decodeRoomID(frame.Data); err == nil {
			var snapshot *domain.RoomSnapshot
			if snapshot, err = h.sessions.JoinRoom(ctx, client, roomID); err == nil {
				h.reply(client, broadcast.EventRoomJoined, snapshot)
			}
		}

	case inLeaveRoom:
		var roomID string
		if roomID, err = decodeRoomID(frame.Data); err == nil {
			err = h.sessions.LeaveRoom(ctx, identity, roomID)
		}

	case inSendMessage:
		var p SendMessagePayload
		if err = decodeObject(frame.Data, &p); err == nil {
			if err = h.gate.allow(ctx, identity.UserID); err == nil {
				// Delivered to this connection through the room broadcast.
				_, err = h.sessions.SendMessage(ctx, identity, p.RoomID, p.Content)
			}
		}

	case inGetMessages:
		err = h.getMessages(ctx, client, frame.Data)

	case inGetMyRooms:
		var rooms []domain.RoomSummary
		if rooms, err = h.sessions.ListRooms(ctx, identity); err == nil {
			if rooms == nil {
				rooms = []domain.RoomSummary{}
			}
			h.reply(client, broadcast.EventMyRooms, rooms)
		}

	case inCheckRoom:
		var roomID string
		if roomID, err = decodeRoomID(frame.Data); err == nil {
			var check *domain.RoomCheck
			if check, err = h.sessions.CheckRoom(ctx, identity, roomID); err == nil {
				h.reply(client, broadcast.EventRoomExists, check)
			}
		}

	case inTyping:
		var p TypingPayload
		if decodeObject(frame.Data, &p) == nil && p.RoomID != "" {
			h.sessions.Typing(client, p.RoomID, p.IsTyping)
		}

	case inGetOnlineUsers:
		var roomID string
		if roomID, err = decodeRoomID(frame.Data); err == nil {
			var users []domain.Identity
			if users, err = h.sessions.OnlineUsers(ctx, identity, roomID); err == nil {
				h.reply(client, broadcast.EventOnlineUsers, OnlineUsersResponse{RoomID: roomID, Users: users})
			}
		}

	default:
		h.replyError(client, "Unknown event: "+frame.Event)
		return
	}

	if err != nil {
		h.fail(client, frame.Event, err)
	}
}

func (h *WebSocketHandler) getMessages(ctx context.Context, client *broadcast.Client, data json.RawMessage) error {
	var p GetMessagesPayload
	if err := decodeObject(data, &p); err != nil {
		return err
	}
	before, err := parseCursor(p.Before)
	if err != nil {
		return err
	}

	page, err := h.sessions.History(ctx, client.Identity, p.RoomID, chat.NormalizeLimit(p.Limit), before)
	if err != nil {
		return err
	}
	h.reply(client, broadcast.EventPreviousMessages, PreviousMessagesPayload{
		RoomID:   p.RoomID,
		Messages: page.Messages,
		HasMore:  page.HasMore,
	})
	return nil
}

func (h *WebSocketHandler) fail(client *broadcast.Client, event string, err error) {
	if _, code := statusFor(err); code == domain.CodeInternal || code == domain.CodeStorageUnavailable {
		h.logger.Error("WebSocket operation failed",
			"event", event, "clientID", client.ID, "userID", client.Identity.UserID, "error", err)
	}
	h.replyError(client, clientMessage(err))
}

func (h *WebSocketHandler) reply(client *broadcast.Client, event string, data any) {
	frame, err := broadcast.Encode(event, data)
	if err != nil {
		h.logger.Error("Failed to encode reply", "event", event, "error", err)
		return
	}
	client.Send(frame)
}

func (h *WebSocketHandler) replyError(client *broadcast.Client, message string) {
	h.reply(client, broadcast.EventError, broadcast.ErrorPayload{Message: message})
}

// decodeArg reads a single-argument event given either as a bare JSON string
// or as an object. Missing data yields "".
func decodeArg(data json.RawMessage, pick func(singleArg) string) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", errInvalidPayload
		}
		return s, nil
	}
	var arg singleArg
	if err := json.Unmarshal(data, &arg); err != nil {
		return "", errInvalidPayload
	}
	return pick(arg), nil
}

func decodeRoomID(data json.RawMessage) (string, error) {
	return decodeArg(data, func(a singleArg) string { return a.RoomID })
}

func decodeObject(data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return errInvalidPayload
	}
	if err := json.Unmarshal(data, v); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return errInvalidPayload
		}
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return nil
}
