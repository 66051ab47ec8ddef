package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domain "github.com/example/roomchat/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// ChatPort defines the room operations other modules may call.
type ChatPort interface {
	CreateRoom(ctx context.Context, identity domain.Identity, name string) (*domain.Room, error)
	ListRooms(ctx context.Context, identity domain.Identity) ([]domain.RoomSummary, error)
	GetRoom(ctx context.Context, identity domain.Identity, roomID string) (*domain.Room, error)
	JoinRoom(ctx context.Context, identity domain.Identity, roomID string) (*domain.Room, bool, error)
	LeaveRoom(ctx context.Context, identity domain.Identity, roomID string) error
	CheckRoom(ctx context.Context, identity domain.Identity, roomID string) (*domain.RoomCheck, error)
	GetMessages(ctx context.Context, identity domain.Identity, roomID string, limit int, before *time.Time) (*domain.HistoryPage, error)
	SendMessage(ctx context.Context, identity domain.Identity, roomID, content string) (*domain.Message, error)
	OnlineUsers(ctx context.Context, identity domain.Identity, roomID string) ([]domain.Identity, error)
}

// ChatAdapter implements ChatPort using the service container.
type ChatAdapter struct {
	container mono.ServiceContainer
}

var _ ChatPort = (*ChatAdapter)(nil)

// NewChatAdapter creates a new ChatAdapter.
func NewChatAdapter(container mono.ServiceContainer) *ChatAdapter {
	return &ChatAdapter{container: container}
}

func call[Req, Resp any](ctx context.Context, container mono.ServiceContainer, service string, req *Req, resp *Resp) error {
	if err := helper.CallRequestReplyService(
		ctx,
		container,
		service,
		json.Marshal,
		json.Unmarshal,
		req,
		resp,
	); err != nil {
		return fmt.Errorf("%s request failed: %w", service, err)
	}
	return nil
}

// CreateRoom creates a room owned by identity.
func (a *ChatAdapter) CreateRoom(ctx context.Context, identity domain.Identity, name string) (*domain.Room, error) {
	req := CreateRoomRequest{Identity: identity, Name: name}
	var resp RoomResponse
	if err := call(ctx, a.container, ServiceCreateRoom, &req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Room, nil
}

// ListRooms lists identity's rooms.
func (a *ChatAdapter) ListRooms(ctx context.Context, identity domain.Identity) ([]domain.RoomSummary, error) {
	req := ListRoomsRequest{Identity: identity}
	var resp ListRoomsResponse
	if err := call(ctx, a.container, ServiceListRooms, &req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	if resp.Rooms == nil {
		resp.Rooms = []domain.RoomSummary{}
	}
	return resp.Rooms, nil
}

// GetRoom returns a room identity participates in.
func (a *ChatAdapter) GetRoom(ctx context.Context, identity domain.Identity, roomID string) (*domain.Room, error) {
	req := RoomRequest{Identity: identity, RoomID: roomID}
	var resp RoomResponse
	if err := call(ctx, a.container, ServiceGetRoom, &req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Room, nil
}

// JoinRoom makes identity a participant without a live subscription.
func (a *ChatAdapter) JoinRoom(ctx context.Context, identity domain.Identity, roomID string) (*domain.Room, bool, error) {
	req := RoomRequest{Identity: identity, RoomID: roomID}
	var resp JoinRoomResponse
	if err := call(ctx, a.container, ServiceJoinRoom, &req, &resp); err != nil {
		return nil, false, err
	}
	if err := resp.Err(); err != nil {
		return nil, false, err
	}
	return resp.Room, resp.Joined, nil
}

// LeaveRoom removes identity from a room.
func (a *ChatAdapter) LeaveRoom(ctx context.Context, identity domain.Identity, roomID string) error {
	req := RoomRequest{Identity: identity, RoomID: roomID}
	var resp AckResponse
	if err := call(ctx, a.container, ServiceLeaveRoom, &req, &resp); err != nil {
		return err
	}
	return resp.Err()
}

// CheckRoom probes a room.
func (a *ChatAdapter) CheckRoom(ctx context.Context, identity domain.Identity, roomID string) (*domain.RoomCheck, error) {
	req := RoomRequest{Identity: identity, RoomID: roomID}
	var resp CheckRoomResponse
	if err := call(ctx, a.container, ServiceCheckRoom, &req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return &resp.Check, nil
}

// GetMessages returns a page of history.
func (a *ChatAdapter) GetMessages(ctx context.Context, identity domain.Identity, roomID string, limit int, before *time.Time) (*domain.HistoryPage, error) {
	req := GetMessagesRequest{Identity: identity, RoomID: roomID, Limit: limit, Before: before}
	var resp GetMessagesResponse
	if err := call(ctx, a.container, ServiceGetMessages, &req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	if resp.Page.Messages == nil {
		resp.Page.Messages = []domain.Message{}
	}
	return &resp.Page, nil
}

// SendMessage appends a message to a room.
func (a *ChatAdapter) SendMessage(ctx context.Context, identity domain.Identity, roomID, content string) (*domain.Message, error) {
	req := SendMessageRequest{Identity: identity, RoomID: roomID, Content: content}
	var resp SendMessageResponse
	if err := call(ctx, a.container, ServiceSendMessage, &req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	return resp.Message, nil
}

// OnlineUsers lists a room's online participants.
func (a *ChatAdapter) OnlineUsers(ctx context.Context, identity domain.Identity, roomID string) ([]domain.Identity, error) {
	req := RoomRequest{Identity: identity, RoomID: roomID}
	var resp OnlineUsersResponse
	if err := call(ctx, a.container, ServiceOnlineUsers, &req, &resp); err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	if resp.Users == nil {
		resp.Users = []domain.Identity{}
	}
	return resp.Users, nil
}
