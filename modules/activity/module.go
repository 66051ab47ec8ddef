package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/roomchat/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
)

// Module consumes chat events and keeps an activity feed.
type Module struct {
	feed   *Feed
	logger types.Logger
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new activity module.
func NewModule(logger types.Logger) *Module {
	return &Module{
		feed:   NewFeed(DefaultFeedSize),
		logger: logger,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "activity"
}

// RegisterEventConsumers subscribes to the chat module's events.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(registry, events.RoomCreatedV1, m.handleRoomCreated, m); err != nil {
		return fmt.Errorf("failed to register RoomCreated consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.UserJoinedV1, m.handleUserJoined, m); err != nil {
		return fmt.Errorf("failed to register UserJoined consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.UserLeftV1, m.handleUserLeft, m); err != nil {
		return fmt.Errorf("failed to register UserLeft consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.MessageSentV1, m.handleMessageSent, m); err != nil {
		return fmt.Errorf("failed to register MessageSent consumer: %w", err)
	}

	m.logger.Info("Registered event consumers",
		"events", []string{"RoomCreated.v1", "UserJoined.v1", "UserLeft.v1", "MessageSent.v1"})
	return nil
}

func (m *Module) handleRoomCreated(_ context.Context, event events.RoomCreatedEvent, _ *mono.Msg) error {
	m.feed.Record(Entry{
		Type:      TypeRoomCreated,
		RoomID:    event.RoomID,
		UserID:    event.CreatedBy,
		Username:  event.Username,
		Detail:    event.RoomName,
		Timestamp: event.Timestamp,
	})
	return nil
}

func (m *Module) handleUserJoined(_ context.Context, event events.UserJoinedEvent, _ *mono.Msg) error {
	m.feed.Record(Entry{
		Type:      TypeUserJoined,
		RoomID:    event.RoomID,
		UserID:    event.UserID,
		Username:  event.Username,
		Timestamp: event.Timestamp,
	})
	return nil
}

func (m *Module) handleUserLeft(_ context.Context, event events.UserLeftEvent, _ *mono.Msg) error {
	m.feed.Record(Entry{
		Type:      TypeUserLeft,
		RoomID:    event.RoomID,
		UserID:    event.UserID,
		Username:  event.Username,
		Timestamp: event.Timestamp,
	})
	return nil
}

func (m *Module) handleMessageSent(_ context.Context, event events.MessageSentEvent, _ *mono.Msg) error {
	m.feed.Record(Entry{
		Type:      TypeMessageSent,
		RoomID:    event.RoomID,
		UserID:    event.UserID,
		Username:  event.Username,
		Detail:    fmt.Sprintf("#%d (%d bytes)", event.Seq, event.Length),
		Timestamp: event.Timestamp,
	})
	m.logger.Debug("Recorded message", "roomID", event.RoomID, "seq", event.Seq)
	return nil
}

// RegisterServices registers the recent-activity service.
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container,
		ServiceRecentActivity,
		json.Unmarshal,
		json.Marshal,
		m.handleRecentActivity,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceRecentActivity, err)
	}
	m.logger.Info("Registered activity services", "services", []string{ServiceRecentActivity})
	return nil
}

func (m *Module) handleRecentActivity(_ context.Context, req RecentActivityRequest, _ *mono.Msg) (RecentActivityResponse, error) {
	return RecentActivityResponse{Summary: m.feed.Summary(req.Limit)}, nil
}

// Start starts the module.
func (m *Module) Start(_ context.Context) error {
	m.logger.Info("Activity module started")
	return nil
}

// Stop stops the module.
func (m *Module) Stop(_ context.Context) error {
	m.logger.Info("Activity module stopped")
	return nil
}

// Health reports the counters.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	c := m.feed.Counters()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"rooms_created": c.RoomsCreated,
			"joins":         c.Joins,
			"leaves":        c.Leaves,
			"messages":      c.Messages,
		},
	}
}

// Feed returns the module's feed.
func (m *Module) Feed() *Feed {
	return m.feed
}
