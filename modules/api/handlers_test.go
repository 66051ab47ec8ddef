package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	domain "github.com/example/roomchat/domain/chat"
	"github.com/example/roomchat/modules/activity"
	"github.com/example/roomchat/modules/auth"
	"github.com/example/roomchat/modules/chat"
	"github.com/example/roomchat/modules/ratelimit"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(_ string, _ ...any) {}
func (m *mockLogger) Info(_ string, _ ...any)  {}
func (m *mockLogger) Warn(_ string, _ ...any)  {}
func (m *mockLogger) Error(_ string, _ ...any) {}
func (m *mockLogger) With(_ ...any) types.Logger {
	return m
}
func (m *mockLogger) WithModule(_ string) types.Logger {
	return m
}
func (m *mockLogger) WithError(_ error) types.Logger {
	return m
}

// mockChatPort implements chat.ChatPort for testing
type mockChatPort struct {
	chat.ChatPort

	listRoomsFunc   func(ctx context.Context, identity domain.Identity) ([]domain.RoomSummary, error)
	getRoomFunc     func(ctx context.Context, identity domain.Identity, roomID string) (*domain.Room, error)
	getMessagesFunc func(ctx context.Context, identity domain.Identity, roomID string, limit int, before *time.Time) (*domain.HistoryPage, error)
	sendMessageFunc func(ctx context.Context, identity domain.Identity, roomID, content string) (*domain.Message, error)
}

func (m *mockChatPort) ListRooms(ctx context.Context, identity domain.Identity) ([]domain.RoomSummary, error) {
	return m.listRoomsFunc(ctx, identity)
}

func (m *mockChatPort) GetRoom(ctx context.Context, identity domain.Identity, roomID string) (*domain.Room, error) {
	return m.getRoomFunc(ctx, identity, roomID)
}

func (m *mockChatPort) GetMessages(ctx context.Context, identity domain.Identity, roomID string, limit int, before *time.Time) (*domain.HistoryPage, error) {
	return m.getMessagesFunc(ctx, identity, roomID, limit, before)
}

func (m *mockChatPort) SendMessage(ctx context.Context, identity domain.Identity, roomID, content string) (*domain.Message, error) {
	return m.sendMessageFunc(ctx, identity, roomID, content)
}

type mockActivityPort struct {
	summary activity.Summary
}

func (m *mockActivityPort) Recent(_ context.Context, _ int) (*activity.Summary, error) {
	return &m.summary, nil
}

// stubLimiter answers every check with a fixed result.
type stubLimiter struct {
	allowed bool
	err     error
	calls   int
}

func (s *stubLimiter) Allow(_ context.Context, _ string) (*ratelimit.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &ratelimit.Result{Allowed: s.allowed, RetryAfter: time.Second}, nil
}

func (s *stubLimiter) Backend() string { return "stub" }
func (s *stubLimiter) Close() error    { return nil }

func newTestApp(authPort auth.AuthPort, chatPort chat.ChatPort, limiter ratelimit.Limiter) *fiber.App {
	gate := &sendGate{limiter: limiter, logger: &mockLogger{}}
	handlers := NewHandlers(authPort, chatPort, &mockActivityPort{}, gate)

	app := newApp("*")
	v1 := app.Group("/api/v1")
	v1.Post("/auth/register", handlers.Register)
	protected := v1.Group("")
	protected.Use(AuthMiddleware(authPort))
	protected.Get("/activity", handlers.Activity)
	protected.Get("/rooms", handlers.ListRooms)
	protected.Get("/rooms/:id", handlers.GetRoom)
	protected.Get("/rooms/:id/messages", handlers.GetMessages)
	protected.Post("/rooms/:id/messages", handlers.SendMessage)
	return app
}

func do(t *testing.T, app *fiber.App, method, target, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Authorization", "Bearer u-1:alice")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{err: domain.ErrNotFound, status: http.StatusNotFound, code: domain.CodeNotFound},
		{err: domain.ErrForbidden, status: http.StatusForbidden, code: domain.CodeForbidden},
		{err: chat.ErrMessageEmpty, status: http.StatusBadRequest, code: domain.CodeValidation},
		{err: fmt.Errorf("%w: down", domain.ErrStorageUnavailable), status: http.StatusServiceUnavailable, code: domain.CodeStorageUnavailable},
		{err: auth.ErrInvalidCredentials, status: http.StatusUnauthorized, code: domain.CodeUnauthorized},
		{err: domain.ErrRateLimited, status: http.StatusTooManyRequests, code: domain.CodeRateLimited},
		{err: &domain.CodedError{Kind: auth.ErrUserExists, Message: "taken"}, status: http.StatusConflict, code: auth.CodeUserExists},
		{err: domain.ErrorFromCode(domain.CodeForbidden, "nope"), status: http.StatusForbidden, code: domain.CodeForbidden},
		{err: errors.New("boom"), status: http.StatusInternalServerError, code: domain.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestClientMessage(t *testing.T) {
	assert.Equal(t, "Internal Server Error", clientMessage(errors.New("pq: connection refused")))
	assert.Equal(t, RateLimitMessage, clientMessage(domain.ErrRateLimited))
	assert.Equal(t, domain.ErrNotFound.Error(), clientMessage(domain.ErrNotFound))
	assert.NotContains(t, clientMessage(fmt.Errorf("%w: dial tcp 10.0.0.1", domain.ErrStorageUnavailable)), "10.0.0.1")
}

func TestHandlers_ListRooms(t *testing.T) {
	chatPort := &mockChatPort{
		listRoomsFunc: func(_ context.Context, identity domain.Identity) ([]domain.RoomSummary, error) {
			assert.Equal(t, "u-1", identity.UserID)
			return []domain.RoomSummary{{ID: "r1", Name: "general"}}, nil
		},
	}
	app := newTestApp(tokenAuth(), chatPort, &stubLimiter{allowed: true})

	resp, body := do(t, app, "GET", "/api/v1/rooms", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got RoomListResponse
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, 1, got.Total)
	assert.Equal(t, "general", got.Rooms[0].Name)
}

func TestHandlers_GetRoomForbidden(t *testing.T) {
	chatPort := &mockChatPort{
		getRoomFunc: func(context.Context, domain.Identity, string) (*domain.Room, error) {
			return nil, domain.ErrorFromCode(domain.CodeForbidden, domain.ErrForbidden.Error())
		},
	}
	app := newTestApp(tokenAuth(), chatPort, nil)

	resp, body := do(t, app, "GET", "/api/v1/rooms/r1", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Contains(t, string(body), `"forbidden"`)
}

func TestHandlers_GetMessages(t *testing.T) {
	cursor := time.Date(2026, 1, 1, 12, 0, 0, 123456000, time.UTC)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLimit  int
		wantBefore *time.Time
	}{
		{name: "defaults", query: "", wantStatus: http.StatusOK, wantLimit: chat.DefaultHistoryLimit},
		{name: "capped limit", query: "?limit=5000", wantStatus: http.StatusOK, wantLimit: chat.MaxHistoryLimit},
		{name: "cursor", query: "?limit=10&before=" + cursor.Format(time.RFC3339Nano), wantStatus: http.StatusOK, wantLimit: 10, wantBefore: &cursor},
		{name: "bad cursor", query: "?before=yesterday", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotLimit int
			var gotBefore *time.Time
			chatPort := &mockChatPort{
				getMessagesFunc: func(_ context.Context, _ domain.Identity, roomID string, limit int, before *time.Time) (*domain.HistoryPage, error) {
					gotLimit, gotBefore = limit, before
					return &domain.HistoryPage{Messages: []domain.Message{}, HasMore: true}, nil
				},
			}
			app := newTestApp(tokenAuth(), chatPort, nil)

			resp, body := do(t, app, "GET", "/api/v1/rooms/r1/messages"+tt.query, "")
			require.Equal(t, tt.wantStatus, resp.StatusCode, string(body))
			if tt.wantStatus != http.StatusOK {
				return
			}

			assert.Equal(t, tt.wantLimit, gotLimit)
			if tt.wantBefore == nil {
				assert.Nil(t, gotBefore)
			} else {
				require.NotNil(t, gotBefore)
				assert.True(t, tt.wantBefore.Equal(*gotBefore))
			}

			var got HistoryResponse
			require.NoError(t, json.Unmarshal(body, &got))
			assert.Equal(t, "r1", got.RoomID)
			assert.True(t, got.HasMore)
		})
	}
}

func TestHandlers_SendMessageRateLimit(t *testing.T) {
	tests := []struct {
		name       string
		limiter    *stubLimiter
		wantStatus int
		wantSent   bool
	}{
		{name: "allowed", limiter: &stubLimiter{allowed: true}, wantStatus: http.StatusCreated, wantSent: true},
		{name: "limited", limiter: &stubLimiter{allowed: false}, wantStatus: http.StatusTooManyRequests, wantSent: false},
		{name: "limiter down fails open", limiter: &stubLimiter{err: errors.New("redis: connection refused")}, wantStatus: http.StatusCreated, wantSent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sent := false
			chatPort := &mockChatPort{
				sendMessageFunc: func(_ context.Context, identity domain.Identity, roomID, content string) (*domain.Message, error) {
					sent = true
					return &domain.Message{ID: "m1", RoomID: roomID, Seq: 1, UserID: identity.UserID, Content: content}, nil
				},
			}
			app := newTestApp(tokenAuth(), chatPort, tt.limiter)

			resp, body := do(t, app, "POST", "/api/v1/rooms/r1/messages", `{"content":"hi"}`)
			assert.Equal(t, tt.wantStatus, resp.StatusCode, string(body))
			assert.Equal(t, tt.wantSent, sent)
			assert.Equal(t, 1, tt.limiter.calls)
			if tt.wantStatus == http.StatusTooManyRequests {
				assert.Contains(t, string(body), RateLimitMessage)
			}
		})
	}
}

func TestHandlers_RegisterConflict(t *testing.T) {
	authPort := tokenAuth()
	authPort.registerFunc = func(context.Context, string, string) (*auth.RegisterResponse, error) {
		return nil, &domain.CodedError{Kind: auth.ErrUserExists, Message: auth.ErrUserExists.Error()}
	}
	app := newTestApp(authPort, &mockChatPort{}, nil)

	resp, body := do(t, app, "POST", "/api/v1/auth/register", `{"username":"alice","password":"correct-horse"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), auth.CodeUserExists)
}

func TestParseCursor(t *testing.T) {
	got, err := parseCursor("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseCursor("2026-01-01T12:00:00.000001Z")
	require.NoError(t, err)
	assert.Equal(t, 1000, got.Nanosecond())

	_, err = parseCursor("1700000000")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
