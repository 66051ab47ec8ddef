package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	domain "github.com/example/roomchat/domain/chat"
	"github.com/example/roomchat/events"
	"github.com/example/roomchat/modules/broadcast"
	"github.com/example/roomchat/modules/presence"
	"github.com/example/roomchat/modules/store"
	"github.com/go-monolith/mono/pkg/types"
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

// recordingPublisher counts published events.
type recordingPublisher struct {
	mu      sync.Mutex
	created int
	joined  []events.UserJoinedEvent
	left    []events.UserLeftEvent
	sent    int
}

func (p *recordingPublisher) RoomCreated(context.Context, events.RoomCreatedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created++
}

func (p *recordingPublisher) UserJoined(_ context.Context, e events.UserJoinedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.joined = append(p.joined, e)
}

func (p *recordingPublisher) UserLeft(_ context.Context, e events.UserLeftEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.left = append(p.left, e)
}

func (p *recordingPublisher) MessageSent(context.Context, events.MessageSentEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent++
}

// faultyStore fails selected writes with a storage error.
type faultyStore struct {
	*store.MemoryStore
	failUpdate bool
	failAppend bool
	failRecent bool
	onRecent   func()
}

var errInjected = fmt.Errorf("%w: injected failure", domain.ErrStorageUnavailable)

func (s *faultyStore) UpdateParticipants(ctx context.Context, roomID string, participants []domain.Identity) error {
	if s.failUpdate {
		return errInjected
	}
	return s.MemoryStore.UpdateParticipants(ctx, roomID, participants)
}

func (s *faultyStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	if s.failAppend {
		return errInjected
	}
	return s.MemoryStore.AppendMessage(ctx, msg)
}

func (s *faultyStore) RecentMessages(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	if s.failRecent {
		return nil, errInjected
	}
	if s.onRecent != nil {
		s.onRecent()
	}
	return s.MemoryStore.RecentMessages(ctx, roomID, limit)
}

type fixture struct {
	svc       *Service
	store     *faultyStore
	hub       *broadcast.Hub
	presence  *presence.Registry
	publisher *recordingPublisher
}

var (
	alice = domain.Identity{UserID: "u-alice", Username: "alice"}
	bob   = domain.Identity{UserID: "u-bob", Username: "bob"}
	carol = domain.Identity{UserID: "u-carol", Username: "carol"}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := &faultyStore{MemoryStore: store.NewMemoryStore()}
	hub := broadcast.NewHub()
	reg := presence.NewRegistry()
	pub := &recordingPublisher{}

	svc, err := NewService(st, reg, hub, pub, &mockLogger{})
	require.NoError(t, err)

	// A frozen clock makes every createdAt come from the monotonic bump.
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	return &fixture{svc: svc, store: st, hub: hub, presence: reg, publisher: pub}
}

func (f *fixture) connect(identity domain.Identity) *broadcast.Client {
	c := broadcast.NewClient(identity, broadcast.DefaultSendBuffer)
	f.svc.Attach(c)
	return c
}

func frames(t *testing.T, c *broadcast.Client) []broadcast.Frame {
	t.Helper()
	var out []broadcast.Frame
	for {
		select {
		case raw := <-c.Outbound():
			var fr broadcast.Frame
			require.NoError(t, json.Unmarshal(raw, &fr))
			out = append(out, fr)
		default:
			return out
		}
	}
}

func eventNames(frs []broadcast.Frame) []string {
	names := make([]string, 0, len(frs))
	for _, fr := range frs {
		names = append(names, fr.Event)
	}
	return names
}

func TestService_CreateRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	room, err := f.svc.CreateRoom(ctx, alice, "  General  ")
	require.NoError(t, err)
	assert.Equal(t, "General", room.Name)
	assert.Len(t, room.ID, roomIDLength)
	assert.Equal(t, []domain.Identity{alice}, room.Participants)
	assert.Equal(t, alice, room.CreatedBy)
	assert.Zero(t, room.MessageCount)
	assert.Equal(t, 1, f.publisher.created)

	_, err = f.svc.CreateRoom(ctx, alice, "   ")
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 1, f.publisher.created)
}

func TestService_JoinSendAndRecent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	room, err := f.svc.CreateRoom(ctx, alice, "General")
	require.NoError(t, err)

	ca := f.connect(alice)
	snap, err := f.svc.JoinRoom(ctx, ca, room.ID)
	require.NoError(t, err)
	assert.Empty(t, snap.Messages)
	assert.False(t, snap.HasMore)
	assert.Empty(t, frames(t, ca), "creator rejoining must not announce itself")

	cb := f.connect(bob)
	snap, err = f.svc.JoinRoom(ctx, cb, room.ID)
	require.NoError(t, err)
	assert.True(t, snap.HasParticipant(bob.UserID))

	got := frames(t, ca)
	require.Len(t, got, 1)
	assert.Equal(t, broadcast.EventUserJoined, got[0].Event)
	var joined domain.Identity
	require.NoError(t, json.Unmarshal(got[0].Data, &joined))
	assert.Equal(t, bob, joined)
	assert.Empty(t, frames(t, cb), "joiner does not receive its own user-joined")

	msg, err := f.svc.SendMessage(ctx, alice, room.ID, "hi")
	require.NoError(t, err)
	assert.Equal(t, int64(1), msg.Seq)

	for _, c := range []*broadcast.Client{ca, cb} {
		got := frames(t, c)
		require.Len(t, got, 1)
		assert.Equal(t, broadcast.EventNewMessage, got[0].Event)
		var delivered domain.Message
		require.NoError(t, json.Unmarshal(got[0].Data, &delivered))
		assert.Equal(t, msg.ID, delivered.ID)
		assert.Equal(t, "hi", delivered.Content)
	}

	recent, err := f.svc.GetRecent(ctx, bob, room.ID, 50)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "hi", recent[0].Content)

	stored, err := f.store.FindByRoomID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.MessageCount)
	assert.True(t, stored.LastActivity.Equal(msg.CreatedAt))
	assert.Len(t, f.publisher.joined, 1)
	assert.Equal(t, 1, f.publisher.sent)
}

func TestService_ReconnectDoesNotAnnounce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	room, err := f.svc.CreateRoom(ctx, alice, "General")
	require.NoError(t, err)
	ca := f.connect(alice)
	_, err = f.svc.JoinRoom(ctx, ca, room.ID)
	require.NoError(t, err)

	cb := f.connect(bob)
	_, err = f.svc.JoinRoom(ctx, cb, room.ID)
	require.NoError(t, err)
	frames(t, ca)

	f.svc.Detach(cb)
	assert.False(t, f.presence.IsOnline(bob.UserID))

	cb2 := f.connect(bob)
	_, err = f.svc.JoinRoom(ctx, cb2, room.ID)
	require.NoError(t, err)
	assert.Empty(t, frames(t, ca))
	assert.Len(t, f.publisher.joined, 1)
	assert.True(t, f.hub.IsSubscribed(room.ID, cb2))
}

func TestService_JoinAfterDetachFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	room, err := f.svc.CreateRoom(ctx, alice, "General")
	require.NoError(t, err)
	cb := f.connect(bob)
	f.svc.Detach(cb)

	_, err = f.svc.JoinRoom(ctx, cb, room.ID)
	assert.ErrorIs(t, err, broadcast.ErrClientClosed)

	stored, err := f.store.FindByRoomID(ctx, room.ID)
	require.NoError(t, err)
	assert.False(t, stored.HasParticipant(bob.UserID))
}

func TestService_JoinMissingRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ca := f.connect(alice)

	_, err := f.svc.JoinRoom(ctx, ca, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, f.hub.RoomsOf(ca))

	_, err = f.svc.JoinRoom(ctx, ca, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestService_LeaveTwice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	room, err := f.svc.CreateRoom(ctx, alice, "General")
	require.NoError(t, err)
	ca := f.connect(alice)
	_, err = f.svc.JoinRoom(ctx, ca, room.ID)
	require.NoError(t, err)
	cb := f.connect(bob)
	cb2 := f.connect(bob)
	_, err = f.svc.JoinRoom(ctx, cb, room.ID)
	require.NoError(t, err)
	_, err = f.svc.JoinRoom(ctx, cb2, room.ID)
	require.NoError(t, err)
	frames(t, ca)

	require.NoError(t, f.svc.LeaveRoom(ctx, bob, room.ID))
	got := frames(t, ca)
	require.Len(t, got, 1)
	assert.Equal(t, broadcast.EventUserLeft, got[0].Event)
	assert.False(t, f.hub.IsSubscribed(room.ID, cb))
	assert.False(t, f.hub.IsSubscribed(room.ID, cb2))

	require.NoError(t, f.svc.LeaveRoom(ctx, bob, room.ID))
	assert.Empty(t, frames(t, ca))
	assert.Len(t, f.publisher.left, 1)

	require.NoError(t, f.svc.LeaveRoom(ctx, bob, "missing-room"))

	_, err = f.svc.SendMessage(ctx, bob, room.ID, "still here?")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestService_SendRequiresParticipant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	room, err := f.svc.CreateRoom(ctx, alice, "General")
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, alice, room.ID, "first")
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, carol, room.ID, "intruder")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.SendMessage(ctx, alice, "missing", "hello")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.SendMessage(ctx, alice, room.ID, "  ")
	assert.ErrorIs(t, err, domain.ErrValidation)

	// Membership is checked before content.
	_, err = f.svc.SendMessage(ctx, carol, room.ID, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.NotErrorIs(t, err, domain.ErrValidation)

	stored, err := f.store.FindByRoomID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.MessageCount)
	recent, err := f.svc.GetRecent(ctx, alice, room.ID, 0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "first", recent[0].Content)
}

func TestService_SendWithoutLiveSubscription(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	room, err := f.svc.CreateRoom(ctx, alice, "General")
	require.NoError(t, err)
	_, _, err = f.svc.EnsureParticipant(ctx, bob, room.ID)
	require.NoError(t, err)

	msg, err := f.svc.SendMessage(ctx, bob, room.ID, "from rest")
	require.NoError(t, err)
	assert.Equal(t, bob.UserID, msg.UserID)
}

func TestService_EnsureParticipantAnnounces(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	room, err := f.svc.CreateRoom(ctx, alice, "General")
	require.NoError(t, err)
	ca := f.connect(alice)
	_, err = f.svc.JoinRoom(ctx, ca, room.ID)
	require.NoError(t, err)

	_, changed, err := f.svc.EnsureParticipant(ctx, bob, room.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{broadcast.EventUserJoined}, eventNames(frames(t, ca)))

	_, changed, err = f.svc.EnsureParticipant(ctx, bob, room.ID)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, frames(t, ca))
}

func TestService_GetBefore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	room, err := f.svc.CreateRoom(ctx, alice, "General")
	require.NoError(t, err)

	const n = 30
	var log []domain.Message
	for i := 0; i < n; i++ {
		msg, err := f.svc.SendMessage(ctx, alice, room.ID, fmt.Sprintf("m%d", i))
		require.NoError(t, err)
		log = append(log, *msg)
	}

	for _, k := range []int{0, 1, 5, 10, 29} {
		for _, limit := range []int{1, 5, 10, 50} {
			t.Run(fmt.Sprintf("k=%d limit=%d", k, limit), func(t *testing.T) {
				page, err := f.svc.GetBefore(ctx, alice, room.ID, log[k].CreatedAt, limit)
				require.NoError(t, err)

				start := k - limit
				if start < 0 {
					start = 0
				}
				want := log[start:k]
				require.Len(t, page.Messages, len(want))
				for i := range want {
					assert.Equal(t, want[i].ID, page.Messages[i].ID)
				}
				assert.Equal(t, k-limit > 0, page.HasMore)
			})
		}
	}
}

func TestService_GetBeforeUnknownCursor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	room, err := f.svc.CreateRoom(ctx, alice, "General")
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, alice, room.ID, "only")
	require.NoError(t, err)

	page, err := f.svc.GetBefore(ctx, alice, room.ID, time.Unix(0, 0), 10)
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
	assert.NotNil(t, page.Messages)
	assert.False(t, page.HasMore)

	_, err = f.svc.GetBefore(ctx, carol, room.ID, time.Unix(0, 0), 10)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestService_HistoryLatestPage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	room, err := f.svc.CreateRoom(ctx, alice, "General")
	require.NoError(t, err)
	for i := 0; i < 60; i++ {
		_, err := f.svc.SendMessage(ctx, alice, room.ID, fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	page, err := f.svc.History(ctx, alice, room.ID, 0, nil)
	require.NoError(t, err)
	require.Len(t, page.Messages, DefaultHistoryLimit)
	assert.True(t, page.HasMore)
	assert.Equal(t, int64(11), page.Messages[0].Seq)
	assert.Equal(t, int64(60), page.Messages[len(page.Messages)-1].Seq)

	cursor := page.Messages[0].CreatedAt
	older, err := f.svc.History(ctx, alice, room.ID, 0, &cursor)
	require.NoError(t, err)
	require.Len(t, older.Messages, 10)
	assert.False(t, older.HasMore)
	assert.Equal(t, int64(1), older.Messages[0].Seq)

	ca := f.connect(alice)
	snap, err := f.svc.JoinRoom(ctx, ca, room.ID)
	require.NoError(t, err)
	assert.Len(t, snap.Messages, DefaultHistoryLimit)
	assert.True(t, snap.HasMore)
}

func TestService_ConcurrentSendsKeepOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	room, err := f.svc.CreateRoom(ctx, alice, "General")
	require.NoError(t, err)
	_, _, err = f.svc.EnsureParticipant(ctx, bob, room.ID)
	require.NoError(t, err)

	ca := f.connect(alice)
	cb := f.connect(bob)
	_, err = f.svc.JoinRoom(ctx, ca, room.ID)
	require.NoError(t, err)
	_, err = f.svc.JoinRoom(ctx, cb, room.ID)
	require.NoError(t, err)

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sender := alice
			if i%2 == 1 {
				sender = bob
			}
			_, err := f.svc.SendMessage(ctx, sender, room.ID, fmt.Sprintf("msg %d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	log, err := f.store.RecentMessages(ctx, room.ID, n)
	require.NoError(t, err)
	require.Len(t, log, n)

	for _, c := range []*broadcast.Client{ca, cb} {
		got := frames(t, c)
		require.Len(t, got, n)
		for i, fr := range got {
			var m domain.Message
			require.NoError(t, json.Unmarshal(fr.Data, &m))
			assert.Equal(t, log[i].ID, m.ID)
			assert.Equal(t, int64(i+1), m.Seq)
		}
	}
	for i := 1; i < n; i++ {
		assert.True(t, log[i].CreatedAt.After(log[i-1].CreatedAt))
	}
}

func TestService_OnlineUsersAfterDisconnect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	room, err := f.svc.CreateRoom(ctx, alice, "General")
	require.NoError(t, err)
	_, _, err = f.svc.EnsureParticipant(ctx, bob, room.ID)
	require.NoError(t, err)

	ca := f.connect(alice)
	f.connect(bob)

	users, err := f.svc.OnlineUsers(ctx, bob, room.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Identity{alice, bob}, users)

	f.svc.Detach(ca)
	users, err = f.svc.OnlineUsers(ctx, bob, room.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Identity{bob}, users)
	assert.True(t, ca.Closed())

	_, err = f.svc.OnlineUsers(ctx, carol, room.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestService_StorageFailureLeavesNoPartialState(t *testing.T) {
	ctx := context.Background()

	t.Run("join", func(t *testing.T) {
		f := newFixture(t)
		room, err := f.svc.CreateRoom(ctx, alice, "General")
		require.NoError(t, err)
		ca := f.connect(alice)
		_, err = f.svc.JoinRoom(ctx, ca, room.ID)
		require.NoError(t, err)

		f.store.failUpdate = true
		cb := f.connect(bob)
		_, err = f.svc.JoinRoom(ctx, cb, room.ID)
		assert.ErrorIs(t, err, domain.ErrStorageUnavailable)

		assert.False(t, f.hub.IsSubscribed(room.ID, cb))
		assert.Empty(t, frames(t, ca))
		stored, err := f.store.FindByRoomID(ctx, room.ID)
		require.NoError(t, err)
		assert.False(t, stored.HasParticipant(bob.UserID))
		assert.Empty(t, f.publisher.joined)
	})

	t.Run("join snapshot", func(t *testing.T) {
		f := newFixture(t)
		room, err := f.svc.CreateRoom(ctx, alice, "General")
		require.NoError(t, err)

		f.store.failRecent = true
		cb := f.connect(bob)
		_, err = f.svc.JoinRoom(ctx, cb, room.ID)
		assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
		assert.False(t, f.hub.IsSubscribed(room.ID, cb))

		stored, err := f.store.FindByRoomID(ctx, room.ID)
		require.NoError(t, err)
		assert.False(t, stored.HasParticipant(bob.UserID))
	})

	t.Run("send", func(t *testing.T) {
		f := newFixture(t)
		room, err := f.svc.CreateRoom(ctx, alice, "General")
		require.NoError(t, err)
		ca := f.connect(alice)
		_, err = f.svc.JoinRoom(ctx, ca, room.ID)
		require.NoError(t, err)

		f.store.failAppend = true
		_, err = f.svc.SendMessage(ctx, alice, room.ID, "lost")
		assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
		assert.Empty(t, frames(t, ca))
		assert.Zero(t, f.publisher.sent)

		f.store.failAppend = false
		msg, err := f.svc.SendMessage(ctx, alice, room.ID, "kept")
		require.NoError(t, err)
		assert.Equal(t, int64(1), msg.Seq)
	})

	t.Run("leave", func(t *testing.T) {
		f := newFixture(t)
		room, err := f.svc.CreateRoom(ctx, alice, "General")
		require.NoError(t, err)
		ca := f.connect(alice)
		_, err = f.svc.JoinRoom(ctx, ca, room.ID)
		require.NoError(t, err)

		f.store.failUpdate = true
		err = f.svc.LeaveRoom(ctx, alice, room.ID)
		assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
		assert.True(t, f.hub.IsSubscribed(room.ID, ca))
	})
}

func TestService_ListRoomsByActivity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	older, err := f.svc.CreateRoom(ctx, alice, "Older")
	require.NoError(t, err)
	newer, err := f.svc.CreateRoom(ctx, alice, "Newer")
	require.NoError(t, err)
	_, err = f.svc.CreateRoom(ctx, bob, "Bob only")
	require.NoError(t, err)

	// A later clock puts the message after the second room's creation.
	f.svc.now = func() time.Time { return time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC) }
	_, err = f.svc.SendMessage(ctx, alice, older.ID, "bump")
	require.NoError(t, err)

	rooms, err := f.svc.ListRooms(ctx, alice)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, older.ID, rooms[0].ID)
	assert.Equal(t, newer.ID, rooms[1].ID)
	assert.Equal(t, int64(1), rooms[0].MessageCount)

	rooms, err = f.svc.ListRooms(ctx, carol)
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestService_CheckRoom(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	room, err := f.svc.CreateRoom(ctx, alice, "General")
	require.NoError(t, err)

	check, err := f.svc.CheckRoom(ctx, alice, room.ID)
	require.NoError(t, err)
	assert.True(t, check.Exists)
	assert.Equal(t, "General", check.Name)
	require.NotNil(t, check.IsParticipant)
	assert.True(t, *check.IsParticipant)

	check, err = f.svc.CheckRoom(ctx, bob, room.ID)
	require.NoError(t, err)
	assert.False(t, *check.IsParticipant)

	check, err = f.svc.CheckRoom(ctx, bob, "missing")
	require.NoError(t, err)
	assert.False(t, check.Exists)
	assert.Nil(t, check.IsParticipant)
}

func TestService_Typing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	room, err := f.svc.CreateRoom(ctx, alice, "General")
	require.NoError(t, err)
	ca := f.connect(alice)
	cb := f.connect(bob)
	_, err = f.svc.JoinRoom(ctx, ca, room.ID)
	require.NoError(t, err)

	// Bob is not subscribed, so his indicator goes nowhere.
	f.svc.Typing(cb, room.ID, true)
	assert.Empty(t, frames(t, ca))

	_, err = f.svc.JoinRoom(ctx, cb, room.ID)
	require.NoError(t, err)
	frames(t, ca)

	f.svc.Typing(cb, room.ID, true)
	got := frames(t, ca)
	require.Len(t, got, 1)
	assert.Equal(t, broadcast.EventUserTyping, got[0].Event)
	var payload TypingPayload
	require.NoError(t, json.Unmarshal(got[0].Data, &payload))
	assert.Equal(t, TypingPayload{RoomID: room.ID, UserID: bob.UserID, Username: bob.Username, IsTyping: true}, payload)
	assert.Empty(t, frames(t, cb))
}

func TestService_CreatedAtStrictlyIncreasing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	room, err := f.svc.CreateRoom(ctx, alice, "General")
	require.NoError(t, err)

	first, err := f.svc.SendMessage(ctx, alice, room.ID, "one")
	require.NoError(t, err)
	second, err := f.svc.SendMessage(ctx, alice, room.ID, "two")
	require.NoError(t, err)

	assert.True(t, first.CreatedAt.After(room.CreatedAt))
	assert.Equal(t, time.Microsecond, second.CreatedAt.Sub(first.CreatedAt))
}

// heldListStore blocks the first FindByParticipant after it has read the
// rooms, until release is closed.
type heldListStore struct {
	*store.MemoryStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *heldListStore) FindByParticipant(ctx context.Context, userID string) ([]domain.RoomSummary, error) {
	rooms, err := s.MemoryStore.FindByParticipant(ctx, userID)
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return rooms, err
}

func TestService_ListRoomsSeesPrecedingCreate(t *testing.T) {
	st := &heldListStore{
		MemoryStore: store.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	svc, err := NewService(st, presence.NewRegistry(), broadcast.NewHub(), nil, &mockLogger{})
	require.NoError(t, err)

	firstCtx, cancel := context.WithCancel(context.Background())
	type result struct {
		rooms []domain.RoomSummary
		err   error
	}
	first := make(chan result, 1)
	go func() {
		rooms, err := svc.ListRooms(firstCtx, alice)
		first <- result{rooms, err}
	}()
	<-st.entered

	room, err := svc.CreateRoom(context.Background(), alice, "general")
	require.NoError(t, err)

	// Cancelling the in-flight caller must not affect anyone else.
	cancel()

	rooms, err := svc.ListRooms(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, room.ID, rooms[0].ID)

	close(st.release)
	res := <-first
	require.NoError(t, res.err)
	assert.Empty(t, res.rooms)
}

func TestService_HistoryBeyondTransportCap(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	room, err := f.svc.CreateRoom(ctx, alice, "General")
	require.NoError(t, err)
	total := MaxHistoryLimit + 2
	for i := 0; i < total; i++ {
		_, err := f.svc.SendMessage(ctx, alice, room.ID, fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	limit := MaxHistoryLimit + 1
	recent, err := f.svc.GetRecent(ctx, alice, room.ID, limit)
	require.NoError(t, err)
	assert.Len(t, recent, limit)

	page, err := f.svc.History(ctx, alice, room.ID, limit, nil)
	require.NoError(t, err)
	assert.Len(t, page.Messages, limit)
	assert.True(t, page.HasMore)

	cursor := recent[len(recent)-1].CreatedAt
	older, err := f.svc.GetBefore(ctx, alice, room.ID, cursor, limit)
	require.NoError(t, err)
	assert.Len(t, older.Messages, total-1)
	assert.False(t, older.HasMore)
}

func TestService_HistoryPageMatchesHasMore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	room, err := f.svc.CreateRoom(ctx, alice, "General")
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err := f.svc.SendMessage(ctx, alice, room.ID, fmt.Sprintf("m%d", i))
		require.NoError(t, err)
	}

	// A send racing the page read lands either wholly before or wholly after it.
	var once sync.Once
	sent := make(chan error, 1)
	f.store.onRecent = func() {
		once.Do(func() {
			go func() {
				_, err := f.svc.SendMessage(ctx, alice, room.ID, "racing")
				sent <- err
			}()
			time.Sleep(50 * time.Millisecond)
		})
	}

	page, err := f.svc.History(ctx, alice, room.ID, 2, nil)
	require.NoError(t, err)
	require.NoError(t, <-sent)

	require.Len(t, page.Messages, 2)
	assert.Equal(t, page.Messages[0].Seq > 1, page.HasMore)
	assert.Equal(t, int64(1), page.Messages[0].Seq)
	assert.False(t, page.HasMore)
}
