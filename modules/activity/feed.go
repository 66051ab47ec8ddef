package activity

import (
	"sync"
	"time"
)

// DefaultFeedSize is the number of entries kept in the feed.
const DefaultFeedSize = 100

// Entry types.
const (
	TypeRoomCreated = "room_created"
	TypeUserJoined  = "user_joined"
	TypeUserLeft    = "user_left"
	TypeMessageSent = "message_sent"
)

// Entry is one item of the activity feed.
type Entry struct {
	Type      string    `json:"type"`
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Counters totals every event seen since start.
type Counters struct {
	RoomsCreated int64 `json:"rooms_created"`
	Joins        int64 `json:"joins"`
	Leaves       int64 `json:"leaves"`
	Messages     int64 `json:"messages"`
}

// Summary is a point-in-time view of the feed.
type Summary struct {
	Counters       Counters         `json:"counters"`
	MessagesByRoom map[string]int64 `json:"messages_by_room"`
	Recent         []Entry          `json:"recent"`
}

// Feed keeps counters and a bounded list of the latest entries.
type Feed struct {
	mu       sync.RWMutex
	entries  []Entry
	max      int
	counters Counters
	byRoom   map[string]int64
}

// NewFeed creates a feed keeping at most size entries.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = DefaultFeedSize
	}
	return &Feed{
		entries: make([]Entry, 0, size),
		max:     size,
		byRoom:  make(map[string]int64),
	}
}

// Record appends e and updates the counters.
func (f *Feed) Record(e Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch e.Type {
	case TypeRoomCreated:
		f.counters.RoomsCreated++
	case TypeUserJoined:
		f.counters.Joins++
	case TypeUserLeft:
		f.counters.Leaves++
	case TypeMessageSent:
		f.counters.Messages++
		f.byRoom[e.RoomID]++
	}

	f.entries = append(f.entries, e)
	if len(f.entries) > f.max {
		f.entries = append(f.entries[:0], f.entries[len(f.entries)-f.max:]...)
	}
}

// Counters returns the current totals.
func (f *Feed) Counters() Counters {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.counters
}

// Summary returns the counters and up to limit entries, newest first.
func (f *Feed) Summary(limit int) Summary {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if limit <= 0 || limit > len(f.entries) {
		limit = len(f.entries)
	}
	recent := make([]Entry, 0, limit)
	for i := len(f.entries) - 1; i >= 0 && len(recent) < limit; i-- {
		recent = append(recent, f.entries[i])
	}

	byRoom := make(map[string]int64, len(f.byRoom))
	for id, n := range f.byRoom {
		byRoom[id] = n
	}
	return Summary{Counters: f.counters, MessagesByRoom: byRoom, Recent: recent}
}
