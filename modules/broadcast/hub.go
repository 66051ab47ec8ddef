// Package broadcast owns the live subscriber sets and fans frames out to connections.
package broadcast

import (
	"errors"
	"log"
	"sync"
)

// ErrClientClosed is returned when subscribing a client that has been detached.
var ErrClientClosed = errors.New("client connection closed")

// Hub manages attached clients and the roomID -> subscribers mapping.
// A room with no subscribers has no entry.
type Hub struct {
	clients map[string]*Client             // clientID -> Client
	rooms   map[string]map[string]*Client  // roomID -> clientID -> Client
	joined  map[string]map[string]struct{} // clientID -> roomIDs
	mu      sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Attach adds a client to the hub. A client must be attached before it can subscribe.
func (h *Hub) Attach(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	h.joined[client.ID] = make(map[string]struct{})
	log.Printf("[hub] Client %s (%s) attached", client.ID, client.Identity.Username)
}

// Detach closes the client and removes it from every room in one step.
// Subscriptions attempted after Detach fail with ErrClientClosed.
func (h *Hub) Detach(client *Client) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	client.Close()
	if _, ok := h.clients[client.ID]; !ok {
		return nil
	}

	left := make([]string, 0, len(h.joined[client.ID]))
	for roomID := range h.joined[client.ID] {
		h.removeLocked(roomID, client.ID)
		left = append(left, roomID)
	}
	delete(h.joined, client.ID)
	delete(h.clients, client.ID)
	log.Printf("[hub] Client %s (%s) detached from %d rooms", client.ID, client.Identity.Username, len(left))
	return left
}

// Subscribe adds the client to roomID's subscriber set. It is idempotent.
func (h *Hub) Subscribe(roomID string, client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok || client.Closed() {
		return ErrClientClosed
	}
	subs, ok := h.rooms[roomID]
	if !ok {
		subs = make(map[string]*Client)
		h.rooms[roomID] = subs
	}
	subs[client.ID] = client
	h.joined[client.ID][roomID] = struct{}{}
	return nil
}

// Unsubscribe removes the client from roomID. It reports whether it was subscribed.
func (h *Hub) Unsubscribe(roomID string, client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removeLocked(roomID, client.ID)
}

// UnsubscribeUser removes every connection of userID from roomID and returns them.
func (h *Hub) UnsubscribeUser(roomID, userID string) []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	var removed []*Client
	for id, client := range h.rooms[roomID] {
		if client.Identity.UserID == userID {
			removed = append(removed, client)
			h.removeLocked(roomID, id)
		}
	}
	return removed
}

func (h *Hub) removeLocked(roomID, clientID string) bool {
	subs, ok := h.rooms[roomID]
	if !ok {
		return false
	}
	if _, ok := subs[clientID]; !ok {
		return false
	}
	delete(subs, clientID)
	if len(subs) == 0 {
		delete(h.rooms, roomID)
	}
	if rooms, ok := h.joined[clientID]; ok {
		delete(rooms, roomID)
	}
	return true
}

// IsSubscribed reports whether the client currently receives roomID's events.
func (h *Hub) IsSubscribed(roomID string, client *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[roomID][client.ID]
	return ok
}

// Publish queues frame on every subscriber of roomID except the given client.
// Slow subscribers are closed instead of blocking the publisher.
func (h *Hub) Publish(roomID string, frame []byte, except *Client) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for id, client := range h.rooms[roomID] {
		if except != nil && id == except.ID {
			continue
		}
		if client.Send(frame) {
			delivered++
			continue
		}
		log.Printf("[hub] Dropping frame for client %s in room %s: connection closed or too slow", id, roomID)
	}
	return delivered
}

// RoomsOf returns the rooms the client is subscribed to.
func (h *Hub) RoomsOf(client *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rooms := make([]string, 0, len(h.joined[client.ID]))
	for roomID := range h.joined[client.ID] {
		rooms = append(rooms, roomID)
	}
	return rooms
}

// CloseAll closes every attached client. Their transports observe Done and
// run the normal detach path.
func (h *Hub) CloseAll() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		client.Close()
	}
	return len(h.clients)
}

// ClientCount returns the total number of attached clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomClientCount returns the number of subscribers in a room.
func (h *Hub) RoomClientCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// RoomCount returns the number of rooms with at least one subscriber.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
