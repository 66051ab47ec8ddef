// Package presence tracks which users currently hold at least one live connection.
package presence

import (
	"sync"
)

// Registry maps a user id to the set of its live connection ids.
// A user is online iff its set is non-empty; empty sets are never kept.
type Registry struct {
	mu    sync.RWMutex
	users map[string]map[string]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]map[string]struct{}),
	}
}

// Register adds connID to userID's set. It reports whether the user came online.
func (r *Registry) Register(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.users[userID]
	if !ok {
		conns = make(map[string]struct{})
		r.users[userID] = conns
	}
	conns[connID] = struct{}{}
	return !ok
}

// Deregister removes connID from userID's set. It reports whether the user went offline.
func (r *Registry) Deregister(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.users[userID]
	if !ok {
		return false
	}
	if _, present := conns[connID]; !present {
		return false
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.users, userID)
		return true
	}
	return false
}

// IsOnline reports whether userID has at least one registered connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok
}

// OnlineSubsetOf returns the ids from userIDs that are currently online, in input order.
func (r *Registry) OnlineSubsetOf(userIDs []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	online := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if _, ok := r.users[id]; ok {
			online = append(online, id)
		}
	}
	return online
}

// ConnectionCount returns the number of live connections for userID.
func (r *Registry) ConnectionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID])
}

// OnlineCount returns the number of online users.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
