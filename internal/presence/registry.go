// Package presence tracks which users are reachable over a live signaling
// connection.
package presence

import (
	"sort"
	"sync"
)

// Entry binds a user to the connection they announced on
type Entry struct {
	UserID       string
	ConnectionID string
	Name         string
	Avatar       *string
}

// Registry maps user ids to their live connection. One entry per user; a new
// announce replaces the previous entry.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]Entry
	byConn map[string]string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]Entry),
		byConn: make(map[string]string),
	}
}

// Announce upserts the entry for e.UserID. It returns the entry it replaced,
// if any.
func (r *Registry) Announce(e Entry) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, existed := r.byUser[e.UserID]
	if existed && prev.ConnectionID != e.ConnectionID {
		delete(r.byConn, prev.ConnectionID)
	}
	// a connection re-announcing as someone else drops its old identity
	if other, ok := r.byConn[e.ConnectionID]; ok && other != e.UserID {
		delete(r.byUser, other)
	}

	r.byUser[e.UserID] = e
	r.byConn[e.ConnectionID] = e.UserID
	return prev, existed
}

// Lookup returns the entry for userID. Absence is not an error.
func (r *Registry) Lookup(userID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byUser[userID]
	return e, ok
}

// UserForConnection returns the user announced on connID
func (r *Registry) UserForConnection(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.byConn[connID]
	return userID, ok
}

// Remove deletes the entry owned by connID and returns its user id. A
// connection that was superseded by a newer announce owns nothing.
func (r *Registry) Remove(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)
	if e, ok := r.byUser[userID]; ok && e.ConnectionID == connID {
		delete(r.byUser, userID)
	}
	return userID, true
}

// Online returns a snapshot of all entries sorted by user id
func (r *Registry) Online() []Entry {
	r.mu.RLock()
	entries := make([]Entry, 0, len(r.byUser))
	for _, e := range r.byUser {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return entries
}

// Count returns the number of present users
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
