package session

import (
	"sort"
	"sync"

	"ringring-backend/internal/domain"
)

// Roster tracks who is online, fed by the presence envelopes the
// controller does not consume
type Roster struct {
	mu    sync.RWMutex
	users map[string]domain.OnlineUser
}

func NewRoster() *Roster {
	return &Roster{users: make(map[string]domain.OnlineUser)}
}

// Apply updates the roster from a presence envelope and reports whether
// env was one
func (r *Roster) Apply(env domain.Envelope) bool {
	switch env.Type {
	case domain.MsgUsersOnline:
		var users []domain.OnlineUser
		if err := env.Decode(&users); err != nil {
			return true
		}
		r.mu.Lock()
		r.users = make(map[string]domain.OnlineUser, len(users))
		for _, u := range users {
			r.users[u.UserID] = u
		}
		r.mu.Unlock()
	case domain.MsgUserOnline:
		var u domain.OnlineUser
		if err := env.Decode(&u); err != nil || u.UserID == "" {
			return true
		}
		r.mu.Lock()
		r.users[u.UserID] = u
		r.mu.Unlock()
	case domain.MsgUserOffline:
		var p domain.UserOfflinePayload
		if err := env.Decode(&p); err != nil {
			return true
		}
		r.mu.Lock()
		delete(r.users, p.UserID)
		r.mu.Unlock()
	default:
		return false
	}
	return true
}

// Lookup returns the online user with the given id
func (r *Roster) Lookup(userID string) (domain.OnlineUser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[userID]
	return u, ok
}

// Online lists online users ordered by name
func (r *Roster) Online() []domain.OnlineUser {
	r.mu.RLock()
	out := make([]domain.OnlineUser, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}
