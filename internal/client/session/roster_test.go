package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ringring-backend/internal/domain"
)

func TestRoster_Apply(t *testing.T) {
	// Setup
	r := NewRoster()

	// Execute
	assert.True(t, r.Apply(domain.MustEnvelope(domain.MsgUsersOnline, []domain.OnlineUser{
		{UserID: "u2", Name: "Bob"},
		{UserID: "u1", Name: "Alice"},
	})))
	assert.True(t, r.Apply(domain.MustEnvelope(domain.MsgUserOnline, domain.OnlineUser{UserID: "u3", Name: "Carol"})))
	assert.True(t, r.Apply(domain.MustEnvelope(domain.MsgUserOffline, domain.UserOfflinePayload{UserID: "u2"})))
	assert.False(t, r.Apply(domain.MustEnvelope(domain.MsgCallAccepted, domain.AcceptedPayload{CallID: "c"})))

	// Assert
	online := r.Online()
	assert.Len(t, online, 2)
	assert.Equal(t, "Alice", online[0].Name)
	assert.Equal(t, "Carol", online[1].Name)
	_, ok := r.Lookup("u2")
	assert.False(t, ok)
}

func TestRoster_SnapshotReplaces(t *testing.T) {
	r := NewRoster()
	r.Apply(domain.MustEnvelope(domain.MsgUserOnline, domain.OnlineUser{UserID: "stale", Name: "Old"}))

	r.Apply(domain.MustEnvelope(domain.MsgUsersOnline, []domain.OnlineUser{{UserID: "u1", Name: "Alice"}}))

	_, ok := r.Lookup("stale")
	assert.False(t, ok)
	u, ok := r.Lookup("u1")
	assert.True(t, ok)
	assert.Equal(t, "Alice", u.Name)
}
