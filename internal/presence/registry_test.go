package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnounceAndLookup(t *testing.T) {
	r := NewRegistry()

	_, replaced := r.Announce(Entry{UserID: "alice", ConnectionID: "c1", Name: "Alice"})
	assert.False(t, replaced)

	e, ok := r.Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, "c1", e.ConnectionID)
	assert.Equal(t, "Alice", e.Name)

	_, ok = r.Lookup("ghost")
	assert.False(t, ok)
}

func TestAnnounce_LastConnectionWins(t *testing.T) {
	r := NewRegistry()
	r.Announce(Entry{UserID: "alice", ConnectionID: "c1"})

	prev, replaced := r.Announce(Entry{UserID: "alice", ConnectionID: "c2"})

	assert.True(t, replaced)
	assert.Equal(t, "c1", prev.ConnectionID)
	e, _ := r.Lookup("alice")
	assert.Equal(t, "c2", e.ConnectionID)
	assert.Equal(t, 1, r.Count())

	// the superseded connection closing must not evict the new one
	userID, removed := r.Remove("c1")
	assert.False(t, removed)
	assert.Empty(t, userID)
	_, ok := r.Lookup("alice")
	assert.True(t, ok)
}

func TestRemove(t *testing.T) {
	r := NewRegistry()
	r.Announce(Entry{UserID: "alice", ConnectionID: "c1"})
	r.Announce(Entry{UserID: "bob", ConnectionID: "c2"})

	userID, removed := r.Remove("c1")

	assert.True(t, removed)
	assert.Equal(t, "alice", userID)
	_, ok := r.Lookup("alice")
	assert.False(t, ok)
	_, ok = r.UserForConnection("c1")
	assert.False(t, ok)

	_, removed = r.Remove("unknown")
	assert.False(t, removed)
}

func TestAnnounce_ConnectionChangesIdentity(t *testing.T) {
	r := NewRegistry()
	r.Announce(Entry{UserID: "alice", ConnectionID: "c1"})
	r.Announce(Entry{UserID: "bob", ConnectionID: "c1"})

	_, ok := r.Lookup("alice")
	assert.False(t, ok)
	userID, ok := r.UserForConnection("c1")
	assert.True(t, ok)
	assert.Equal(t, "bob", userID)
}

func TestOnline_Sorted(t *testing.T) {
	r := NewRegistry()
	r.Announce(Entry{UserID: "carol", ConnectionID: "c3"})
	r.Announce(Entry{UserID: "alice", ConnectionID: "c1"})
	r.Announce(Entry{UserID: "bob", ConnectionID: "c2"})

	online := r.Online()

	require.Len(t, online, 3)
	assert.Equal(t, []string{"alice", "bob", "carol"},
		[]string{online[0].UserID, online[1].UserID, online[2].UserID})
}
