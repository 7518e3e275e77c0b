package audit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_Stamp(t *testing.T) {
	// Setup
	fixed := time.Date(2026, 3, 14, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))
	l := &Logger{now: func() time.Time { return fixed }}
	userID := uuid.New()
	event := &Event{UserID: &userID, EventType: EventLoginSuccess, Provider: "google", Success: true}

	// Execute
	key, data, err := l.stamp(event)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "audit:events:2026-03-15", key)
	assert.NotEqual(t, uuid.Nil, event.EventID)

	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, event.EventID, decoded.EventID)
	assert.Equal(t, userID, *decoded.UserID)
	assert.True(t, decoded.Timestamp.Equal(fixed))
}

func TestDecodeEvents_SkipsGarbage(t *testing.T) {
	good, err := json.Marshal(Event{EventType: EventLogout, Success: true})
	require.NoError(t, err)

	events := decodeEvents([]string{string(good), "not-json"})

	require.Len(t, events, 1)
	assert.Equal(t, EventLogout, events[0].EventType)
}
