package domain

import (
	"time"

	"github.com/gocql/gocql"
)

// CallEventKind names an entry of the call-event journal
type CallEventKind string

const (
	CallEventCreated       CallEventKind = "created"
	CallEventClosed        CallEventKind = "closed"
	CallEventOfflineTarget CallEventKind = "offline_target"
)

// CallEvent is one append-only journal row (call_events_by_call)
type CallEvent struct {
	CallID     string
	EventID    gocql.UUID // TIMEUUID
	Kind       CallEventKind
	CallerID   string
	ReceiverID string
	Status     CallStatus
	Duration   int
	OccurredAt time.Time
}
