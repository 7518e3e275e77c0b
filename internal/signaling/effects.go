package signaling

import (
	"time"

	"github.com/google/uuid"

	"ringring-backend/internal/domain"
)

// Effect is a side effect requested by a transition. Effects run outside the
// signaling loop; their failure never feeds back into routing.
type Effect interface {
	effect()
}

// CreateCallEffect writes the provisional ledger record for a new call
type CreateCallEffect struct {
	Record domain.Call
	CallID string
}

// CloseCallEffect writes the terminal outcome of a call
type CloseCallEffect struct {
	RecordID   uuid.UUID
	CallID     string
	CallerID   string
	ReceiverID string
	CallType   domain.CallType
	Status     domain.CallStatus
	EndTime    time.Time
	Duration   int
}

// MissedCallEffect asks for a push notification to a receiver that was not
// connected when called
type MissedCallEffect struct {
	CallerID   string
	CallerName string
	ReceiverID string
	CallType   domain.CallType
}

// PresenceEffect mirrors a presence change outside the process
type PresenceEffect struct {
	UserID string
	Name   string
	Avatar *string
	Online bool
}

func (CreateCallEffect) effect() {}
func (CloseCallEffect) effect()  {}
func (MissedCallEffect) effect() {}
func (PresenceEffect) effect()   {}
