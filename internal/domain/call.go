package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallType is the media kind a call was placed with
type CallType string

const (
	CallTypeVideo CallType = "video"
	CallTypeAudio CallType = "audio"
)

// Valid reports whether t is a known call type
func (t CallType) Valid() bool {
	return t == CallTypeVideo || t == CallTypeAudio
}

// CallStatus is the persisted outcome of a call
type CallStatus string

const (
	// CallStatusPending is written at initiation and replaced exactly once
	CallStatusPending   CallStatus = "pending"
	CallStatusCompleted CallStatus = "completed"
	CallStatusMissed    CallStatus = "missed"
	CallStatusRejected  CallStatus = "rejected"
	CallStatusCancelled CallStatus = "cancelled"
)

// IsTerminal reports whether s is a final outcome
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusMissed, CallStatusRejected, CallStatusCancelled:
		return true
	}
	return false
}

// Call is a persisted call record (calls table)
type Call struct {
	CallID     uuid.UUID  `json:"id"`
	CallerID   string     `json:"caller_id"`
	ReceiverID string     `json:"receiver_id"`
	CallType   CallType   `json:"call_type"`
	Status     CallStatus `json:"status"`
	StartedAt  time.Time  `json:"start_time"`
	EndedAt    *time.Time `json:"end_time,omitempty"`
	Duration   *int       `json:"duration,omitempty"` // seconds
}

// DurationSeconds returns floor(end - start) in whole seconds, never negative
func DurationSeconds(start, end time.Time) int {
	if !end.After(start) {
		return 0
	}
	return int(end.Sub(start) / time.Second)
}

// CallContact is the other party of a history entry
type CallContact struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Avatar     *string `json:"avatar,omitempty"`
	RingNumber *string `json:"ringNumber,omitempty"`
}

// CallHistoryEntry is one call as seen by a participant
type CallHistoryEntry struct {
	ID         uuid.UUID   `json:"id"`
	Type       CallType    `json:"type"`
	Status     CallStatus  `json:"status"`
	Duration   int         `json:"duration"`
	StartTime  time.Time   `json:"startTime"`
	EndTime    *time.Time  `json:"endTime,omitempty"`
	IsIncoming bool        `json:"isIncoming"`
	Contact    CallContact `json:"contact"`
}

// CallHistoryPage is one page of a user's call history
type CallHistoryPage struct {
	Calls []*CallHistoryEntry `json:"calls"`
	Total int64               `json:"total"`
	Page  int                 `json:"page"`
	Pages int                 `json:"pages"`
}
