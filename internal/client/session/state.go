package session

import (
	"time"

	"ringring-backend/internal/domain"
)

// Party is one side of a call
type Party struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Avatar *string `json:"avatar,omitempty"`
}

// CallState is the client's view of the current call. It is replaced as a
// whole on every change; holders of a copy never see it mutate.
type CallState struct {
	CallID         string          `json:"callId,omitempty"`
	IsInCall       bool            `json:"isInCall"`
	IsIncoming     bool            `json:"isIncoming"`
	CallType       domain.CallType `json:"callType,omitempty"`
	Caller         *Party          `json:"caller,omitempty"`
	Receiver       *Party          `json:"receiver,omitempty"`
	StartTime      *time.Time      `json:"startTime,omitempty"`
	IsMuted        bool            `json:"isMuted"`
	IsVideoEnabled bool            `json:"isVideoEnabled"`

	RemoteAudioEnabled bool `json:"remoteAudioEnabled"`
	RemoteVideoEnabled bool `json:"remoteVideoEnabled"`
}

// Idle is the state with no call
func Idle() CallState {
	return CallState{}
}

// Remote returns the other party of the call
func (s CallState) Remote() *Party {
	if s.IsIncoming {
		return s.Caller
	}
	return s.Receiver
}

// IncomingCall is a ringing call waiting for accept or reject
type IncomingCall struct {
	CallID       string          `json:"callId"`
	CallerID     string          `json:"callerId"`
	CallerName   string          `json:"callerName"`
	CallerAvatar *string         `json:"callerAvatar,omitempty"`
	CallType     domain.CallType `json:"callType"`
}

// Snapshot is what subscribers receive on every change
type Snapshot struct {
	Call     CallState            `json:"call"`
	Incoming *IncomingCall        `json:"incoming,omitempty"`
	Error    *domain.ErrorPayload `json:"error,omitempty"`
}
