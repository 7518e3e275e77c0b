package domain

import (
	"encoding/json"
	"fmt"
)

// MessageType names a signaling envelope
type MessageType string

// Client to server
const (
	MsgUserJoin        MessageType = "user:join"
	MsgCallInitiate    MessageType = "call:initiate"
	MsgCallAccept      MessageType = "call:accept"
	MsgCallReject      MessageType = "call:reject"
	MsgCallEnd         MessageType = "call:end"
	MsgCallOffer       MessageType = "call:offer"
	MsgCallAnswer      MessageType = "call:answer"
	MsgCallICE         MessageType = "call:ice-candidate"
	MsgCallToggleAudio MessageType = "call:toggle-audio"
	MsgCallToggleVideo MessageType = "call:toggle-video"
)

// Server to client. Offer, answer, candidate and toggles reuse the
// client-to-server names.
const (
	MsgUsersOnline   MessageType = "users:online"
	MsgUserOnline    MessageType = "user:online"
	MsgUserOffline   MessageType = "user:offline"
	MsgCallInitiated MessageType = "call:initiated"
	MsgCallIncoming  MessageType = "call:incoming"
	MsgCallAccepted  MessageType = "call:accepted"
	MsgCallRejected  MessageType = "call:rejected"
	MsgCallEnded     MessageType = "call:ended"
	MsgCallError     MessageType = "call:error"
)

// Envelope is one signaling frame on the wire
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an envelope of the given type
func NewEnvelope(t MessageType, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: t}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}
	return Envelope{Type: t, Data: data}, nil
}

// MustEnvelope is NewEnvelope for payloads that always marshal
func MustEnvelope(t MessageType, payload any) Envelope {
	env, err := NewEnvelope(t, payload)
	if err != nil {
		panic(err)
	}
	return env
}

// Decode unmarshals the envelope data into v
func (e Envelope) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%s: invalid payload: %w", e.Type, err)
	}
	return nil
}

// Error codes carried by call:error
const (
	SignalErrOffline    = "offline"
	SignalErrNotFound   = "not_found"
	SignalErrForbidden  = "forbidden"
	SignalErrBadRequest = "bad_request"
	SignalErrInternal   = "internal"
)

// Reasons carried by call:ended and call:rejected
const (
	ReasonEnded            = "ended"
	ReasonDisconnected     = "disconnected"
	ReasonTimeout          = "timeout"
	ReasonNoAnswer         = "no answer"
	ReasonBusy             = "busy"
	ReasonDeclined         = "Call declined"
	ReasonMediaUnavailable = "media unavailable"
)

type JoinPayload struct {
	UserID string  `json:"userId"`
	Name   string  `json:"name"`
	Avatar *string `json:"avatar,omitempty"`
}

// OnlineUser is one entry of users:online and the payload of user:online
type OnlineUser struct {
	UserID string  `json:"userId"`
	Name   string  `json:"name"`
	Avatar *string `json:"avatar,omitempty"`
}

type UserOfflinePayload struct {
	UserID string `json:"userId"`
}

type InitiatePayload struct {
	CallerID     string   `json:"callerId"`
	CallerName   string   `json:"callerName"`
	CallerAvatar *string  `json:"callerAvatar,omitempty"`
	ReceiverID   string   `json:"receiverId"`
	CallType     CallType `json:"callType"`
}

type InitiatedPayload struct {
	CallID     string `json:"callId"`
	ReceiverID string `json:"receiverId"`
}

type IncomingPayload struct {
	CallID       string   `json:"callId"`
	CallerID     string   `json:"callerId"`
	CallerName   string   `json:"callerName"`
	CallerAvatar *string  `json:"callerAvatar,omitempty"`
	CallType     CallType `json:"callType"`
}

type AcceptPayload struct {
	CallID   string `json:"callId"`
	CallerID string `json:"callerId"`
}

type AcceptedPayload struct {
	CallID string `json:"callId"`
}

type RejectPayload struct {
	CallID   string `json:"callId"`
	CallerID string `json:"callerId"`
	Reason   string `json:"reason,omitempty"`
}

type RejectedPayload struct {
	CallID string `json:"callId"`
	Reason string `json:"reason,omitempty"`
}

// OfferPayload is sent by the offering side. Server forwards carry
// FromUserID instead of ReceiverID.
type OfferPayload struct {
	CallID     string          `json:"callId"`
	ReceiverID string          `json:"receiverId,omitempty"`
	FromUserID string          `json:"fromUserId,omitempty"`
	Offer      json.RawMessage `json:"offer"`
}

type AnswerPayload struct {
	CallID     string          `json:"callId"`
	CallerID   string          `json:"callerId,omitempty"`
	FromUserID string          `json:"fromUserId,omitempty"`
	Answer     json.RawMessage `json:"answer"`
}

type ICECandidatePayload struct {
	CallID       string          `json:"callId,omitempty"`
	TargetUserID string          `json:"targetUserId,omitempty"`
	FromUserID   string          `json:"fromUserId,omitempty"`
	Candidate    json.RawMessage `json:"candidate"`
}

type EndPayload struct {
	CallID       string `json:"callId"`
	UserID       string `json:"userId"`
	TargetUserID string `json:"targetUserId"`
}

type EndedPayload struct {
	CallID string `json:"callId"`
	Reason string `json:"reason,omitempty"`
}

type TogglePayload struct {
	TargetUserID string `json:"targetUserId,omitempty"`
	FromUserID   string `json:"fromUserId,omitempty"`
	Enabled      bool   `json:"enabled"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	CallID  string `json:"callId,omitempty"`
}
