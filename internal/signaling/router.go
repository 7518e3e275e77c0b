// Package signaling implements the server side call-signaling state machine.
//
// A Router owns the active-call table and consults a presence registry to
// resolve user ids to connections. It never touches a socket or a database:
// every input produces a Transition listing the frames to deliver and the side
// effects (ledger writes, pushes, presence mirroring) for the caller to run.
package signaling

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ringring-backend/internal/domain"
	"ringring-backend/internal/presence"
	"ringring-backend/pkg/constants"
	"ringring-backend/pkg/logger"
)

// Phase is the server's view of a call in flight
type Phase string

const (
	PhaseRinging     Phase = "ringing"
	PhaseNegotiating Phase = "negotiating"
	PhaseConnected   Phase = "connected"
)

// ActiveCall is the in-memory record of a call that has not ended
type ActiveCall struct {
	CallID     string
	CallerID   string
	ReceiverID string
	CallType   domain.CallType
	StartTime  time.Time
	LedgerID   uuid.UUID
	Phase      Phase
	Accepted   bool
}

// Other returns the participant that is not userID
func (c *ActiveCall) Other(userID string) string {
	if userID == c.CallerID {
		return c.ReceiverID
	}
	return c.CallerID
}

// Involves reports whether userID is a participant
func (c *ActiveCall) Involves(userID string) bool {
	return userID == c.CallerID || userID == c.ReceiverID
}

// Inbound is one frame received on a connection
type Inbound struct {
	ConnID string
	// AuthUserID is the identity the connection authenticated as, empty when
	// the transport is unauthenticated
	AuthUserID string
	Envelope   domain.Envelope
}

// Outbound is one frame to deliver. Broadcast frames go to every connection
// except Except.
type Outbound struct {
	ConnID    string
	Broadcast bool
	Except    string
	Envelope  domain.Envelope
}

// Transition is the result of feeding one event to the router
type Transition struct {
	Out     []Outbound
	Effects []Effect
}

func (t *Transition) send(connID string, env domain.Envelope) {
	t.Out = append(t.Out, Outbound{ConnID: connID, Envelope: env})
}

func (t *Transition) broadcast(except string, env domain.Envelope) {
	t.Out = append(t.Out, Outbound{Broadcast: true, Except: except, Envelope: env})
}

func (t *Transition) effect(e Effect) {
	t.Effects = append(t.Effects, e)
}

// Option configures a Router
type Option func(*Router)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// WithIDGenerator overrides ledger record id generation
func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(r *Router) { r.newID = newID }
}

// WithRingTimeout sets how long an unanswered call may ring
func WithRingTimeout(d time.Duration) Option {
	return func(r *Router) { r.ringTimeout = d }
}

// BlockList reports whether ownerID has blocked otherID. It is consulted on
// the router goroutine and must answer from memory.
type BlockList interface {
	Blocked(ownerID, otherID string) bool
}

// WithBlockList makes calls from a blocked caller look like an offline
// receiver
func WithBlockList(b BlockList) Option {
	return func(r *Router) { r.blocks = b }
}

type handlerFunc func(r *Router, in Inbound, senderID string) Transition

// Router is the signaling state machine. It is not safe for concurrent use:
// the owner must feed it from a single goroutine.
type Router struct {
	presence    *presence.Registry
	calls       map[string]*ActiveCall
	handlers    map[domain.MessageType]handlerFunc
	now         func() time.Time
	newID       func() uuid.UUID
	ringTimeout time.Duration
	lastStamp   int64
	blocks      BlockList
}

// NewRouter creates a router bound to registry
func NewRouter(registry *presence.Registry, opts ...Option) *Router {
	r := &Router{
		presence:    registry,
		calls:       make(map[string]*ActiveCall),
		now:         time.Now,
		newID:       uuid.New,
		ringTimeout: constants.RingTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.handlers = map[domain.MessageType]handlerFunc{
		domain.MsgUserJoin:        handleJoin,
		domain.MsgCallInitiate:    handleInitiate,
		domain.MsgCallAccept:      handleAccept,
		domain.MsgCallReject:      handleReject,
		domain.MsgCallOffer:       handleOffer,
		domain.MsgCallAnswer:      handleAnswer,
		domain.MsgCallICE:         handleICECandidate,
		domain.MsgCallEnd:         handleEnd,
		domain.MsgCallToggleAudio: handleToggle,
		domain.MsgCallToggleVideo: handleToggle,
	}
	return r
}

// Handle dispatches one inbound frame
func (r *Router) Handle(in Inbound) Transition {
	h, ok := r.handlers[in.Envelope.Type]
	if !ok {
		return replyError(in.ConnID, domain.SignalErrBadRequest,
			fmt.Sprintf("Unsupported message type %q", in.Envelope.Type), "")
	}

	senderID, joined := r.presence.UserForConnection(in.ConnID)
	if !joined && in.Envelope.Type != domain.MsgUserJoin {
		return replyError(in.ConnID, domain.SignalErrForbidden, "Join before signaling", "")
	}

	logger.Debug("Signaling message",
		zap.String("type", string(in.Envelope.Type)),
		zap.String("conn_id", in.ConnID),
		zap.String("user_id", senderID))

	return h(r, in, senderID)
}

// Malformed answers a frame that could not be decoded at all
func (r *Router) Malformed(connID, reason string) Transition {
	return replyError(connID, domain.SignalErrBadRequest, reason, "")
}

// Disconnect handles a closed connection: presence is dropped and every call
// the user was part of ends as cancelled.
func (r *Router) Disconnect(connID string) Transition {
	var t Transition

	userID, ok := r.presence.Remove(connID)
	if !ok {
		return t
	}

	t.broadcast(connID, domain.MustEnvelope(domain.MsgUserOffline, domain.UserOfflinePayload{UserID: userID}))
	t.effect(PresenceEffect{UserID: userID, Online: false})

	now := r.now()
	for _, call := range r.callsFor(userID) {
		other := call.Other(userID)
		if entry, ok := r.presence.Lookup(other); ok {
			t.send(entry.ConnectionID, domain.MustEnvelope(domain.MsgCallEnded, domain.EndedPayload{
				CallID: call.CallID,
				Reason: domain.ReasonDisconnected,
			}))
		}
		t.effect(r.closeEffect(call, domain.CallStatusCancelled, now))
		delete(r.calls, call.CallID)
	}

	return t
}

// Sweep ends calls that have rung longer than the ring timeout without being
// accepted. The caller hears "no answer"; the receiver stops ringing.
func (r *Router) Sweep(now time.Time) Transition {
	var t Transition

	ids := make([]string, 0)
	for id, call := range r.calls {
		if call.Phase == PhaseRinging && !call.Accepted && now.Sub(call.StartTime) >= r.ringTimeout {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		call := r.calls[id]
		if entry, ok := r.presence.Lookup(call.CallerID); ok {
			t.send(entry.ConnectionID, domain.MustEnvelope(domain.MsgCallRejected, domain.RejectedPayload{
				CallID: call.CallID,
				Reason: domain.ReasonNoAnswer,
			}))
		}
		if entry, ok := r.presence.Lookup(call.ReceiverID); ok {
			t.send(entry.ConnectionID, domain.MustEnvelope(domain.MsgCallEnded, domain.EndedPayload{
				CallID: call.CallID,
				Reason: domain.ReasonTimeout,
			}))
		}
		t.effect(r.closeEffect(call, domain.CallStatusMissed, now))
		delete(r.calls, id)
	}

	return t
}

// ActiveCall returns a copy of the active record for callID
func (r *Router) ActiveCall(callID string) (ActiveCall, bool) {
	call, ok := r.calls[callID]
	if !ok {
		return ActiveCall{}, false
	}
	return *call, true
}

// ActiveCalls returns the number of calls in flight
func (r *Router) ActiveCalls() int {
	return len(r.calls)
}

// route is the single forwarding primitive: resolve target by user id and
// deliver, or tell the sender the target is unreachable.
func (r *Router) route(t *Transition, fromConn, targetUserID string, env domain.Envelope, callID string) bool {
	entry, ok := r.presence.Lookup(targetUserID)
	if !ok {
		t.send(fromConn, errorEnvelope(domain.SignalErrOffline, "User is offline", callID))
		return false
	}
	t.send(entry.ConnectionID, env)
	return true
}

func (r *Router) blocked(receiverID, callerID string) bool {
	return r.blocks != nil && r.blocks.Blocked(receiverID, callerID)
}

func (r *Router) callsFor(userID string) []*ActiveCall {
	var calls []*ActiveCall
	for _, call := range r.calls {
		if call.Involves(userID) {
			calls = append(calls, call)
		}
	}
	sort.Slice(calls, func(i, j int) bool { return calls[i].CallID < calls[j].CallID })
	return calls
}

// nextCallID composes caller, receiver and a strictly increasing millisecond
// stamp, so ids never collide within one router.
func (r *Router) nextCallID(callerID, receiverID string, now time.Time) string {
	stamp := now.UnixMilli()
	if stamp <= r.lastStamp {
		stamp = r.lastStamp + 1
	}
	r.lastStamp = stamp
	return fmt.Sprintf("%s-%s-%d", callerID, receiverID, stamp)
}

func (r *Router) closeEffect(call *ActiveCall, status domain.CallStatus, endTime time.Time) CloseCallEffect {
	duration := domain.DurationSeconds(call.StartTime, endTime)
	if status == domain.CallStatusRejected {
		duration = 0
	}
	return CloseCallEffect{
		RecordID:   call.LedgerID,
		CallID:     call.CallID,
		CallerID:   call.CallerID,
		ReceiverID: call.ReceiverID,
		CallType:   call.CallType,
		Status:     status,
		EndTime:    endTime,
		Duration:   duration,
	}
}

func errorEnvelope(code, message, callID string) domain.Envelope {
	return domain.MustEnvelope(domain.MsgCallError, domain.ErrorPayload{
		Message: message,
		Code:    code,
		CallID:  callID,
	})
}

func replyError(connID, code, message, callID string) Transition {
	var t Transition
	t.send(connID, errorEnvelope(code, message, callID))
	return t
}
