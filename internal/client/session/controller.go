// Package session is the client-side call controller. It turns user actions
// and inbound signaling into call state, media acquisition and a peer
// session, and publishes every state change to subscribers.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"ringring-backend/internal/client/media"
	"ringring-backend/internal/client/peer"
	"ringring-backend/internal/domain"
	"ringring-backend/pkg/logger"
)

var (
	ErrCallInProgress = errors.New("a call is already in progress")
	ErrNoIncomingCall = errors.New("no incoming call")
	ErrNoActiveCall   = errors.New("no active call")
	ErrNoTrack        = errors.New("call has no such track")
	ErrCallCancelled  = errors.New("call ended during setup")
)

// anyGeneration makes teardown unconditional
const anyGeneration = ^uint64(0)

// Signaler sends envelopes to the signaling server
type Signaler interface {
	Send(env domain.Envelope) error
}

// Peer is the negotiation surface the controller drives. *peer.Session
// implements it.
type Peer interface {
	AttachLocal(stream *media.Stream) error
	Offer() error
	HandleOffer(raw json.RawMessage) error
	HandleAnswer(raw json.RawMessage) error
	AddRemoteCandidate(raw json.RawMessage)
	SetTrackEnabled(kind media.Kind, enabled bool)
	Close()
}

// PeerFactory creates the peer session for a call
type PeerFactory func(cfg peer.Config) (Peer, error)

// PreferenceStore supplies capture preferences
type PreferenceStore interface {
	Load(ctx context.Context) (media.Preferences, error)
}

// Option configures a Controller
type Option func(*Controller)

func WithPreferences(store PreferenceStore) Option {
	return func(c *Controller) { c.prefs = store }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller owns the single call a client can be in
type Controller struct {
	sig     Signaler
	source  media.Source
	newPeer PeerFactory
	prefs   PreferenceStore
	now     func() time.Time

	mu        sync.Mutex
	state     CallState
	incoming  *IncomingCall
	lastErr   *domain.ErrorPayload
	busy      bool
	gen       uint64
	selfID    string
	local     *media.Stream
	peer      Peer
	connected bool
	buffered  []json.RawMessage

	subs    map[int]chan Snapshot
	nextSub int
}

// NewController creates an idle controller
func NewController(sig Signaler, source media.Source, newPeer PeerFactory, opts ...Option) *Controller {
	c := &Controller{
		sig:     sig,
		source:  source,
		newPeer: newPeer,
		now:     time.Now,
		subs:    make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe returns a channel that receives the current snapshot and then
// every change. A slow reader skips intermediate snapshots but always ends
// up with the latest one.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan Snapshot, 1)
	ch <- c.snapshotLocked()
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// State returns the current call state
func (c *Controller) State() CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Incoming returns the pending incoming call, if any
func (c *Controller) Incoming() *IncomingCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.incoming == nil {
		return nil
	}
	in := *c.incoming
	return &in
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{Call: c.state, Error: c.lastErr}
	if c.incoming != nil {
		in := *c.incoming
		snap.Incoming = &in
	}
	return snap
}

func (c *Controller) publishLocked() {
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func (c *Controller) send(t domain.MessageType, payload any) error {
	env, err := domain.NewEnvelope(t, payload)
	if err != nil {
		return err
	}
	if err := c.sig.Send(env); err != nil {
		logger.Warn("Failed to send signaling message", zap.String("type", string(t)), zap.Error(err))
		return fmt.Errorf("failed to send %s: %w", t, err)
	}
	return nil
}

func (c *Controller) acquire(ctx context.Context, callType domain.CallType) (*media.Stream, error) {
	prefs := media.DefaultPreferences()
	if c.prefs != nil {
		loaded, err := c.prefs.Load(ctx)
		if err != nil {
			logger.Warn("Failed to load media preferences, using defaults", zap.Error(err))
		} else {
			prefs = loaded
		}
	}
	return media.Acquire(ctx, c.source, media.Constraints{
		Audio: true,
		Video: callType == domain.CallTypeVideo,
		Prefs: prefs,
	})
}

// InitiateCall acquires media and rings receiver
func (c *Controller) InitiateCall(ctx context.Context, receiver, self Party, callType domain.CallType) error {
	if !callType.Valid() {
		return fmt.Errorf("invalid call type %q", callType)
	}

	c.mu.Lock()
	if c.state.IsInCall || c.busy || c.incoming != nil {
		c.mu.Unlock()
		return ErrCallInProgress
	}
	c.busy = true
	c.lastErr = nil
	gen := c.gen
	c.mu.Unlock()

	stream, err := c.acquire(ctx, callType)

	c.mu.Lock()
	c.busy = false
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if gen != c.gen {
		c.mu.Unlock()
		stream.Stop()
		return ErrCallCancelled
	}
	video := callType == domain.CallTypeVideo
	c.selfID = self.ID
	c.local = stream
	c.connected = false
	c.buffered = nil
	c.state = CallState{
		IsInCall:           true,
		CallType:           callType,
		Caller:             &self,
		Receiver:           &receiver,
		IsVideoEnabled:     video,
		RemoteAudioEnabled: true,
		RemoteVideoEnabled: video,
	}
	c.publishLocked()
	c.mu.Unlock()

	err = c.send(domain.MsgCallInitiate, domain.InitiatePayload{
		CallerID:     self.ID,
		CallerName:   self.Name,
		CallerAvatar: self.Avatar,
		ReceiverID:   receiver.ID,
		CallType:     callType,
	})
	if err != nil {
		c.teardown(false, gen)
		return err
	}
	logger.Info("Call initiated", zap.String("receiver_id", receiver.ID), zap.String("call_type", string(callType)))
	return nil
}

// AcceptCall answers the pending incoming call. When media cannot be
// acquired the call is rejected with "media unavailable".
func (c *Controller) AcceptCall(ctx context.Context, self Party) error {
	c.mu.Lock()
	if c.incoming == nil {
		c.mu.Unlock()
		return ErrNoIncomingCall
	}
	if c.state.IsInCall || c.busy {
		c.mu.Unlock()
		return ErrCallInProgress
	}
	offer := *c.incoming
	c.busy = true
	c.lastErr = nil
	gen := c.gen
	c.mu.Unlock()

	stream, err := c.acquire(ctx, offer.CallType)

	c.mu.Lock()
	c.busy = false
	if gen != c.gen {
		// a teardown raced the accept; the offer must still be answered
		orphaned := c.incoming != nil && c.incoming.CallID == offer.CallID
		if orphaned {
			c.incoming = nil
			c.publishLocked()
		}
		c.mu.Unlock()
		if stream != nil {
			stream.Stop()
		}
		if orphaned {
			c.declineOffer(offer, domain.ReasonDeclined)
		}
		return ErrCallCancelled
	}
	if err != nil {
		c.incoming = nil
		c.publishLocked()
		c.mu.Unlock()
		_ = c.send(domain.MsgCallReject, domain.RejectPayload{
			CallID:   offer.CallID,
			CallerID: offer.CallerID,
			Reason:   domain.ReasonMediaUnavailable,
		})
		return err
	}

	now := c.now()
	video := offer.CallType == domain.CallTypeVideo
	c.selfID = self.ID
	c.local = stream
	c.connected = false
	c.buffered = nil
	c.incoming = nil
	c.state = CallState{
		CallID:     offer.CallID,
		IsInCall:   true,
		IsIncoming: true,
		CallType:   offer.CallType,
		Caller: &Party{
			ID:     offer.CallerID,
			Name:   offer.CallerName,
			Avatar: offer.CallerAvatar,
		},
		Receiver:           &self,
		StartTime:          &now,
		IsVideoEnabled:     video,
		RemoteAudioEnabled: true,
		RemoteVideoEnabled: video,
	}
	c.publishLocked()
	c.mu.Unlock()

	err = c.send(domain.MsgCallAccept, domain.AcceptPayload{
		CallID:   offer.CallID,
		CallerID: offer.CallerID,
	})
	if err != nil {
		c.teardown(false, gen)
		return err
	}
	return nil
}

// RejectCall declines the pending incoming call. It is a no-op when nothing
// is ringing.
func (c *Controller) RejectCall(reason string) error {
	c.mu.Lock()
	if c.incoming == nil {
		c.mu.Unlock()
		return nil
	}
	if reason == "" {
		reason = domain.ReasonDeclined
	}
	offer := *c.incoming
	c.incoming = nil
	if c.busy {
		c.gen++
	}
	c.publishLocked()
	c.mu.Unlock()

	return c.declineOffer(offer, reason)
}

func (c *Controller) declineOffer(offer IncomingCall, reason string) error {
	return c.send(domain.MsgCallReject, domain.RejectPayload{
		CallID:   offer.CallID,
		CallerID: offer.CallerID,
		Reason:   reason,
	})
}

// ToggleMute flips the microphone
func (c *Controller) ToggleMute() error {
	return c.toggle(media.KindAudio, domain.MsgCallToggleAudio)
}

// ToggleVideo flips the camera
func (c *Controller) ToggleVideo() error {
	return c.toggle(media.KindVideo, domain.MsgCallToggleVideo)
}

func (c *Controller) toggle(kind media.Kind, msg domain.MessageType) error {
	c.mu.Lock()
	if !c.state.IsInCall || c.local == nil {
		c.mu.Unlock()
		return ErrNoActiveCall
	}
	track := c.local.Track(kind)
	if track == nil {
		c.mu.Unlock()
		return ErrNoTrack
	}
	enabled := !track.Enabled()
	track.SetEnabled(enabled)

	next := c.state
	if kind == media.KindAudio {
		next.IsMuted = !enabled
	} else {
		next.IsVideoEnabled = enabled
	}
	c.state = next
	p := c.peer
	remote := next.Remote()
	c.publishLocked()
	c.mu.Unlock()

	if p != nil {
		p.SetTrackEnabled(kind, enabled)
	}
	if remote == nil {
		return nil
	}
	return c.send(msg, domain.TogglePayload{TargetUserID: remote.ID, Enabled: enabled})
}

// EndCall hangs up. It tells the other party when the call id is known,
// releases all media and returns to idle. Safe from any state.
// A call that is still ringing here, including one whose accept is
// acquiring media, is declined.
func (c *Controller) EndCall() {
	c.mu.Lock()
	var ringing *IncomingCall
	if c.incoming != nil && !c.state.IsInCall {
		offer := *c.incoming
		ringing = &offer
		c.incoming = nil
		c.publishLocked()
	}
	c.mu.Unlock()

	c.teardown(true, anyGeneration)
	if ringing != nil {
		_ = c.declineOffer(*ringing, domain.ReasonDeclined)
	}
}

// teardown resets to idle. gen limits it to the call it was issued for.
func (c *Controller) teardown(sendEnd bool, gen uint64) {
	c.mu.Lock()
	if gen != anyGeneration && gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.gen++
	prev := c.state
	p := c.peer
	local := c.local
	selfID := c.selfID
	c.peer = nil
	c.local = nil
	c.buffered = nil
	c.connected = false
	c.state = Idle()
	if prev.IsInCall {
		c.publishLocked()
	}
	c.mu.Unlock()

	if sendEnd && prev.CallID != "" {
		if remote := prev.Remote(); remote != nil {
			_ = c.send(domain.MsgCallEnd, domain.EndPayload{
				CallID:       prev.CallID,
				UserID:       selfID,
				TargetUserID: remote.ID,
			})
		}
	}
	if p != nil {
		p.Close()
	}
	if local != nil {
		local.Stop()
	}
	if prev.IsInCall {
		logger.Info("Call ended", zap.String("call_id", prev.CallID))
	}
}

// Close ends any call and closes all subscriptions
func (c *Controller) Close() {
	c.EndCall()

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}

// startPeer creates the peer session for the current call and hands over
// candidates buffered before it existed
func (c *Controller) startPeer(initiator bool) (Peer, uint64, error) {
	c.mu.Lock()
	if !c.state.IsInCall {
		c.mu.Unlock()
		return nil, 0, ErrNoActiveCall
	}
	gen := c.gen
	if c.peer != nil {
		p := c.peer
		c.mu.Unlock()
		return p, gen, nil
	}
	st := c.state
	local := c.local
	buffered := c.buffered
	c.buffered = nil
	c.mu.Unlock()

	remote := st.Remote()
	p, err := c.newPeer(peer.Config{
		CallID:       st.CallID,
		RemoteUserID: remote.ID,
		Initiator:    initiator,
		Video:        st.CallType == domain.CallTypeVideo,
		Send:         c.sig.Send,
		OnConnected:  func() { c.onPeerConnected(gen) },
		OnFailed: func(reason string) {
			go c.onPeerFailed(gen, reason)
		},
	})
	if err != nil {
		return nil, gen, fmt.Errorf("failed to create peer session: %w", err)
	}
	if err := p.AttachLocal(local); err != nil {
		p.Close()
		return nil, gen, fmt.Errorf("failed to attach local media: %w", err)
	}
	for _, raw := range buffered {
		p.AddRemoteCandidate(raw)
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		p.Close()
		return nil, gen, ErrCallCancelled
	}
	c.peer = p
	late := c.buffered
	c.buffered = nil
	c.mu.Unlock()

	for _, raw := range late {
		p.AddRemoteCandidate(raw)
	}
	return p, gen, nil
}

func (c *Controller) onPeerConnected(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.connected = true
	if c.state.StartTime == nil {
		next := c.state
		now := c.now()
		next.StartTime = &now
		c.state = next
	}
	c.publishLocked()
}

func (c *Controller) onPeerFailed(gen uint64, reason string) {
	logger.Warn("Ending call after connection failure", zap.String("reason", reason))
	c.teardown(true, gen)
}
