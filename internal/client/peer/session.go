package peer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"ringring-backend/internal/client/media"
	"ringring-backend/internal/domain"
	"ringring-backend/pkg/constants"
	"ringring-backend/pkg/logger"
)

const (
	DefaultDisconnectGrace = constants.ICEDisconnectedGrace
	DefaultRestartWait     = 2 * constants.ICEDisconnectedGrace
	DefaultQualityInterval = constants.StatsSampleInterval
)

// ErrClosed is returned by operations on a closed session
var ErrClosed = errors.New("peer session closed")

// Config describes one side of a call
type Config struct {
	CallID       string
	RemoteUserID string
	// Initiator is the caller. Only the initiator sends offers, including
	// the ICE restart offer.
	Initiator bool
	Video     bool

	Send          func(domain.Envelope) error
	OnConnected   func()
	OnFailed      func(reason string)
	OnRemoteTrack func(RemoteTrack)

	DisconnectGrace time.Duration
	RestartWait     time.Duration
	QualityInterval time.Duration
}

// Session negotiates one call over a Transport. Remote candidates that
// arrive before the remote description are queued and applied in order.
type Session struct {
	tr  Transport
	cfg Config
	log *zap.Logger

	mu        sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	iceState  webrtc.ICEConnectionState
	restarted bool
	inFailure bool
	timer     *time.Timer
	connected bool
	failed    bool
	closed    bool
	quality   *QualityController
	stop      chan struct{}
}

// New wires a Session to tr
func New(tr Transport, cfg Config) *Session {
	if cfg.DisconnectGrace <= 0 {
		cfg.DisconnectGrace = DefaultDisconnectGrace
	}
	if cfg.RestartWait <= 0 {
		cfg.RestartWait = DefaultRestartWait
	}
	if cfg.QualityInterval <= 0 {
		cfg.QualityInterval = DefaultQualityInterval
	}

	s := &Session{
		tr:      tr,
		cfg:     cfg,
		log:     logger.With(zap.String("call_id", cfg.CallID), zap.String("remote_user_id", cfg.RemoteUserID)),
		quality: NewQualityController(),
		stop:    make(chan struct{}),
	}

	tr.OnICECandidate(s.sendCandidate)
	tr.OnICEConnectionStateChange(s.onICEState)
	tr.OnConnectionStateChange(s.onConnectionState)
	tr.OnTrack(func(rt RemoteTrack) {
		if cfg.OnRemoteTrack != nil {
			cfg.OnRemoteTrack(rt)
		}
	})
	return s
}

// AttachLocal adds the stream's audio track, and its video track on video
// calls. Kinds without a local track are negotiated receive-only.
func (s *Session) AttachLocal(stream *media.Stream) error {
	kinds := []media.Kind{media.KindAudio}
	if s.cfg.Video {
		kinds = append(kinds, media.KindVideo)
	}

	for _, kind := range kinds {
		var track media.Track
		if stream != nil {
			track = stream.Track(kind)
		}
		var err error
		if track != nil {
			err = s.tr.AddTrack(track)
			if err == nil && !track.Enabled() {
				err = s.tr.SetTrackEnabled(kind, false)
			}
		} else {
			err = s.tr.AddReceiveOnly(kind)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Offer creates and sends the initial offer
func (s *Session) Offer() error {
	return s.sendOffer(false)
}

func (s *Session) sendOffer(iceRestart bool) error {
	if s.isClosed() {
		return ErrClosed
	}

	offer, err := s.tr.CreateOffer(iceRestart)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	if err := s.tr.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set local offer: %w", err)
	}

	raw, err := json.Marshal(offer)
	if err != nil {
		return fmt.Errorf("failed to marshal offer: %w", err)
	}
	env, err := domain.NewEnvelope(domain.MsgCallOffer, domain.OfferPayload{
		CallID:     s.cfg.CallID,
		ReceiverID: s.cfg.RemoteUserID,
		Offer:      raw,
	})
	if err != nil {
		return err
	}
	s.log.Info("Sending offer", zap.Bool("ice_restart", iceRestart))
	return s.cfg.Send(env)
}

// HandleOffer applies a remote offer and answers it. Renegotiation offers
// reuse the same session.
func (s *Session) HandleOffer(raw json.RawMessage) error {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(raw, &offer); err != nil {
		return fmt.Errorf("invalid offer: %w", err)
	}
	if offer.Type != webrtc.SDPTypeOffer {
		return fmt.Errorf("expected offer, got %s", offer.Type)
	}
	if err := s.applyRemote(offer); err != nil {
		return err
	}

	answer, err := s.tr.CreateAnswer()
	if err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}
	if err := s.tr.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("failed to set local answer: %w", err)
	}

	answerRaw, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("failed to marshal answer: %w", err)
	}
	env, err := domain.NewEnvelope(domain.MsgCallAnswer, domain.AnswerPayload{
		CallID:   s.cfg.CallID,
		CallerID: s.cfg.RemoteUserID,
		Answer:   answerRaw,
	})
	if err != nil {
		return err
	}
	return s.cfg.Send(env)
}

// HandleAnswer applies the remote answer
func (s *Session) HandleAnswer(raw json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(raw, &answer); err != nil {
		return fmt.Errorf("invalid answer: %w", err)
	}
	if answer.Type != webrtc.SDPTypeAnswer {
		return fmt.Errorf("expected answer, got %s", answer.Type)
	}
	return s.applyRemote(answer)
}

// applyRemote sets the remote description and drains queued candidates
func (s *Session) applyRemote(desc webrtc.SessionDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := s.tr.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("failed to set remote %s: %w", desc.Type, err)
	}
	s.remoteSet = true

	pending := s.pending
	s.pending = nil
	for _, c := range pending {
		s.applyCandidateLocked(c)
	}
	return nil
}

// AddRemoteCandidate applies a candidate, or queues it until the remote
// description is set. Failures are logged and absorbed.
func (s *Session) AddRemoteCandidate(raw json.RawMessage) {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &candidate); err != nil {
		s.log.Warn("Dropping malformed ICE candidate", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if !s.remoteSet {
		s.pending = append(s.pending, candidate)
		return
	}
	s.applyCandidateLocked(candidate)
}

func (s *Session) applyCandidateLocked(c webrtc.ICECandidateInit) {
	if err := s.tr.AddICECandidate(c); err != nil {
		s.log.Warn("Failed to add ICE candidate", zap.Error(err))
	}
}

func (s *Session) sendCandidate(c webrtc.ICECandidateInit) {
	if s.isClosed() {
		return
	}
	raw, err := json.Marshal(c)
	if err != nil {
		s.log.Warn("Failed to marshal ICE candidate", zap.Error(err))
		return
	}
	env, err := domain.NewEnvelope(domain.MsgCallICE, domain.ICECandidatePayload{
		CallID:       s.cfg.CallID,
		TargetUserID: s.cfg.RemoteUserID,
		Candidate:    raw,
	})
	if err != nil {
		return
	}
	if err := s.cfg.Send(env); err != nil {
		s.log.Warn("Failed to send ICE candidate", zap.Error(err))
	}
}

// SetTrackEnabled forwards a local mute or camera toggle to the transport
func (s *Session) SetTrackEnabled(kind media.Kind, enabled bool) {
	if err := s.tr.SetTrackEnabled(kind, enabled); err != nil {
		s.log.Warn("Failed to toggle track", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (s *Session) onICEState(state webrtc.ICEConnectionState) {
	s.log.Debug("ICE state", zap.String("state", state.String()))

	s.mu.Lock()
	s.iceState = state
	switch state {
	case webrtc.ICEConnectionStateChecking:
		s.inFailure = false
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		s.inFailure = false
		s.stopTimerLocked()
	case webrtc.ICEConnectionStateDisconnected:
		s.armTimerLocked(s.cfg.DisconnectGrace, func() {
			s.mu.Lock()
			still := s.iceState == webrtc.ICEConnectionStateDisconnected
			s.mu.Unlock()
			if still {
				s.handleFailure("ice disconnected")
			}
		})
	}
	s.mu.Unlock()

	if state == webrtc.ICEConnectionStateFailed {
		s.handleFailure("ice failed")
	}
}

func (s *Session) onConnectionState(state webrtc.PeerConnectionState) {
	s.log.Debug("Connection state", zap.String("state", state.String()))

	switch state {
	case webrtc.PeerConnectionStateConnected:
		s.onConnected()
	case webrtc.PeerConnectionStateFailed:
		s.handleFailure("connection failed")
	case webrtc.PeerConnectionStateClosed:
		if !s.isClosed() {
			s.fail("connection closed")
		}
	}
}

func (s *Session) onConnected() {
	s.mu.Lock()
	first := !s.connected && !s.closed
	s.connected = true
	s.mu.Unlock()

	if !first {
		return
	}
	s.log.Info("Peer connected")
	if s.cfg.Video {
		go s.qualityLoop()
	}
	if s.cfg.OnConnected != nil {
		s.cfg.OnConnected()
	}
}

// handleFailure spends the single ICE restart, then ends the call. One
// failure episode can be reported by both the ICE and connection state.
func (s *Session) handleFailure(reason string) {
	s.mu.Lock()
	if s.closed || s.inFailure {
		s.mu.Unlock()
		return
	}
	s.inFailure = true
	if s.restarted {
		s.mu.Unlock()
		s.fail(reason)
		return
	}
	s.restarted = true
	initiator := s.cfg.Initiator
	if !initiator {
		s.armTimerLocked(s.cfg.RestartWait, func() {
			s.mu.Lock()
			state := s.iceState
			s.mu.Unlock()
			if state != webrtc.ICEConnectionStateConnected && state != webrtc.ICEConnectionStateCompleted {
				s.fail("ice restart timed out")
			}
		})
	}
	s.mu.Unlock()

	if !initiator {
		s.log.Warn("Connection failed, waiting for restart offer", zap.String("reason", reason))
		return
	}
	s.log.Warn("Connection failed, restarting ICE", zap.String("reason", reason))
	if err := s.sendOffer(true); err != nil {
		s.log.Error("ICE restart failed", zap.Error(err))
		s.fail("ice restart failed")
	}
}

// fail reports an unrecoverable failure once
func (s *Session) fail(reason string) {
	s.mu.Lock()
	if s.closed || s.failed {
		s.mu.Unlock()
		return
	}
	s.failed = true
	s.stopTimerLocked()
	s.mu.Unlock()

	s.log.Warn("Peer session failed", zap.String("reason", reason))
	if s.cfg.OnFailed != nil {
		s.cfg.OnFailed(reason)
	}
}

func (s *Session) qualityLoop() {
	ticker := time.NewTicker(s.cfg.QualityInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sampleQuality()
		}
	}
}

func (s *Session) sampleQuality() {
	lost, received, ok := s.tr.InboundVideoLoss()
	if !ok {
		return
	}
	s.mu.Lock()
	bitrate, changed := s.quality.Observe(lost, received)
	s.mu.Unlock()
	if !changed {
		return
	}
	s.log.Info("Video loss, lowering bitrate", zap.Int("bitrate", bitrate))
	switch err := s.tr.CapLocalBitrate(bitrate); {
	case errors.Is(err, media.ErrNoEncoderControl):
		s.log.Debug("Local encoder keeps its bitrate", zap.Error(err))
	case err != nil:
		s.log.Warn("Failed to lower local bitrate", zap.Error(err))
	}
	if err := s.tr.CapRemoteBitrate(bitrate); err != nil {
		s.log.Warn("Failed to send bitrate cap", zap.Error(err))
	}
}

func (s *Session) armTimerLocked(d time.Duration, fn func()) {
	s.stopTimerLocked()
	s.timer = time.AfterFunc(d, fn)
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close tears the connection down. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.pending = nil
	s.stopTimerLocked()
	close(s.stop)
	s.mu.Unlock()

	if err := s.tr.Close(); err != nil {
		s.log.Warn("Failed to close peer connection", zap.Error(err))
	}
}
