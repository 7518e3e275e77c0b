package session

import (
	"go.uber.org/zap"

	"ringring-backend/internal/domain"
	"ringring-backend/pkg/logger"
)

// HandleMessage applies one inbound signaling envelope. Envelopes must be
// delivered in arrival order from a single goroutine.
func (c *Controller) HandleMessage(env domain.Envelope) {
	var err error
	switch env.Type {
	case domain.MsgCallIncoming:
		var p domain.IncomingPayload
		if err = env.Decode(&p); err == nil {
			c.handleIncoming(p)
		}
	case domain.MsgCallInitiated:
		var p domain.InitiatedPayload
		if err = env.Decode(&p); err == nil {
			c.handleInitiated(p)
		}
	case domain.MsgCallAccepted:
		var p domain.AcceptedPayload
		if err = env.Decode(&p); err == nil {
			c.handleAccepted(p)
		}
	case domain.MsgCallOffer:
		var p domain.OfferPayload
		if err = env.Decode(&p); err == nil {
			c.handleOffer(p)
		}
	case domain.MsgCallAnswer:
		var p domain.AnswerPayload
		if err = env.Decode(&p); err == nil {
			c.handleAnswer(p)
		}
	case domain.MsgCallICE:
		var p domain.ICECandidatePayload
		if err = env.Decode(&p); err == nil {
			c.handleCandidate(p)
		}
	case domain.MsgCallRejected:
		var p domain.RejectedPayload
		if err = env.Decode(&p); err == nil {
			c.handleRemoteEnd(p.CallID, p.Reason)
		}
	case domain.MsgCallEnded:
		var p domain.EndedPayload
		if err = env.Decode(&p); err == nil {
			c.handleRemoteEnd(p.CallID, p.Reason)
		}
	case domain.MsgCallToggleAudio, domain.MsgCallToggleVideo:
		var p domain.TogglePayload
		if err = env.Decode(&p); err == nil {
			c.handleToggle(env.Type, p)
		}
	case domain.MsgCallError:
		var p domain.ErrorPayload
		if err = env.Decode(&p); err == nil {
			c.handleError(p)
		}
	case domain.MsgUsersOnline, domain.MsgUserOnline, domain.MsgUserOffline:
		// presence is consumed by the caller of HandleMessage
	default:
		logger.Debug("Ignoring signaling message", zap.String("type", string(env.Type)))
	}
	if err != nil {
		logger.Warn("Malformed signaling message", zap.String("type", string(env.Type)), zap.Error(err))
	}
}

// handleIncoming keeps the first ringing call; anything else that rings
// while this client is busy is declined with "busy".
func (c *Controller) handleIncoming(p domain.IncomingPayload) {
	c.mu.Lock()
	if c.incoming != nil && c.incoming.CallID == p.CallID {
		c.mu.Unlock()
		return
	}
	if !c.state.IsInCall && !c.busy && c.incoming == nil {
		c.incoming = &IncomingCall{
			CallID:       p.CallID,
			CallerID:     p.CallerID,
			CallerName:   p.CallerName,
			CallerAvatar: p.CallerAvatar,
			CallType:     p.CallType,
		}
		c.publishLocked()
		c.mu.Unlock()
		logger.Info("Incoming call", zap.String("call_id", p.CallID), zap.String("caller_id", p.CallerID))
		return
	}
	c.mu.Unlock()

	logger.Info("Declining call while busy", zap.String("call_id", p.CallID), zap.String("caller_id", p.CallerID))
	_ = c.send(domain.MsgCallReject, domain.RejectPayload{
		CallID:   p.CallID,
		CallerID: p.CallerID,
		Reason:   domain.ReasonBusy,
	})
}

// handleInitiated records the server-assigned call id. A call the user
// already hung up on is ended right away.
func (c *Controller) handleInitiated(p domain.InitiatedPayload) {
	c.mu.Lock()
	st := c.state
	if st.IsInCall && !st.IsIncoming && st.CallID == "" && st.Receiver != nil && st.Receiver.ID == p.ReceiverID {
		next := st
		next.CallID = p.CallID
		c.state = next
		c.publishLocked()
		c.mu.Unlock()
		return
	}
	selfID := c.selfID
	c.mu.Unlock()

	_ = c.send(domain.MsgCallEnd, domain.EndPayload{
		CallID:       p.CallID,
		UserID:       selfID,
		TargetUserID: p.ReceiverID,
	})
}

func (c *Controller) handleAccepted(p domain.AcceptedPayload) {
	c.mu.Lock()
	st := c.state
	if !st.IsInCall || st.IsIncoming || st.CallID != p.CallID {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	pr, gen, err := c.startPeer(true)
	if err != nil {
		logger.Error("Failed to start peer session", zap.String("call_id", p.CallID), zap.Error(err))
		c.teardown(true, gen)
		return
	}
	if err := pr.Offer(); err != nil {
		logger.Error("Failed to send offer", zap.String("call_id", p.CallID), zap.Error(err))
		c.teardown(true, gen)
	}
}

func (c *Controller) handleOffer(p domain.OfferPayload) {
	c.mu.Lock()
	st := c.state
	existing := c.peer
	gen := c.gen
	c.mu.Unlock()

	if !st.IsInCall || st.CallID != p.CallID {
		return
	}

	pr := existing
	if pr == nil {
		if !st.IsIncoming {
			return
		}
		var err error
		pr, gen, err = c.startPeer(false)
		if err != nil {
			logger.Error("Failed to start peer session", zap.String("call_id", p.CallID), zap.Error(err))
			c.teardown(true, gen)
			return
		}
	}
	if err := pr.HandleOffer(p.Offer); err != nil {
		logger.Error("Failed to answer offer", zap.String("call_id", p.CallID), zap.Error(err))
		c.teardown(true, gen)
	}
}

func (c *Controller) handleAnswer(p domain.AnswerPayload) {
	c.mu.Lock()
	st := c.state
	pr := c.peer
	gen := c.gen
	c.mu.Unlock()

	if !st.IsInCall || st.CallID != p.CallID || pr == nil {
		return
	}
	if err := pr.HandleAnswer(p.Answer); err != nil {
		logger.Error("Failed to apply answer", zap.String("call_id", p.CallID), zap.Error(err))
		c.teardown(true, gen)
	}
}

func (c *Controller) handleCandidate(p domain.ICECandidatePayload) {
	c.mu.Lock()
	st := c.state
	if !st.IsInCall || (p.CallID != "" && st.CallID != "" && p.CallID != st.CallID) {
		c.mu.Unlock()
		return
	}
	if c.peer == nil {
		c.buffered = append(c.buffered, p.Candidate)
		c.mu.Unlock()
		return
	}
	pr := c.peer
	c.mu.Unlock()

	pr.AddRemoteCandidate(p.Candidate)
}

// handleRemoteEnd covers call:rejected and call:ended. Nothing is sent back.
func (c *Controller) handleRemoteEnd(callID, reason string) {
	c.mu.Lock()
	if c.incoming != nil && c.incoming.CallID == callID {
		c.incoming = nil
		if c.busy {
			// cancels an accept still acquiring media
			c.gen++
		}
		c.publishLocked()
		c.mu.Unlock()
		logger.Info("Incoming call withdrawn", zap.String("call_id", callID), zap.String("reason", reason))
		return
	}
	st := c.state
	gen := c.gen
	c.mu.Unlock()

	if !st.IsInCall || st.CallID != callID {
		return
	}
	logger.Info("Call ended by remote", zap.String("call_id", callID), zap.String("reason", reason))
	c.teardown(false, gen)
}

func (c *Controller) handleToggle(t domain.MessageType, p domain.TogglePayload) {
	c.mu.Lock()
	defer c.mu.Unlock()

	remote := c.state.Remote()
	if !c.state.IsInCall || remote == nil || remote.ID != p.FromUserID {
		return
	}
	next := c.state
	if t == domain.MsgCallToggleAudio {
		next.RemoteAudioEnabled = p.Enabled
	} else {
		next.RemoteVideoEnabled = p.Enabled
	}
	c.state = next
	c.publishLocked()
}

// handleError publishes the error. A call that never connected cannot
// recover from one and is torn down locally.
func (c *Controller) handleError(p domain.ErrorPayload) {
	c.mu.Lock()
	c.lastErr = &p
	st := c.state
	tear := st.IsInCall && !c.connected && (p.CallID == "" || p.CallID == st.CallID)
	gen := c.gen
	c.publishLocked()
	c.mu.Unlock()

	logger.Warn("Signaling error", zap.String("code", p.Code), zap.String("message", p.Message), zap.String("call_id", p.CallID))
	if tear {
		c.teardown(false, gen)
	}
}
