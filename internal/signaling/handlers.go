package signaling

import (
	"go.uber.org/zap"

	"ringring-backend/internal/domain"
	"ringring-backend/internal/presence"
	"ringring-backend/pkg/logger"
	"ringring-backend/pkg/sanitize"
)

func badPayload(in Inbound, err error) Transition {
	return replyError(in.ConnID, domain.SignalErrBadRequest, err.Error(), "")
}

func handleJoin(r *Router, in Inbound, _ string) Transition {
	var p domain.JoinPayload
	if err := in.Envelope.Decode(&p); err != nil {
		return badPayload(in, err)
	}
	if p.UserID == "" {
		return replyError(in.ConnID, domain.SignalErrBadRequest, "userId is required", "")
	}
	if in.AuthUserID != "" && in.AuthUserID != p.UserID {
		return replyError(in.ConnID, domain.SignalErrForbidden, "Cannot join as another user", "")
	}
	p.Name = sanitize.DisplayName(p.Name)
	p.Avatar = sanitize.AvatarURL(p.Avatar)

	r.presence.Announce(presence.Entry{
		UserID:       p.UserID,
		ConnectionID: in.ConnID,
		Name:         p.Name,
		Avatar:       p.Avatar,
	})

	var t Transition
	t.broadcast(in.ConnID, domain.MustEnvelope(domain.MsgUserOnline, domain.OnlineUser{
		UserID: p.UserID,
		Name:   p.Name,
		Avatar: p.Avatar,
	}))

	online := r.presence.Online()
	users := make([]domain.OnlineUser, 0, len(online))
	for _, e := range online {
		users = append(users, domain.OnlineUser{UserID: e.UserID, Name: e.Name, Avatar: e.Avatar})
	}
	t.send(in.ConnID, domain.MustEnvelope(domain.MsgUsersOnline, users))
	t.effect(PresenceEffect{UserID: p.UserID, Name: p.Name, Avatar: p.Avatar, Online: true})
	return t
}

func handleInitiate(r *Router, in Inbound, senderID string) Transition {
	var p domain.InitiatePayload
	if err := in.Envelope.Decode(&p); err != nil {
		return badPayload(in, err)
	}
	if p.CallerID == "" {
		p.CallerID = senderID
	}
	if p.CallType == "" {
		p.CallType = domain.CallTypeVideo
	}
	p.CallerName = sanitize.DisplayName(p.CallerName)
	p.CallerAvatar = sanitize.AvatarURL(p.CallerAvatar)
	switch {
	case p.CallerID != senderID:
		return replyError(in.ConnID, domain.SignalErrForbidden, "Cannot call on behalf of another user", "")
	case p.ReceiverID == "":
		return replyError(in.ConnID, domain.SignalErrBadRequest, "receiverId is required", "")
	case p.ReceiverID == p.CallerID:
		return replyError(in.ConnID, domain.SignalErrBadRequest, "Cannot call yourself", "")
	case !p.CallType.Valid():
		return replyError(in.ConnID, domain.SignalErrBadRequest, "callType must be video or audio", "")
	}

	var t Transition
	if r.blocked(p.ReceiverID, p.CallerID) {
		logger.Debug("Call from blocked caller dropped",
			zap.String("caller_id", p.CallerID),
			zap.String("receiver_id", p.ReceiverID))
		t.send(in.ConnID, errorEnvelope(domain.SignalErrOffline, "User is offline", ""))
		return t
	}
	receiver, ok := r.presence.Lookup(p.ReceiverID)
	if !ok {
		t.send(in.ConnID, errorEnvelope(domain.SignalErrOffline, "User is offline", ""))
		t.effect(MissedCallEffect{
			CallerID:   p.CallerID,
			CallerName: p.CallerName,
			ReceiverID: p.ReceiverID,
			CallType:   p.CallType,
		})
		return t
	}

	now := r.now()
	call := &ActiveCall{
		CallID:     r.nextCallID(p.CallerID, p.ReceiverID, now),
		CallerID:   p.CallerID,
		ReceiverID: p.ReceiverID,
		CallType:   p.CallType,
		StartTime:  now,
		LedgerID:   r.newID(),
		Phase:      PhaseRinging,
	}
	r.calls[call.CallID] = call

	t.effect(CreateCallEffect{
		CallID: call.CallID,
		Record: domain.Call{
			CallID:     call.LedgerID,
			CallerID:   call.CallerID,
			ReceiverID: call.ReceiverID,
			CallType:   call.CallType,
			Status:     domain.CallStatusPending,
			StartedAt:  now,
		},
	})
	t.send(receiver.ConnectionID, domain.MustEnvelope(domain.MsgCallIncoming, domain.IncomingPayload{
		CallID:       call.CallID,
		CallerID:     call.CallerID,
		CallerName:   p.CallerName,
		CallerAvatar: p.CallerAvatar,
		CallType:     call.CallType,
	}))
	t.send(in.ConnID, domain.MustEnvelope(domain.MsgCallInitiated, domain.InitiatedPayload{
		CallID:     call.CallID,
		ReceiverID: call.ReceiverID,
	}))
	return t
}

func handleAccept(r *Router, in Inbound, senderID string) Transition {
	var p domain.AcceptPayload
	if err := in.Envelope.Decode(&p); err != nil {
		return badPayload(in, err)
	}

	call, ok := r.calls[p.CallID]
	if !ok {
		return replyError(in.ConnID, domain.SignalErrNotFound, "Call not found", p.CallID)
	}
	if senderID != call.ReceiverID {
		return replyError(in.ConnID, domain.SignalErrForbidden, "Only the receiver can accept", p.CallID)
	}

	call.Accepted = true

	var t Transition
	r.route(&t, in.ConnID, call.CallerID,
		domain.MustEnvelope(domain.MsgCallAccepted, domain.AcceptedPayload{CallID: call.CallID}), call.CallID)
	return t
}

func handleReject(r *Router, in Inbound, senderID string) Transition {
	var p domain.RejectPayload
	if err := in.Envelope.Decode(&p); err != nil {
		return badPayload(in, err)
	}

	var t Transition
	call, ok := r.calls[p.CallID]
	if !ok {
		return t
	}
	if !call.Involves(senderID) {
		return replyError(in.ConnID, domain.SignalErrForbidden, "Not a participant", p.CallID)
	}

	t.effect(r.closeEffect(call, domain.CallStatusRejected, r.now()))
	delete(r.calls, call.CallID)

	r.route(&t, in.ConnID, call.Other(senderID), domain.MustEnvelope(domain.MsgCallRejected, domain.RejectedPayload{
		CallID: call.CallID,
		Reason: p.Reason,
	}), call.CallID)
	return t
}

// participantCall resolves callID and checks that sender and target are the
// two parties of it. An empty target defaults to the other party.
func (r *Router) participantCall(in Inbound, callID, senderID string, target *string) (*ActiveCall, *Transition) {
	call, ok := r.calls[callID]
	if !ok {
		t := replyError(in.ConnID, domain.SignalErrNotFound, "Call not found", callID)
		return nil, &t
	}
	if !call.Involves(senderID) {
		t := replyError(in.ConnID, domain.SignalErrForbidden, "Not a participant", callID)
		return nil, &t
	}
	if *target == "" {
		*target = call.Other(senderID)
	}
	if *target != call.Other(senderID) {
		t := replyError(in.ConnID, domain.SignalErrForbidden, "Target is not part of this call", callID)
		return nil, &t
	}
	return call, nil
}

func handleOffer(r *Router, in Inbound, senderID string) Transition {
	var p domain.OfferPayload
	if err := in.Envelope.Decode(&p); err != nil {
		return badPayload(in, err)
	}

	call, reject := r.participantCall(in, p.CallID, senderID, &p.ReceiverID)
	if reject != nil {
		return *reject
	}
	if call.Phase == PhaseRinging {
		call.Phase = PhaseNegotiating
	}

	var t Transition
	r.route(&t, in.ConnID, p.ReceiverID, domain.MustEnvelope(domain.MsgCallOffer, domain.OfferPayload{
		CallID:     call.CallID,
		FromUserID: senderID,
		Offer:      p.Offer,
	}), call.CallID)
	return t
}

func handleAnswer(r *Router, in Inbound, senderID string) Transition {
	var p domain.AnswerPayload
	if err := in.Envelope.Decode(&p); err != nil {
		return badPayload(in, err)
	}

	call, reject := r.participantCall(in, p.CallID, senderID, &p.CallerID)
	if reject != nil {
		return *reject
	}
	call.Phase = PhaseConnected

	var t Transition
	r.route(&t, in.ConnID, p.CallerID, domain.MustEnvelope(domain.MsgCallAnswer, domain.AnswerPayload{
		CallID:     call.CallID,
		FromUserID: senderID,
		Answer:     p.Answer,
	}), call.CallID)
	return t
}

// Candidates are routed by target alone; they routinely race the offer and
// answer, so no call-state check applies.
func handleICECandidate(r *Router, in Inbound, senderID string) Transition {
	var p domain.ICECandidatePayload
	if err := in.Envelope.Decode(&p); err != nil {
		return badPayload(in, err)
	}
	if p.TargetUserID == "" {
		return replyError(in.ConnID, domain.SignalErrBadRequest, "targetUserId is required", p.CallID)
	}

	var t Transition
	r.route(&t, in.ConnID, p.TargetUserID, domain.MustEnvelope(domain.MsgCallICE, domain.ICECandidatePayload{
		CallID:     p.CallID,
		FromUserID: senderID,
		Candidate:  p.Candidate,
	}), p.CallID)
	return t
}

func handleEnd(r *Router, in Inbound, senderID string) Transition {
	var p domain.EndPayload
	if err := in.Envelope.Decode(&p); err != nil {
		return badPayload(in, err)
	}

	var t Transition
	call, ok := r.calls[p.CallID]
	if !ok {
		return t
	}
	if !call.Involves(senderID) {
		return replyError(in.ConnID, domain.SignalErrForbidden, "Not a participant", p.CallID)
	}

	status := domain.CallStatusCompleted
	if !call.Accepted {
		status = domain.CallStatusMissed
	}
	t.effect(r.closeEffect(call, status, r.now()))
	delete(r.calls, call.CallID)

	r.route(&t, in.ConnID, call.Other(senderID), domain.MustEnvelope(domain.MsgCallEnded, domain.EndedPayload{
		CallID: call.CallID,
		Reason: domain.ReasonEnded,
	}), call.CallID)
	return t
}

func handleToggle(r *Router, in Inbound, senderID string) Transition {
	var p domain.TogglePayload
	if err := in.Envelope.Decode(&p); err != nil {
		return badPayload(in, err)
	}
	if p.TargetUserID == "" {
		return replyError(in.ConnID, domain.SignalErrBadRequest, "targetUserId is required", "")
	}

	var t Transition
	r.route(&t, in.ConnID, p.TargetUserID, domain.MustEnvelope(in.Envelope.Type, domain.TogglePayload{
		FromUserID: senderID,
		Enabled:    p.Enabled,
	}), "")
	return t
}
