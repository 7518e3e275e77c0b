package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"ringring-backend/internal/domain"
	"ringring-backend/internal/middleware"
	"ringring-backend/internal/presence"
	callsvc "ringring-backend/internal/service/call"
	"ringring-backend/internal/signaling"
	"ringring-backend/pkg/constants"
	"ringring-backend/pkg/logger"
	"ringring-backend/pkg/metrics"
	"ringring-backend/pkg/push"
	"ringring-backend/pkg/response"
)

const (
	pongWait   = constants.WebSocketPingInterval
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 256
)

// CallRecorder persists call lifecycle writes off the signaling loop
type CallRecorder interface {
	Created(callID string, record domain.Call)
	Closed(c callsvc.Closure)
	OfflineAttempt(callerID, receiverID string, at time.Time)
}

// MissedCallNotifier pushes a missed-call notification to an offline receiver
type MissedCallNotifier interface {
	SendMissedCallNotification(ctx context.Context, call push.MissedCall) error
}

// PresenceMirror publishes presence outside the process
type PresenceMirror interface {
	SetUserOnline(ctx context.Context, user domain.OnlineUser) error
	SetUserOffline(ctx context.Context, userID string) error
	RefreshPresence(ctx context.Context, userIDs []string) error
}

// ProfileLookup resolves display data for a user id
type ProfileLookup interface {
	LookupProfile(ctx context.Context, userID string) (domain.Profile, error)
}

// SignalingHub owns the signaling router and every live connection. All
// router access happens on the goroutine running Run.
type SignalingHub struct {
	router   *signaling.Router
	registry *presence.Registry

	recorder CallRecorder
	notifier MissedCallNotifier
	mirror   PresenceMirror
	profiles ProfileLookup
	metrics  *metrics.Metrics

	clients map[string]*SignalingClient

	register   chan *SignalingClient
	unregister chan *SignalingClient
	inbound    chan inboundFrame
	done       chan struct{}
	stopOnce   sync.Once

	sweepInterval   time.Duration
	refreshInterval time.Duration
	effectTimeout   time.Duration
	allowedOrigins  map[string]bool
	upgrader        websocket.Upgrader

	maxConnections int
	semaphore      chan struct{}
}

// SignalingClient is one WebSocket connection
type SignalingClient struct {
	hub    *SignalingHub
	id     string
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

type inboundFrame struct {
	client   *SignalingClient
	envelope domain.Envelope
	// malformed is set instead of envelope when the frame did not decode
	malformed string
}

// HubOption configures a SignalingHub
type HubOption func(*SignalingHub)

// WithRecorder sets the call ledger recorder
func WithRecorder(r CallRecorder) HubOption {
	return func(h *SignalingHub) { h.recorder = r }
}

// WithNotifier sets the missed-call push notifier
func WithNotifier(n MissedCallNotifier) HubOption {
	return func(h *SignalingHub) { h.notifier = n }
}

// WithPresenceMirror sets the external presence mirror
func WithPresenceMirror(m PresenceMirror) HubOption {
	return func(h *SignalingHub) { h.mirror = m }
}

// WithProfiles sets the profile lookup used to name callers in pushes
func WithProfiles(p ProfileLookup) HubOption {
	return func(h *SignalingHub) { h.profiles = p }
}

// WithMetrics enables signaling metrics
func WithMetrics(m *metrics.Metrics) HubOption {
	return func(h *SignalingHub) { h.metrics = m }
}

// WithMaxConnections caps concurrent WebSocket connections
func WithMaxConnections(n int) HubOption {
	return func(h *SignalingHub) {
		if n > 0 {
			h.maxConnections = n
		}
	}
}

// WithSweepInterval sets how often ring timeouts are checked
func WithSweepInterval(d time.Duration) HubOption {
	return func(h *SignalingHub) { h.sweepInterval = d }
}

// WithAllowedOrigins restricts browser origins. Connections without an
// Origin header (native clients) are always accepted.
func WithAllowedOrigins(origins []string) HubOption {
	return func(h *SignalingHub) {
		for _, o := range origins {
			h.allowedOrigins[o] = true
		}
	}
}

// NewSignalingHub creates a hub around router. registry must be the one the
// router was built with.
func NewSignalingHub(router *signaling.Router, registry *presence.Registry, opts ...HubOption) *SignalingHub {
	h := &SignalingHub{
		router:          router,
		registry:        registry,
		clients:         make(map[string]*SignalingClient),
		register:        make(chan *SignalingClient),
		unregister:      make(chan *SignalingClient),
		inbound:         make(chan inboundFrame, 256),
		done:            make(chan struct{}),
		sweepInterval:   constants.RingSweepInterval,
		refreshInterval: constants.PresenceTTL / 2,
		effectTimeout:   constants.EffectTimeout,
		allowedOrigins:  make(map[string]bool),
		maxConnections:  1000,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.semaphore = make(chan struct{}, h.maxConnections)
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *SignalingHub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || h.allowedOrigins[origin]
}

// Run is the signaling loop. It returns when ctx is cancelled, after closing
// every connection.
func (h *SignalingHub) Run(ctx context.Context) {
	sweep := time.NewTicker(h.sweepInterval)
	refresh := time.NewTicker(h.refreshInterval)
	defer func() {
		sweep.Stop()
		refresh.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.clients[client.id] = client
			h.updateGauges()

		case client := <-h.unregister:
			h.drop(client)

		case frame := <-h.inbound:
			if _, ok := h.clients[frame.client.id]; !ok {
				continue
			}
			if frame.malformed != "" {
				h.apply(h.router.Malformed(frame.client.id, frame.malformed))
				continue
			}
			if h.metrics != nil {
				h.metrics.RecordSignalingMessage(string(frame.envelope.Type))
			}
			h.apply(h.router.Handle(signaling.Inbound{
				ConnID:     frame.client.id,
				AuthUserID: frame.client.userID,
				Envelope:   frame.envelope,
			}))

		case now := <-sweep.C:
			h.apply(h.router.Sweep(now))

		case <-refresh.C:
			h.refreshPresence()
		}
	}
}

func (h *SignalingHub) shutdown() {
	h.stopOnce.Do(func() { close(h.done) })
	for id, client := range h.clients {
		delete(h.clients, id)
		close(client.send)
	}
	logger.Info("Signaling hub stopped")
}

// drop removes a client and lets the router clean up after it
func (h *SignalingHub) drop(client *SignalingClient) {
	if _, ok := h.clients[client.id]; !ok {
		return
	}
	delete(h.clients, client.id)
	close(client.send)
	h.apply(h.router.Disconnect(client.id))
}

// apply delivers the frames of a transition and starts its effects.
// Clients whose buffers are full are dropped afterwards.
func (h *SignalingHub) apply(t signaling.Transition) {
	var slow []*SignalingClient

	deliver := func(client *SignalingClient, data []byte) {
		select {
		case client.send <- data:
			if h.metrics != nil {
				h.metrics.RecordWebSocketMessage("out")
			}
		default:
			slow = append(slow, client)
		}
	}

	for _, out := range t.Out {
		data, err := json.Marshal(out.Envelope)
		if err != nil {
			logger.Error("Failed to encode signaling frame",
				zap.String("type", string(out.Envelope.Type)),
				zap.Error(err))
			continue
		}
		if out.Envelope.Type == domain.MsgCallError && h.metrics != nil {
			var p domain.ErrorPayload
			if json.Unmarshal(out.Envelope.Data, &p) == nil {
				h.metrics.RecordSignalingError(p.Code)
			}
		}

		if out.Broadcast {
			for id, client := range h.clients {
				if id != out.Except {
					deliver(client, data)
				}
			}
			continue
		}
		if client, ok := h.clients[out.ConnID]; ok {
			deliver(client, data)
		}
	}

	for _, e := range t.Effects {
		h.runEffect(e)
	}
	h.updateGauges()

	for _, client := range slow {
		logger.Warn("Dropping slow signaling client",
			zap.String("conn_id", client.id),
			zap.String("user_id", client.userID))
		h.drop(client)
	}
}

func (h *SignalingHub) runEffect(e signaling.Effect) {
	switch e := e.(type) {
	case signaling.CreateCallEffect:
		if h.recorder != nil {
			h.recorder.Created(e.CallID, e.Record)
		}

	case signaling.CloseCallEffect:
		if h.recorder != nil {
			h.recorder.Closed(callsvc.Closure{
				RecordID:   e.RecordID,
				CallID:     e.CallID,
				CallerID:   e.CallerID,
				ReceiverID: e.ReceiverID,
				CallType:   e.CallType,
				Status:     e.Status,
				EndTime:    e.EndTime,
				Duration:   e.Duration,
			})
		}

	case signaling.MissedCallEffect:
		if h.recorder != nil {
			h.recorder.OfflineAttempt(e.CallerID, e.ReceiverID, time.Now())
		}
		if h.notifier != nil {
			go h.notifyMissed(e)
		}

	case signaling.PresenceEffect:
		if h.mirror != nil {
			go h.mirrorPresence(e)
		}
	}
}

func (h *SignalingHub) notifyMissed(e signaling.MissedCallEffect) {
	ctx, cancel := context.WithTimeout(context.Background(), h.effectTimeout)
	defer cancel()

	callerName := e.CallerName
	if callerName == "" && h.profiles != nil {
		if profile, err := h.profiles.LookupProfile(ctx, e.CallerID); err == nil {
			callerName = profile.Name
		}
	}

	err := h.notifier.SendMissedCallNotification(ctx, push.MissedCall{
		CallerID:   e.CallerID,
		CallerName: callerName,
		ReceiverID: e.ReceiverID,
		CallType:   string(e.CallType),
		Timestamp:  time.Now().Unix(),
	})
	if h.metrics != nil {
		h.metrics.RecordPushNotification("missed_call", err)
	}
	if err != nil {
		logger.Warn("Missed call notification failed",
			zap.String("receiver_id", e.ReceiverID),
			zap.Error(err))
	}
}

func (h *SignalingHub) mirrorPresence(e signaling.PresenceEffect) {
	ctx, cancel := context.WithTimeout(context.Background(), h.effectTimeout)
	defer cancel()

	var err error
	if e.Online {
		err = h.mirror.SetUserOnline(ctx, domain.OnlineUser{UserID: e.UserID, Name: e.Name, Avatar: e.Avatar})
	} else {
		err = h.mirror.SetUserOffline(ctx, e.UserID)
	}
	if err != nil {
		logger.Debug("Presence mirror write failed",
			zap.String("user_id", e.UserID),
			zap.Bool("online", e.Online),
			zap.Error(err))
	}
}

func (h *SignalingHub) refreshPresence() {
	if h.mirror == nil {
		return
	}
	online := h.registry.Online()
	if len(online) == 0 {
		return
	}
	ids := make([]string, 0, len(online))
	for _, e := range online {
		ids = append(ids, e.UserID)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.effectTimeout)
		defer cancel()
		if err := h.mirror.RefreshPresence(ctx, ids); err != nil {
			logger.Debug("Presence refresh failed", zap.Int("users", len(ids)), zap.Error(err))
		}
	}()
}

func (h *SignalingHub) updateGauges() {
	if h.metrics == nil {
		return
	}
	h.metrics.SetWebSocketConnections(len(h.clients))
	h.metrics.SetOnlineUsers(h.registry.Count())
	h.metrics.SetActiveCalls(h.router.ActiveCalls())
}

// OnlineUsers returns the users present on this server
func (h *SignalingHub) OnlineUsers() []domain.OnlineUser {
	online := h.registry.Online()
	users := make([]domain.OnlineUser, 0, len(online))
	for _, e := range online {
		users = append(users, domain.OnlineUser{UserID: e.UserID, Name: e.Name, Avatar: e.Avatar})
	}
	return users
}

// ServeWS upgrades an authenticated request to a signaling connection
func (h *SignalingHub) ServeWS(c *gin.Context) {
	select {
	case <-h.done:
		response.Error(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Server is shutting down")
		return
	default:
	}

	select {
	case h.semaphore <- struct{}{}:
	default:
		logger.Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", h.maxConnections))
		response.Error(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Server at capacity, please try again later")
		return
	}

	var userID string
	if id, ok := middleware.CurrentUserID(c); ok {
		userID = id.String()
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		<-h.semaphore
		logger.Warn("WebSocket upgrade failed",
			zap.String("user_id", userID),
			zap.Error(err))
		return
	}

	client := &SignalingClient{
		hub:    h,
		id:     uuid.New().String(),
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		userID: userID,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		<-h.semaphore
		return
	}

	logger.Debug("Signaling connection opened",
		zap.String("conn_id", client.id),
		zap.String("user_id", userID))

	go client.writePump()
	go client.readPump()
}

// readPump reads frames until the connection fails, then unregisters
func (c *SignalingClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
		<-c.hub.semaphore
	}()

	c.conn.SetReadLimit(constants.WebSocketMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket connection closed",
					zap.String("conn_id", c.id),
					zap.String("user_id", c.userID),
					zap.Error(err))
			}
			return
		}
		if c.hub.metrics != nil {
			c.hub.metrics.RecordWebSocketMessage("in")
		}

		frame := inboundFrame{client: c}
		if err := json.Unmarshal(message, &frame.envelope); err != nil {
			frame.malformed = "Frame is not a JSON envelope"
		} else if frame.envelope.Type == "" {
			frame.malformed = "Frame has no type"
		}
		if frame.malformed != "" {
			logger.Warn("Invalid signaling frame",
				zap.String("conn_id", c.id),
				zap.String("user_id", c.userID),
				zap.String("reason", frame.malformed))
			if c.hub.metrics != nil {
				c.hub.metrics.RecordWebSocketError("invalid_frame")
			}
		}

		select {
		case c.hub.inbound <- frame:
		case <-c.hub.done:
			return
		}
	}
}

// writePump writes queued frames and keeps the connection alive with pings
func (c *SignalingClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				if c.hub.metrics != nil {
					c.hub.metrics.RecordWebSocketError("write")
				}
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
