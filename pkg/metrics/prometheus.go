package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// HTTP Request Metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// WebSocket Metrics
	websocketConnections   prometheus.Gauge
	websocketMessagesTotal *prometheus.CounterVec
	websocketErrorsTotal   *prometheus.CounterVec

	// Signaling Metrics
	signalingMessagesTotal *prometheus.CounterVec
	signalingErrorsTotal   *prometheus.CounterVec
	onlineUsers            prometheus.Gauge

	// Call Metrics
	callsTotal       *prometheus.CounterVec
	callsActive      prometheus.Gauge
	callsDuration    *prometheus.HistogramVec
	callsFailedTotal *prometheus.CounterVec
	ledgerWrites     *prometheus.CounterVec

	// Push Notification Metrics
	pushNotificationsTotal *prometheus.CounterVec

	// Auth Metrics
	authAttemptsTotal *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with the default registry
func NewMetrics(serviceName string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, serviceName)
}

// NewMetricsWith creates all metrics and registers them with reg
func NewMetricsWith(reg prometheus.Registerer, serviceName string) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),

		websocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of active WebSocket connections",
				ConstLabels: labels,
			},
		),
		websocketMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_messages_total",
				Help:        "Total number of WebSocket messages",
				ConstLabels: labels,
			},
			[]string{"direction"},
		),
		websocketErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_errors_total",
				Help:        "Total number of WebSocket errors",
				ConstLabels: labels,
			},
			[]string{"error"},
		),

		signalingMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "signaling_messages_total",
				Help:        "Total number of signaling envelopes handled, by type",
				ConstLabels: labels,
			},
			[]string{"type"},
		),
		signalingErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "signaling_errors_total",
				Help:        "Total number of call:error replies, by code",
				ConstLabels: labels,
			},
			[]string{"code"},
		),
		onlineUsers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "signaling_online_users",
				Help:        "Number of users present in the signaling registry",
				ConstLabels: labels,
			},
		),

		callsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "calls_total",
				Help:        "Total number of finished calls",
				ConstLabels: labels,
			},
			[]string{"type", "status"},
		),
		callsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "calls_active",
				Help:        "Number of active calls",
				ConstLabels: labels,
			},
		),
		callsDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "calls_duration_seconds",
				Help:        "Call duration in seconds",
				ConstLabels: labels,
				Buckets:     []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"type"},
		),
		callsFailedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "calls_failed_total",
				Help:        "Total number of calls that did not connect",
				ConstLabels: labels,
			},
			[]string{"type", "reason"},
		),
		ledgerWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "call_ledger_writes_total",
				Help:        "Total number of call ledger writes",
				ConstLabels: labels,
			},
			[]string{"operation", "result"},
		),

		pushNotificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "push_notifications_total",
				Help:        "Total number of push notifications attempted",
				ConstLabels: labels,
			},
			[]string{"type", "result"},
		),

		authAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "auth_attempts_total",
				Help:        "Total number of authentication attempts",
				ConstLabels: labels,
			},
			[]string{"method", "result"},
		),
	}
}

// HTTP Metrics Methods

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the number of in-flight HTTP requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the number of in-flight HTTP requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Dec()
}

// WebSocket Metrics Methods

// SetWebSocketConnections sets the number of active WebSocket connections
func (m *Metrics) SetWebSocketConnections(count int) {
	m.websocketConnections.Set(float64(count))
}

// RecordWebSocketMessage records a frame read ("in") or written ("out")
func (m *Metrics) RecordWebSocketMessage(direction string) {
	m.websocketMessagesTotal.WithLabelValues(direction).Inc()
}

// RecordWebSocketError records a WebSocket error
func (m *Metrics) RecordWebSocketError(err string) {
	m.websocketErrorsTotal.WithLabelValues(err).Inc()
}

// Signaling Metrics Methods

// RecordSignalingMessage counts one handled envelope
func (m *Metrics) RecordSignalingMessage(msgType string) {
	m.signalingMessagesTotal.WithLabelValues(msgType).Inc()
}

// RecordSignalingError counts one call:error reply
func (m *Metrics) RecordSignalingError(code string) {
	m.signalingErrorsTotal.WithLabelValues(code).Inc()
}

// SetOnlineUsers sets the registry size
func (m *Metrics) SetOnlineUsers(count int) {
	m.onlineUsers.Set(float64(count))
}

// Call Metrics Methods

// RecordCall records a finished call
func (m *Metrics) RecordCall(callType, status string) {
	m.callsTotal.WithLabelValues(callType, status).Inc()
}

// SetActiveCalls sets the number of active calls
func (m *Metrics) SetActiveCalls(count int) {
	m.callsActive.Set(float64(count))
}

// RecordCallDuration records the duration of a call
func (m *Metrics) RecordCallDuration(callType string, duration time.Duration) {
	m.callsDuration.WithLabelValues(callType).Observe(duration.Seconds())
}

// RecordCallFailure records a call that did not connect
func (m *Metrics) RecordCallFailure(callType, reason string) {
	m.callsFailedTotal.WithLabelValues(callType, reason).Inc()
}

// RecordLedgerWrite records a ledger create or close
func (m *Metrics) RecordLedgerWrite(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ledgerWrites.WithLabelValues(operation, result).Inc()
}

// RecordLedgerDropped records a ledger write dropped because the queue was full
func (m *Metrics) RecordLedgerDropped(operation string) {
	m.ledgerWrites.WithLabelValues(operation, "dropped").Inc()
}

// Push Notification Metrics Methods

// RecordPushNotification records a push notification attempt
func (m *Metrics) RecordPushNotification(notifType string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.pushNotificationsTotal.WithLabelValues(notifType, result).Inc()
}

// Auth Metrics Methods

// RecordAuthAttempt records an authentication attempt and its outcome
func (m *Metrics) RecordAuthAttempt(method string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.authAttemptsTotal.WithLabelValues(method, result).Inc()
}
