// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default timeout for most operations
	DefaultTimeout = 30 * time.Second

	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 60 * time.Second

	// WebSocketWriteWait bounds a single frame write
	WebSocketWriteWait = 10 * time.Second

	// WebSocketMaxMessageSize caps an inbound signaling frame (SDP blobs included)
	WebSocketMaxMessageSize = 64 * 1024

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second

	// EffectTimeout bounds a single ledger, mirror or push side effect
	EffectTimeout = 5 * time.Second

	// LedgerQueueSize caps ledger writes waiting behind a slow database
	LedgerQueueSize = 10000
)

// JWT-related constants
const (
	// AccessTokenExpiry is the default app token lifetime
	AccessTokenExpiry = 1 * time.Hour
)

// Database connection constants
const (
	MaxConnLifetime   = 1 * time.Hour
	MaxConnIdleTime   = 30 * time.Minute
	HealthCheckPeriod = 1 * time.Minute
)

// Storage constants
const (
	// PresignedURLExpiry is the validity period for presigned avatar URLs
	PresignedURLExpiry = 15 * time.Minute

	// MaxAvatarBytes caps an avatar image mirrored into object storage
	MaxAvatarBytes = 2 << 20
)

// Presence constants
const (
	// PresenceTTL is how long a mirrored presence key survives without refresh
	PresenceTTL = 2 * time.Minute

	// PushTokenExpiry is the validity period for push notification tokens
	PushTokenExpiry = 30 * 24 * time.Hour
)

// Audit constants
const (
	// AuditLogRetention is how long a day's audit list is kept
	AuditLogRetention = 30 * 24 * time.Hour

	// AuditMaxEventsPerDay caps each day's audit list
	AuditMaxEventsPerDay = 100000
)

// Pagination constants
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MinPageSize     = 1
)

// Call-related constants
const (
	// RingTimeout is how long an unanswered call may ring before it is marked missed
	RingTimeout = 45 * time.Second

	// RingSweepInterval is how often the signaling loop checks for ring timeouts
	RingSweepInterval = 5 * time.Second

	// ICEDisconnectedGrace is how long a disconnected ICE state may last before
	// it is handled as a failure
	ICEDisconnectedGrace = 5 * time.Second

	// RingNumberAttempts bounds ring number generation retries
	RingNumberAttempts = 10
)

// Quality adaptation constants
const (
	StatsSampleInterval  = 5 * time.Second
	LossRatioThreshold   = 0.05
	BitrateBackoffFactor = 0.75
	InitialVideoBitrate  = 1_500_000
	MinimumVideoBitrate  = 150_000
)
