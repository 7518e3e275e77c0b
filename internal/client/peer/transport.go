// Package peer negotiates and supervises the WebRTC connection of one call.
package peer

import (
	"github.com/pion/webrtc/v4"

	"ringring-backend/internal/client/media"
)

// RemoteTrack describes a track received from the other party
type RemoteTrack struct {
	ID   string
	Kind media.Kind
}

// Transport is the WebRTC connection a Session drives. PionTransport is the
// production implementation.
type Transport interface {
	AddTrack(track media.Track) error
	AddReceiveOnly(kind media.Kind) error
	SetTrackEnabled(kind media.Kind, enabled bool) error

	CreateOffer(iceRestart bool) (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error

	OnICECandidate(fn func(webrtc.ICECandidateInit))
	OnICEConnectionStateChange(fn func(webrtc.ICEConnectionState))
	OnConnectionStateChange(fn func(webrtc.PeerConnectionState))
	OnTrack(fn func(RemoteTrack))

	// InboundVideoLoss returns cumulative lost and received packet counts of
	// inbound video. ok is false until video is flowing.
	InboundVideoLoss() (lost, received int64, ok bool)
	// CapLocalBitrate lowers the outbound video encoder bitrate.
	// media.ErrNoEncoderControl means the encoder cannot be retuned.
	CapLocalBitrate(bps int) error
	// CapRemoteBitrate asks the remote sender to stay under bps
	CapRemoteBitrate(bps int) error

	Close() error
}
