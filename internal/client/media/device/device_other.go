//go:build !linux

// Package device captures the local camera and microphone.
package device

import (
	"context"

	"github.com/pion/webrtc/v4"

	"ringring-backend/internal/client/media"
)

// Source has no capture drivers on this platform; every Open fails with
// media.ErrUnsupported.
type Source struct{}

func NewSource() (*Source, error) {
	return &Source{}, nil
}

func (s *Source) RegisterCodecs(me *webrtc.MediaEngine) error {
	return me.RegisterDefaultCodecs()
}

func (s *Source) Devices() []media.DeviceInfo {
	return nil
}

func (s *Source) Open(_ context.Context, _ media.Kind, _ media.Preferences) (media.Track, error) {
	return nil, media.ErrUnsupported
}
