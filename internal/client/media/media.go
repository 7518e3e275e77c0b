// Package media describes local capture tracks and how a call acquires them.
// Platform capture lives in the device subpackage.
package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ringring-backend/pkg/constants"
)

// Kind is the media kind of a track
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

var (
	// ErrUnsupported is returned by sources that cannot capture on this platform
	ErrUnsupported = errors.New("media capture not supported on this platform")
	// ErrNoEncoderControl is returned when a track's encoder cannot be tuned
	// while running
	ErrNoEncoderControl = errors.New("encoder does not support runtime control")
)

// Preferences are the user's capture settings. Empty device ids select the
// system default.
type Preferences struct {
	AudioDeviceID    string
	VideoDeviceID    string
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// DefaultPreferences returns default devices with all audio processing on
func DefaultPreferences() Preferences {
	return Preferences{
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// Constraints selects which kinds to acquire
type Constraints struct {
	Audio bool
	Video bool
	Prefs Preferences
}

// Track is one local capture track
type Track interface {
	ID() string
	Kind() Kind
	Enabled() bool
	SetEnabled(enabled bool)
	// Stop releases the device. Safe to call more than once.
	Stop()
}

// EncoderControl is implemented by tracks whose encoder can be tuned while
// the track is being sent
type EncoderControl interface {
	SetBitrate(bps int) error
	RequestKeyFrame() error
}

// Source opens capture tracks
type Source interface {
	Open(ctx context.Context, kind Kind, prefs Preferences) (Track, error)
}

// AcquisitionError reports which kind could not be acquired
type AcquisitionError struct {
	Kind Kind
	Err  error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("failed to acquire %s: %v", e.Kind, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// Stream is the set of local tracks held by one call
type Stream struct {
	mu     sync.Mutex
	tracks []Track
}

// NewStream groups tracks into a stream
func NewStream(tracks ...Track) *Stream {
	return &Stream{tracks: tracks}
}

// Tracks returns a copy of the stream's tracks
func (s *Stream) Tracks() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// Track returns the first track of kind, or nil
func (s *Stream) Track(kind Kind) Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tracks {
		if t.Kind() == kind {
			return t
		}
	}
	return nil
}

// Stop releases every track and empties the stream
func (s *Stream) Stop() {
	s.mu.Lock()
	tracks := s.tracks
	s.tracks = nil
	s.mu.Unlock()

	for _, t := range tracks {
		t.Stop()
	}
}

// Acquire opens the microphone when c.Audio is set and the camera when
// c.Video is set. If any kind fails, tracks already opened are stopped and an
// *AcquisitionError is returned.
func Acquire(ctx context.Context, src Source, c Constraints) (*Stream, error) {
	var kinds []Kind
	if c.Audio {
		kinds = append(kinds, KindAudio)
	}
	if c.Video {
		kinds = append(kinds, KindVideo)
	}

	stream := NewStream()
	for _, kind := range kinds {
		if err := ctx.Err(); err != nil {
			stream.Stop()
			return nil, &AcquisitionError{Kind: kind, Err: err}
		}
		track, err := src.Open(ctx, kind, c.Prefs)
		if err != nil {
			stream.Stop()
			return nil, &AcquisitionError{Kind: kind, Err: err}
		}
		stream.mu.Lock()
		stream.tracks = append(stream.tracks, track)
		stream.mu.Unlock()
	}
	return stream, nil
}

// Video send bitrate bounds. Calls start at InitialVideoBitrate and back off
// toward MinVideoBitrate under loss.
const (
	InitialVideoBitrate = constants.InitialVideoBitrate
	MinVideoBitrate     = constants.MinimumVideoBitrate
)

// DeviceInfo describes one capture device
type DeviceInfo struct {
	ID    string `json:"id"`
	Kind  Kind   `json:"kind"`
	Label string `json:"label"`
}
