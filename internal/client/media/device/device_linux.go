//go:build linux

// Package device captures the local camera and microphone.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"ringring-backend/internal/client/media"
	"ringring-backend/pkg/logger"
)

// rtpMTU bounds the packets the video pump writes
const rtpMTU = 1200

// Source captures through V4L2 and malgo, encoding VP8 and Opus
type Source struct {
	selector  *mediadevices.CodecSelector
	videoMime string
}

// NewSource builds the encoder set used for every captured track
func NewSource() (*Source, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("failed to create VP8 params: %w", err)
	}
	vpxParams.BitRate = media.InitialVideoBitrate

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("failed to create Opus params: %w", err)
	}

	return &Source{
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
		videoMime: vpxParams.RTPCodec().MimeType,
	}, nil
}

// RegisterCodecs registers the capture encoders on a WebRTC media engine.
// Tracks from this source only bind to engines prepared this way.
func (s *Source) RegisterCodecs(me *webrtc.MediaEngine) error {
	s.selector.Populate(me)
	return nil
}

// Devices lists the capture devices the drivers can see
func (s *Source) Devices() []media.DeviceInfo {
	var out []media.DeviceInfo
	for _, d := range mediadevices.EnumerateDevices() {
		info := media.DeviceInfo{ID: d.DeviceID, Label: d.Label}
		switch d.Kind {
		case mediadevices.AudioInput:
			info.Kind = media.KindAudio
		case mediadevices.VideoInput:
			info.Kind = media.KindVideo
		default:
			continue
		}
		out = append(out, info)
	}
	return out
}

// Open captures one track of kind
func (s *Source) Open(_ context.Context, kind media.Kind, prefs media.Preferences) (media.Track, error) {
	constraints := mediadevices.MediaStreamConstraints{Codec: s.selector}

	switch kind {
	case media.KindAudio:
		constraints.Audio = func(c *mediadevices.MediaTrackConstraints) {
			if prefs.AudioDeviceID != "" {
				c.DeviceID = prefs.AudioDeviceID
			}
		}
		// malgo exposes no processing controls
		logger.Debug("Audio processing preferences",
			zap.Bool("echo_cancellation", prefs.EchoCancellation),
			zap.Bool("noise_suppression", prefs.NoiseSuppression),
			zap.Bool("auto_gain_control", prefs.AutoGainControl))
	case media.KindVideo:
		constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
			// MJPEG nodes on some cameras produce frames the VP8 encoder rejects
			c.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			c.Width = prop.IntRanged{Max: 640}
			c.Height = prop.IntRanged{Max: 480}
			if prefs.VideoDeviceID != "" {
				c.DeviceID = prefs.VideoDeviceID
			}
		}
	default:
		return nil, fmt.Errorf("unknown media kind %q", kind)
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, err
	}
	tracks := stream.GetTracks()
	if len(tracks) == 0 {
		return nil, errors.New("no track returned")
	}
	for _, extra := range tracks[1:] {
		extra.Close()
	}

	local := tracks[0]
	local.OnEnded(func(err error) {
		if err != nil {
			logger.Warn("Local track ended", zap.String("kind", string(kind)), zap.Error(err))
		}
	})

	logger.Info("Local track captured", zap.String("kind", string(kind)), zap.String("track_id", local.ID()))
	if kind == media.KindVideo {
		return s.pumpVideo(local)
	}
	return &Track{
		BasicTrack: media.NewBasicTrack(local.ID(), kind, func() { local.Close() }),
		local:      local,
	}, nil
}

// pumpVideo encodes the camera through a reader this package owns and
// writes the packets to a static RTP track, so the encoder stays reachable
// for bitrate and key frame control.
func (s *Source) pumpVideo(local mediadevices.Track) (*Track, error) {
	reader, err := local.NewRTPReader(s.videoMime, rand.Uint32(), rtpMTU)
	if err != nil {
		local.Close()
		return nil, fmt.Errorf("failed to start video encoder: %w", err)
	}
	out, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: s.videoMime, ClockRate: 90000},
		local.ID(), "ringring")
	if err != nil {
		reader.Close()
		local.Close()
		return nil, fmt.Errorf("failed to create video track: %w", err)
	}

	t := &Track{local: local, out: out, encoder: reader}
	t.BasicTrack = media.NewBasicTrack(local.ID(), media.KindVideo, func() {
		reader.Close()
		local.Close()
		t.pumping.Wait()
	})

	t.pumping.Add(1)
	go func() {
		defer t.pumping.Done()
		for {
			pkts, release, err := reader.Read()
			if err != nil {
				return
			}
			for _, p := range pkts {
				if err := out.WriteRTP(p); err != nil && !errors.Is(err, io.ErrClosedPipe) {
					logger.Debug("Video packet dropped", zap.Error(err))
				}
			}
			release()
		}
	}()
	return t, nil
}

// Track is a captured device track. Video tracks carry their own encoder.
type Track struct {
	*media.BasicTrack
	local   mediadevices.Track
	out     *webrtc.TrackLocalStaticRTP
	encoder mediadevices.RTPReadCloser
	pumping sync.WaitGroup
}

// TrackLocal returns the track as the WebRTC stack sends it
func (t *Track) TrackLocal() webrtc.TrackLocal {
	if t.out != nil {
		return t.out
	}
	return t.local
}

// SetBitrate retunes the running video encoder
func (t *Track) SetBitrate(bps int) error {
	if t.encoder == nil {
		return media.ErrNoEncoderControl
	}
	ctrl, ok := t.encoder.Controller().(codec.BitRateController)
	if !ok {
		return media.ErrNoEncoderControl
	}
	return ctrl.SetBitRate(bps)
}

// RequestKeyFrame makes the video encoder emit a key frame next
func (t *Track) RequestKeyFrame() error {
	if t.encoder == nil {
		return media.ErrNoEncoderControl
	}
	ctrl, ok := t.encoder.Controller().(codec.KeyFrameController)
	if !ok {
		return media.ErrNoEncoderControl
	}
	return ctrl.ForceKeyFrame()
}
