package peer

import (
	"sync"
	"testing"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ringring-backend/internal/client/media"
)

// tunableTrack is a sendable video track with a recording encoder
type tunableTrack struct {
	*media.BasicTrack
	out *webrtc.TrackLocalStaticSample

	mu        sync.Mutex
	bitrates  []int
	keyFrames int
}

func newTunableTrack(t *testing.T) *tunableTrack {
	t.Helper()
	out, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}, "video", "ringring")
	require.NoError(t, err)
	return &tunableTrack{BasicTrack: media.NewBasicTrack("video", media.KindVideo, nil), out: out}
}

func (tt *tunableTrack) TrackLocal() webrtc.TrackLocal { return tt.out }

func (tt *tunableTrack) SetBitrate(bps int) error {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.bitrates = append(tt.bitrates, bps)
	return nil
}

func (tt *tunableTrack) RequestKeyFrame() error {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	tt.keyFrames++
	return nil
}

func newPionTransport(t *testing.T) *PionTransport {
	t.Helper()
	api, err := NewAPI(nil)
	require.NoError(t, err)
	tr, err := NewPionTransport(api, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestPionTransport_CapLocalBitrateReachesEncoder(t *testing.T) {
	// Setup
	tr := newPionTransport(t)
	track := newTunableTrack(t)
	require.NoError(t, tr.AddTrack(track))

	// Execute
	err := tr.CapLocalBitrate(750_000)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []int{750_000}, track.bitrates)
}

func TestPionTransport_CapLocalBitrateWithoutEncoder(t *testing.T) {
	// Setup
	tr := newPionTransport(t)

	// Execute
	err := tr.CapLocalBitrate(750_000)

	// Assert
	assert.ErrorIs(t, err, media.ErrNoEncoderControl)
}

func TestWantsKeyFrame(t *testing.T) {
	assert.True(t, wantsKeyFrame([]rtcp.Packet{&rtcp.ReceiverReport{}, &rtcp.PictureLossIndication{MediaSSRC: 1}}))
	assert.True(t, wantsKeyFrame([]rtcp.Packet{&rtcp.FullIntraRequest{MediaSSRC: 1}}))
	assert.False(t, wantsKeyFrame([]rtcp.Packet{&rtcp.ReceiverReport{}}))
	assert.False(t, wantsKeyFrame(nil))
}
