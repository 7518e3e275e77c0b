package media

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	fail   map[Kind]error
	opened []*BasicTrack
	prefs  []Preferences
}

func (f *fakeSource) Open(_ context.Context, kind Kind, prefs Preferences) (Track, error) {
	f.prefs = append(f.prefs, prefs)
	if err := f.fail[kind]; err != nil {
		return nil, err
	}
	t := NewBasicTrack(string(kind)+"-1", kind, nil)
	f.opened = append(f.opened, t)
	return t, nil
}

func TestAcquire_AudioOnly(t *testing.T) {
	// Setup
	src := &fakeSource{}

	// Execute
	stream, err := Acquire(context.Background(), src, Constraints{Audio: true, Prefs: DefaultPreferences()})

	// Assert
	require.NoError(t, err)
	assert.NotNil(t, stream.Track(KindAudio))
	assert.Nil(t, stream.Track(KindVideo))
	assert.Len(t, src.opened, 1)
	assert.True(t, src.prefs[0].EchoCancellation)
}

func TestAcquire_AudioAndVideo(t *testing.T) {
	src := &fakeSource{}

	stream, err := Acquire(context.Background(), src, Constraints{Audio: true, Video: true})

	require.NoError(t, err)
	assert.Len(t, stream.Tracks(), 2)
	assert.Equal(t, KindVideo, stream.Track(KindVideo).Kind())
}

func TestAcquire_RollsBackOnCameraFailure(t *testing.T) {
	// Setup
	cameraErr := errors.New("camera busy")
	src := &fakeSource{fail: map[Kind]error{KindVideo: cameraErr}}

	// Execute
	stream, err := Acquire(context.Background(), src, Constraints{Audio: true, Video: true})

	// Assert
	assert.Nil(t, stream)
	var acqErr *AcquisitionError
	require.True(t, errors.As(err, &acqErr))
	assert.Equal(t, KindVideo, acqErr.Kind)
	assert.ErrorIs(t, err, cameraErr)
	require.Len(t, src.opened, 1)
	assert.True(t, src.opened[0].Stopped(), "microphone must be released")
}

func TestAcquire_CancelledContext(t *testing.T) {
	src := &fakeSource{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Acquire(ctx, src, Constraints{Audio: true})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, src.opened)
}

func TestStream_StopIsIdempotent(t *testing.T) {
	released := 0
	track := NewBasicTrack("a", KindAudio, func() { released++ })
	stream := NewStream(track)

	stream.Stop()
	stream.Stop()
	track.Stop()

	assert.Equal(t, 1, released)
	assert.Empty(t, stream.Tracks())
}

func TestBasicTrack_Enabled(t *testing.T) {
	track := NewBasicTrack("v", KindVideo, nil)
	assert.True(t, track.Enabled())

	track.SetEnabled(false)

	assert.False(t, track.Enabled())
}
