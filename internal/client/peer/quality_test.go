package peer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ringring-backend/internal/client/media"
)

func TestQualityController_Observe(t *testing.T) {
	tests := []struct {
		name        string
		samples     [][2]int64
		wantBitrate int
		wantChanged bool
	}{
		{
			name:        "no traffic",
			samples:     [][2]int64{{0, 0}},
			wantBitrate: media.InitialVideoBitrate,
		},
		{
			name:        "loss at threshold keeps bitrate",
			samples:     [][2]int64{{5, 95}},
			wantBitrate: media.InitialVideoBitrate,
		},
		{
			name:        "loss above threshold backs off",
			samples:     [][2]int64{{10, 90}},
			wantBitrate: 1_125_000,
			wantChanged: true,
		},
		{
			name:        "window uses deltas",
			samples:     [][2]int64{{50, 50}, {50, 1050}},
			wantBitrate: 1_125_000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQualityController()
			var changed bool
			for _, s := range tt.samples {
				_, changed = q.Observe(s[0], s[1])
			}
			assert.Equal(t, tt.wantBitrate, q.Bitrate())
			assert.Equal(t, tt.wantChanged, changed)
		})
	}
}

func TestQualityController_Floor(t *testing.T) {
	q := NewQualityController()

	var lost, recv int64
	for i := 0; i < 20; i++ {
		lost += 50
		recv += 50
		q.Observe(lost, recv)
	}

	assert.Equal(t, media.MinVideoBitrate, q.Bitrate())
	lost += 50
	recv += 50
	_, changed := q.Observe(lost, recv)
	assert.False(t, changed, "no update once at the floor")
}
