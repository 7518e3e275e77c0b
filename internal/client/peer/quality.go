package peer

import (
	"ringring-backend/internal/client/media"
	"ringring-backend/pkg/constants"
)

// Quality adaptation thresholds
const (
	LossThreshold  = constants.LossRatioThreshold
	BitrateBackoff = constants.BitrateBackoffFactor
)

// QualityController lowers the video bitrate cap when inbound loss exceeds
// LossThreshold over a sampling window. It never raises it again.
type QualityController struct {
	bitrate  int
	floor    int
	lastLost int64
	lastRecv int64
}

func NewQualityController() *QualityController {
	return &QualityController{
		bitrate: media.InitialVideoBitrate,
		floor:   media.MinVideoBitrate,
	}
}

// Bitrate returns the current cap in bits per second
func (q *QualityController) Bitrate() int {
	return q.bitrate
}

// Observe takes cumulative counters and returns the new cap when it changed
func (q *QualityController) Observe(lost, received int64) (int, bool) {
	dLost := lost - q.lastLost
	dRecv := received - q.lastRecv
	q.lastLost, q.lastRecv = lost, received

	// lost can shrink when late packets arrive
	if dLost < 0 {
		dLost = 0
	}
	if dRecv < 0 {
		dRecv = 0
	}
	total := dLost + dRecv
	if total == 0 {
		return q.bitrate, false
	}
	if float64(dLost)/float64(total) <= LossThreshold {
		return q.bitrate, false
	}

	next := int(float64(q.bitrate) * BitrateBackoff)
	if next < q.floor {
		next = q.floor
	}
	if next == q.bitrate {
		return q.bitrate, false
	}
	q.bitrate = next
	return next, true
}
