package media

import (
	"sync"
	"sync/atomic"
)

// BasicTrack carries the enabled flag and stop-once bookkeeping shared by
// track implementations. release runs on the first Stop.
type BasicTrack struct {
	id      string
	kind    Kind
	enabled atomic.Bool
	once    sync.Once
	release func()
	stopped atomic.Bool
}

// NewBasicTrack returns an enabled track
func NewBasicTrack(id string, kind Kind, release func()) *BasicTrack {
	t := &BasicTrack{id: id, kind: kind, release: release}
	t.enabled.Store(true)
	return t
}

func (t *BasicTrack) ID() string { return t.id }

func (t *BasicTrack) Kind() Kind { return t.kind }

func (t *BasicTrack) Enabled() bool { return t.enabled.Load() }

func (t *BasicTrack) SetEnabled(enabled bool) { t.enabled.Store(enabled) }

// Stopped reports whether Stop has been called
func (t *BasicTrack) Stopped() bool { return t.stopped.Load() }

func (t *BasicTrack) Stop() {
	t.once.Do(func() {
		t.stopped.Store(true)
		if t.release != nil {
			t.release()
		}
	})
}
