package plughost

import "sync/atomic"

// TimeInfo is the transport position published to plugins.
type TimeInfo struct {
	Playing bool
	Frame   uint64
}

// transport keeps the internal clock and the published time info. The
// processing goroutine advances it, so every field is atomic.
type transport struct {
	playing atomic.Bool
	frame   atomic.Uint64

	infoPlaying atomic.Bool
	infoFrame   atomic.Uint64
}

// advance moves the clock by frames when playing and, in internal transport
// mode, publishes it.
func (t *transport) advance(frames int, internal bool) {
	if t.playing.Load() {
		t.frame.Add(uint64(frames))
	}
	if internal {
		t.infoPlaying.Store(t.playing.Load())
		t.infoFrame.Store(t.frame.Load())
	}
}

// TransportPlay starts the internal transport.
func (e *Engine) TransportPlay() { e.transport.playing.Store(true) }

// TransportPause stops the internal transport.
func (e *Engine) TransportPause() { e.transport.playing.Store(false) }

// TransportRelocate moves the internal transport to frame.
func (e *Engine) TransportRelocate(frame uint64) { e.transport.frame.Store(frame) }

// TimeInfo returns the published transport position.
func (e *Engine) TimeInfo() TimeInfo {
	return TimeInfo{
		Playing: e.transport.infoPlaying.Load(),
		Frame:   e.transport.infoFrame.Load(),
	}
}

// SetTimeInfo publishes a position from an external transport source. It is
// ignored in internal transport mode.
func (e *Engine) SetTimeInfo(ti TimeInfo) {
	if TransportMode(e.transportMode.Load()) == TransportInternal {
		return
	}
	e.transport.infoPlaying.Store(ti.Playing)
	e.transport.infoFrame.Store(ti.Frame)
}
