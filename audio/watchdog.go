package audio

import "time"

// Watchdog wraps an upstream packet reader, recording the time of the last
// non-empty read. Update reports the session broken once the gap since
// that read exceeds the configured timeout. Failure of Update is fatal to
// its Session.
type Watchdog struct {
	upstream PacketReader
	timeout  time.Duration
	clock    Clock
	lastRead time.Time
}

// NewWatchdog builds a Watchdog. clock defaults to time.Now when nil.
func NewWatchdog(upstream PacketReader, timeout time.Duration, clock Clock) *Watchdog {
	if clock == nil {
		clock = time.Now
	}
	return &Watchdog{upstream: upstream, timeout: timeout, clock: clock, lastRead: clock()}
}

// Read implements PacketReader, passing packets through unchanged.
func (w *Watchdog) Read() (Packet, bool) {
	p, ok := w.upstream.Read()
	if ok {
		w.lastRead = w.clock()
	}
	return p, ok
}

// Update implements Tuner.
func (w *Watchdog) Update() bool {
	return w.clock().Sub(w.lastRead) <= w.timeout
}
