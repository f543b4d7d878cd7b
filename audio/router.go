package audio

import "log"

// Router dispatches parsed packets to the per-type queue registered for
// their PacketType. Routing is O(1): in practice there are at most two
// routes per session (audio, FEC).
type Router struct {
	routes map[PacketType]PacketWriter
}

// NewRouter builds an empty router.
func NewRouter() *Router {
	return &Router{routes: make(map[PacketType]PacketWriter, 2)}
}

// AddRoute registers the sink for a packet type. Registering the same type
// twice is a programmer error and panics immediately.
func (r *Router) AddRoute(t PacketType, sink PacketWriter) {
	if _, exists := r.routes[t]; exists {
		panic("audio: duplicate route registration for packet type")
	}
	r.routes[t] = sink
}

// Write forwards the packet to its registered sink. A packet type with no
// registered route is dropped with a trace log.
func (r *Router) Write(p Packet) {
	sink, ok := r.routes[p.Type()]
	if !ok {
		if DebugTrace {
			log.Printf("audio: router: dropping unrouted packet type %v", p.Type())
		}
		return
	}
	sink.Write(p)
}

// DebugTrace gates trace-level logging across the audio package, mirroring
// the teacher's package-level DebugMode switch.
var DebugTrace = false
