package session

import (
	"fmt"
	"log"
	"sync"

	"github.com/hashicorp/go-version"

	"github.com/cwsl/audioreceiver/audio"
	"github.com/cwsl/audioreceiver/metrics"
)

// Port registers a listening address with the parser to apply to
// datagrams addressed to it, and the protocol version that parser speaks.
type Port struct {
	Addr         string
	Parser       audio.PacketParser
	ProtoVersion *version.Version
}

// Datagram is the transport-agnostic ingress unit the SessionManager
// consumes: a destination address (matched against a registered port), a
// source address (the session key) and the opaque payload.
type Datagram struct {
	Dest    string
	Source  string
	Payload []byte
}

// ManagerConfig bounds the SessionManager's resource usage and names the
// protocol version range it will accept ports for.
type ManagerConfig struct {
	MaxSessions      int
	SupportedVersion *version.Constraints
}

// Manager creates, looks up, updates and retires sessions, and routes
// datagrams to them by listening port.
type Manager struct {
	mu       sync.Mutex
	cfg      ManagerConfig
	pool     Pool
	sessCfg  Config
	ports    map[string]Port
	sessions map[Key]*Session

	droppedOverCap uint64
}

// NewManager builds an empty SessionManager.
func NewManager(cfg ManagerConfig, pool Pool, sessCfg Config) *Manager {
	return &Manager{
		cfg:      cfg,
		pool:     pool,
		sessCfg:  sessCfg,
		ports:    make(map[string]Port),
		sessions: make(map[Key]*Session),
	}
}

// AddPort registers addr to accept datagrams, parsed by parser. Duplicate
// registration of the same address is a programmer error and panics.
func (m *Manager) AddPort(addr string, parser audio.PacketParser, protoVersion *version.Version) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.ports[addr]; exists {
		panic(fmt.Sprintf("session: duplicate port registration for %s", addr))
	}
	if m.cfg.SupportedVersion != nil && protoVersion != nil && !m.cfg.SupportedVersion.Check(protoVersion) {
		panic(fmt.Sprintf("session: port %s: parser protocol version %s does not satisfy %s",
			addr, protoVersion, m.cfg.SupportedVersion))
	}
	m.ports[addr] = Port{Addr: addr, Parser: parser, ProtoVersion: protoVersion}
}

// Store looks up (or creates) the session for dgm's source address on a
// registered destination port and forwards the datagram to it. A datagram
// addressed to an unregistered port is silently dropped. If creation would
// exceed max_sessions, the datagram is dropped and a counter incremented.
// A freshly created session is attached to sink before its first store, so
// the mux can read it from the very next tick.
func (m *Manager) Store(dgm Datagram, sink Sink) bool {
	m.mu.Lock()
	port, ok := m.ports[dgm.Dest]
	if !ok {
		m.mu.Unlock()
		return false
	}

	key := Key{Addr: dgm.Source, Port: dgm.Dest}
	sess, exists := m.sessions[key]
	if !exists {
		if len(m.sessions) >= m.cfg.MaxSessions {
			m.droppedOverCap++
			m.mu.Unlock()
			if audio.DebugTrace {
				log.Printf("session manager: max_sessions reached, dropping datagram from %s", dgm.Source)
			}
			return false
		}
		sess = m.pool.New(key, port.Parser)
		m.sessions[key] = sess
		sess.Attach(sink)
	}
	m.mu.Unlock()

	return sess.Store(dgm.Payload)
}

// Update iterates every live session, calling Update on each; a session
// that fails is detached from sink and returned to the pool. It always
// returns true: individual session failures never kill the server.
func (m *Manager) Update(sink Sink) bool {
	return m.update(sink, nil)
}

// UpdateWithMetrics behaves like Update, additionally counting each
// session teardown against reg.SessionsTerminated.
func (m *Manager) UpdateWithMetrics(sink Sink, reg *metrics.Registry) bool {
	return m.update(sink, reg)
}

func (m *Manager) update(sink Sink, reg *metrics.Registry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, sess := range m.sessions {
		if !sess.Update() {
			if reg != nil {
				reg.SessionsTerminated.WithLabelValues(key.String()).Inc()
			}
			sess.Detach(sink)
			m.pool.Put(sess)
			delete(m.sessions, key)
		}
	}
	return true
}

// ReportMetrics pushes every live session's current queue depth, drop
// count, resampling ratio and FEC stats into reg, labelled by session
// key. A session's removal between report calls simply stops its series
// from updating; Prometheus scrape semantics treat that as a stale
// value rather than a reset, which is acceptable for a per-sender gauge.
func (m *Manager) ReportMetrics(reg *metrics.Registry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg.LiveSessions.Set(float64(len(m.sessions)))
	reg.SessionsDropped.Add(0) // ensure the series exists even before the first drop

	for key, sess := range m.sessions {
		label := key.String()
		reg.QueueDepth.WithLabelValues(label).Set(float64(sess.QueueDepth()))
		reg.QueueDropped.WithLabelValues(label).Set(float64(sess.DroppedCount()))
		reg.ScalerRatio.WithLabelValues(label).Set(sess.Ratio())
		recovered, lost := sess.FECStats()
		reg.FECRecovered.WithLabelValues(label).Set(float64(recovered))
		reg.FECLost.WithLabelValues(label).Set(float64(lost))
	}
}

// AttachAll attaches every live session's readers onto sink. Store already
// attaches each session it creates; AttachAll is for bulk reattachment,
// e.g. after a sink swap.
func (m *Manager) AttachAll(sink Sink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sess := range m.sessions {
		sess.Attach(sink)
	}
}

// NumSessions returns the current live session count.
func (m *Manager) NumSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// DroppedOverCap reports how many datagrams were dropped for want of a new
// session slot.
func (m *Manager) DroppedOverCap() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.droppedOverCap
}
