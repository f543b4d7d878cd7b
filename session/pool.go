package session

import "github.com/cwsl/audioreceiver/audio"

// Pool is the external Session allocator referenced by spec.md §6's
// session_pool config option. The SessionManager is the pool's only
// caller: it asks for a session on first datagram from a new key, and
// returns it on teardown, always after detaching it from the mux (spec.md
// §4.11's ordering invariant).
type Pool interface {
	New(key Key, parser audio.PacketParser) *Session
	Put(*Session)
}

// DefaultPool allocates a fresh Session on New and drops it on Put,
// relying on the garbage collector. It satisfies the non-null session_pool
// requirement without imposing pooling semantics nobody asked for.
type DefaultPool struct {
	cfg Config
}

// NewDefaultPool builds a DefaultPool that constructs sessions with cfg.
func NewDefaultPool(cfg Config) *DefaultPool {
	return &DefaultPool{cfg: cfg}
}

// New implements Pool.
func (p *DefaultPool) New(key Key, parser audio.PacketParser) *Session {
	return New(key, parser, p.cfg)
}

// Put implements Pool. The session and its embedded stage storage become
// garbage once detached and dropped.
func (p *DefaultPool) Put(*Session) {}
