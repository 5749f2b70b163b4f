package tempo

import (
	"sync"
	"sync/atomic"
)

// Provider is the clock mesh capability a Session is built on. A
// provider keeps the best-known timeline and arbitrates commits, either
// locally (solo) or across a network of peers.
//
// Capture must be lock-free and allocation-free: it is called from
// real-time threads. Commit, SetActive, and Close run on control
// threads and may block briefly, but never on network round trips.
type Provider interface {
	// Capture returns the current best-known timeline snapshot.
	Capture() SessionState

	// Commit proposes a new timeline. Propagation is asynchronous;
	// commits after Close are dropped silently.
	Commit(SessionState)

	// SetActive joins or leaves the synchronization mesh. The request
	// is accepted immediately; Active reflects the authoritative
	// membership state, which may lag.
	SetActive(active bool)

	// Active reports whether the provider is currently participating
	// in a mesh.
	Active() bool

	// PeerCount returns the number of other participants sharing the
	// timeline. Zero when inactive or solo.
	PeerCount() uint64

	// Close releases provider resources. Safe to call more than once
	// and safe if the mesh was never activated.
	Close() error
}

// soloProvider keeps the timeline in process memory with no mesh
// behind it. It is the default provider for a Session and doubles as
// the fallback behavior when no mesh transport is available: captures
// and phase reads always succeed, peers are simply absent.
type soloProvider struct {
	state atomic.Pointer[SessionState]

	// mu serializes commits; captures stay lock-free.
	mu sync.Mutex
}

func newSoloProvider(initial SessionState) *soloProvider {
	p := &soloProvider{}
	p.state.Store(&initial)
	return p
}

func (p *soloProvider) Capture() SessionState {
	return *p.state.Load()
}

func (p *soloProvider) Commit(s SessionState) {
	p.mu.Lock()
	p.state.Store(&s)
	p.mu.Unlock()
}

func (p *soloProvider) SetActive(bool) {}

func (p *soloProvider) Active() bool { return false }

func (p *soloProvider) PeerCount() uint64 { return 0 }

func (p *soloProvider) Close() error { return nil }
