package mesh

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/srMarlins/ChromaDMX/tempo"
)

// Config configures a mesh provider.
type Config struct {
	// Listen is the interface address a master binds to.
	Listen string

	// Port is the master's UDP port, used on both sides.
	Port int

	// Master is the address of the master to follow, either a host or
	// host:port. Empty means this process runs as the master.
	Master string

	// Tempo is the initial proposed tempo in bpm.
	Tempo float64

	// Interval between keepalive state broadcasts.
	Interval time.Duration

	// PingInterval between follower clock offset measurements.
	PingInterval time.Duration

	// PeerTimeout after which a silent follower is dropped.
	PeerTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Listen == "" {
		c.Listen = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 500 * time.Millisecond
	}
	if c.PeerTimeout <= 0 {
		c.PeerTimeout = 5 * time.Second
	}
	return c
}

// Provider synchronizes a timeline over UDP/OSC. It implements
// tempo.Provider, running either as the mesh master (owning the
// authoritative timeline) or as a follower of a remote master.
//
// The snapshot lives behind an atomic pointer so Capture stays
// lock-free no matter what the network loops are doing.
type Provider struct {
	cfg   Config
	clock tempo.Clock
	log   *slog.Logger

	state      atomic.Pointer[tempo.SessionState]
	generation atomic.Uint64
	peers      atomic.Uint64
	active     atomic.Bool

	// kick wakes the network loop after a local commit. Capacity one:
	// the loop reads the latest snapshot, so kicks coalesce.
	kick chan struct{}

	mu     sync.Mutex // guards the lifecycle fields below and orders commits
	cancel context.CancelFunc
	done   chan struct{}
	closed bool
}

var _ tempo.Provider = (*Provider)(nil)

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithClock injects a host clock. Tests use a deterministic fake.
func WithClock(c tempo.Clock) ProviderOption {
	return func(p *Provider) { p.clock = c }
}

// WithLogger injects a logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) ProviderOption {
	return func(p *Provider) { p.log = l }
}

// NewProvider creates an inactive provider with a solo timeline at the
// configured initial tempo. No network resources are acquired until
// SetActive(true).
func NewProvider(cfg Config, opts ...ProviderOption) (*Provider, error) {
	p := &Provider{
		cfg:   cfg.withDefaults(),
		clock: tempo.SystemClock,
		log:   slog.Default(),
		kick:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	initial, err := tempo.NewSessionState(cfg.Tempo, p.clock.Micros())
	if err != nil {
		return nil, errors.Wrap(err, "creating initial timeline")
	}
	p.state.Store(&initial)
	return p, nil
}

// Capture returns the current timeline snapshot. Lock-free.
func (p *Provider) Capture() tempo.SessionState {
	return *p.state.Load()
}

// Commit installs a locally proposed timeline and wakes the network
// loop to propagate it. Commits are serialized by the lifecycle mutex;
// captures never touch it.
func (p *Provider) Commit(s tempo.SessionState) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.generation.Add(1)
	p.state.Store(&s)
	p.mu.Unlock()

	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// install records a timeline received from the mesh without kicking
// propagation. The master is authoritative: its ordering wins over any
// local generation counting.
func (p *Provider) install(s tempo.SessionState, generation, peers uint64) {
	p.mu.Lock()
	if !p.closed {
		p.generation.Store(generation)
		p.state.Store(&s)
		p.peers.Store(peers)
	}
	p.mu.Unlock()
}

// Active reports whether a sync loop is currently running with its
// transport up.
func (p *Provider) Active() bool {
	return p.active.Load()
}

// PeerCount returns the number of other mesh participants.
func (p *Provider) PeerCount() uint64 {
	return p.peers.Load()
}

// SetActive starts or stops the sync loop. Starting is asynchronous:
// the loop spins up in the background and Active flips once the
// transport is bound. Stopping cancels the loop without waiting for it
// to unwind; Close waits.
func (p *Provider) SetActive(active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !active {
		p.stopLocked()
		return
	}
	if p.closed || p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	prev := p.done
	p.cancel = cancel
	p.done = done
	go func() {
		defer close(done)
		if prev != nil {
			// A previous loop may still hold the socket.
			<-prev
		}
		if err := p.Run(ctx); err != nil && ctx.Err() == nil {
			p.log.Error("sync loop exited", "error", err)
		}
		// If the loop exited on its own (a bind or dial failure), clear
		// the lifecycle state so a later SetActive(true) can retry.
		p.mu.Lock()
		if p.done == done {
			p.stopLocked()
		}
		p.mu.Unlock()
	}()
}

func (p *Provider) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Close deactivates the provider, waits for the sync loop to release
// its transport, and drops all future commits. Safe to call more than
// once and safe if the mesh was never activated.
func (p *Provider) Close() error {
	p.mu.Lock()
	p.closed = true
	p.stopLocked()
	done := p.done
	p.done = nil
	p.mu.Unlock()

	if done != nil {
		<-done
	}
	return nil
}

// Run drives the sync loop synchronously until ctx is canceled. The
// serve command uses it directly; SetActive runs it in the background.
func (p *Provider) Run(ctx context.Context) error {
	defer p.active.Store(false)
	defer p.peers.Store(0)

	if p.cfg.Master == "" {
		return p.runMaster(ctx)
	}
	return p.runFollower(ctx)
}

// masterAddr resolves the configured master address, applying the
// configured port when none is given.
func (p *Provider) masterAddr() (*net.UDPAddr, error) {
	hostport := p.cfg.Master
	if !strings.Contains(hostport, ":") {
		hostport = net.JoinHostPort(hostport, strconv.Itoa(p.cfg.Port))
	}
	addr, err := net.ResolveUDPAddr("udp", hostport)
	return addr, errors.Wrapf(err, "resolving master address %s", hostport)
}
