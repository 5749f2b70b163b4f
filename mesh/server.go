package mesh

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/scgolang/osc"
	"golang.org/x/sync/errgroup"

	"github.com/srMarlins/ChromaDMX/tempo"
)

// follower is a peer that announced itself to the master.
type follower struct {
	addr     *net.UDPAddr
	lastSeen tempo.HostTime
}

// master owns the authoritative timeline for a mesh. It rebroadcasts
// state on every commit, on follower joins, and on a keepalive
// interval, and expires followers that stop pinging.
type master struct {
	p    *Provider
	conn osc.Conn
	log  *slog.Logger

	mu        sync.Mutex
	followers map[string]*follower
}

func (p *Provider) runMaster(ctx context.Context) error {
	laddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(p.cfg.Listen, strconv.Itoa(p.cfg.Port)))
	if err != nil {
		return errors.Wrap(err, "resolving listen address")
	}
	conn, err := osc.ListenUDPContext(ctx, "udp", laddr)
	if err != nil {
		return errors.Wrap(err, "creating OSC server")
	}

	p.active.Store(true)
	p.log.Info("sync master listening", "addr", laddr.String(), "tempo", p.Capture().Tempo)

	srv := &master{p: p, conn: conn, log: p.log, followers: make(map[string]*follower)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.conn.Serve(1, osc.PatternMatching{
			AddressHello: logged(srv.log, srv.handleHello),
			AddressBye:   logged(srv.log, srv.handleBye),
			AddressPing:  logged(srv.log, srv.handlePing),
			AddressState: logged(srv.log, srv.handleState),
			AddressTempo: logged(srv.log, srv.handleTempo),
		})
	})
	g.Go(func() error {
		return srv.loop(gctx)
	})
	g.Go(func() error {
		// Closing the conn unblocks Serve when the loop winds down.
		// This goroutine is the only closer; a second Close would
		// panic inside the transport.
		<-gctx.Done()
		return conn.Close()
	})
	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// logged wraps a handler so a malformed packet from one peer is
// dropped with a warning instead of tearing down the serve loop for
// the whole mesh.
func logged(log *slog.Logger, fn func(osc.Message) error) osc.Method {
	return osc.Method(func(msg osc.Message) error {
		if err := fn(msg); err != nil {
			log.Warn("dropping message", "address", msg.Address, "error", err)
		}
		return nil
	})
}

// loop is the master's broadcast loop: state goes out after every
// commit and on the keepalive tick, which also expires silent
// followers.
func (m *master) loop(ctx context.Context) error {
	ticker := time.NewTicker(m.p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.p.kick:
			if err := m.broadcast(); err != nil {
				m.log.Warn("state broadcast failed", "error", err)
			}
		case <-ticker.C:
			m.expire()
			if err := m.broadcast(); err != nil {
				m.log.Warn("state broadcast failed", "error", err)
			}
		}
	}
}

// handleHello registers a follower and sends it the timeline right
// away instead of making it wait for the next keepalive.
func (m *master) handleHello(msg osc.Message) error {
	hello, err := helloPayload(msg)
	if err != nil {
		return err
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(hello.Host, strconv.Itoa(hello.Port)))
	if err != nil {
		return errors.Wrap(err, "resolving follower address")
	}

	key := addr.String()
	m.mu.Lock()
	_, known := m.followers[key]
	m.followers[key] = &follower{addr: addr, lastSeen: m.p.clock.Micros()}
	count := uint64(len(m.followers))
	m.mu.Unlock()
	m.p.peers.Store(count)

	if !known {
		m.log.Info("follower joined", "addr", key, "peers", count)
	}
	state, err := stateMessage(m.payload(count))
	if err != nil {
		return err
	}
	return errors.Wrapf(m.conn.SendTo(addr, state), "sending state to %s", key)
}

func (m *master) handleBye(msg osc.Message) error {
	hello, err := helloPayload(msg)
	if err != nil {
		return err
	}
	key := net.JoinHostPort(hello.Host, strconv.Itoa(hello.Port))
	m.mu.Lock()
	delete(m.followers, key)
	count := uint64(len(m.followers))
	m.mu.Unlock()
	m.p.peers.Store(count)
	m.log.Info("follower left", "addr", key, "peers", count)
	return nil
}

// handlePing echoes the payload back with the master clock stamped in,
// and counts as liveness for the follower.
func (m *master) handlePing(msg osc.Message) error {
	ping, err := pingPayload(msg)
	if err != nil {
		return err
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(ping.Host, strconv.Itoa(ping.Port)))
	if err != nil {
		return errors.Wrap(err, "resolving ping reply address")
	}
	m.markSeen(addr)

	ping.RemoteAt = uint64(m.p.clock.Micros())
	pong, err := pongMessage(ping)
	if err != nil {
		return err
	}
	return errors.Wrapf(m.conn.SendTo(addr, pong), "sending pong to %s", addr)
}

// handleState accepts a commit forwarded by a follower. Arbitration is
// last-write-wins in arrival order; the rebroadcast happens via the
// commit kick.
func (m *master) handleState(msg osc.Message) error {
	payload, err := statePayload(msg)
	if err != nil {
		return err
	}
	m.p.Commit(tempo.SessionState{
		Tempo:          payload.Tempo,
		OriginBeats:    payload.OriginBeats,
		OriginHostTime: tempo.HostTime(payload.OriginHostTime),
		CapturedAt:     m.p.clock.Micros(),
	})
	return nil
}

// handleTempo serves both tempo queries (reply address as string and
// int arguments) and tempo changes (a single float argument).
func (m *master) handleTempo(msg osc.Message) error {
	if len(msg.Arguments) == 0 {
		return errors.New("expected at least one argument")
	}
	if host, err := msg.Arguments[0].ReadString(); err == nil {
		return m.replyTempo(msg, host)
	}
	bpm, err := msg.Arguments[0].ReadFloat32()
	if err != nil {
		return errors.Wrap(err, "reading tempo argument")
	}
	next, err := m.p.Capture().WithTempo(float64(bpm), m.p.clock.Micros())
	if err != nil {
		return errors.Wrapf(err, "applying tempo %v", bpm)
	}
	m.p.Commit(next)
	m.log.Info("tempo changed", "bpm", bpm)
	return nil
}

func (m *master) replyTempo(msg osc.Message, host string) error {
	if len(msg.Arguments) < 2 {
		return errors.New("expected a port argument in tempo query")
	}
	port, err := msg.Arguments[1].ReadInt32()
	if err != nil {
		return errors.Wrap(err, "reading tempo query port")
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return errors.Wrap(err, "resolving tempo query address")
	}
	return m.conn.SendTo(addr, osc.Message{
		Address: AddressReply,
		Arguments: osc.Arguments{
			osc.String(AddressTempo),
			osc.Float(float32(m.p.Capture().Tempo)),
		},
	})
}

func (m *master) markSeen(addr *net.UDPAddr) {
	key := addr.String()
	m.mu.Lock()
	if f, ok := m.followers[key]; ok {
		f.lastSeen = m.p.clock.Micros()
	} else {
		// Pings from unknown addresses re-register followers that
		// were expired during a network hiccup.
		m.followers[key] = &follower{addr: addr, lastSeen: m.p.clock.Micros()}
	}
	count := uint64(len(m.followers))
	m.mu.Unlock()
	m.p.peers.Store(count)
}

func (m *master) broadcast() error {
	m.mu.Lock()
	addrs := make([]*net.UDPAddr, 0, len(m.followers))
	for _, f := range m.followers {
		addrs = append(addrs, f.addr)
	}
	m.mu.Unlock()

	msg, err := stateMessage(m.payload(uint64(len(addrs))))
	if err != nil {
		return err
	}
	for _, addr := range addrs {
		if err := m.conn.SendTo(addr, msg); err != nil {
			return errors.Wrapf(err, "sending state to %s", addr)
		}
	}
	return nil
}

func (m *master) payload(peers uint64) StatePayload {
	state := m.p.Capture()
	return StatePayload{
		Tempo:          state.Tempo,
		OriginBeats:    state.OriginBeats,
		OriginHostTime: uint64(state.OriginHostTime),
		Generation:     m.p.generation.Load(),
		Peers:          peers,
	}
}

func (m *master) expire() {
	cutoff := m.p.clock.Micros().Add(-m.p.cfg.PeerTimeout)
	m.mu.Lock()
	for key, f := range m.followers {
		if int64(f.lastSeen) < int64(cutoff) {
			delete(m.followers, key)
			m.log.Info("follower expired", "addr", key)
		}
	}
	count := uint64(len(m.followers))
	m.mu.Unlock()
	m.p.peers.Store(count)
}
