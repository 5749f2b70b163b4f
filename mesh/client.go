package mesh

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/scgolang/osc"
	"golang.org/x/sync/errgroup"

	"github.com/srMarlins/ChromaDMX/tempo"
)

// client is the follower side of the mesh: it announces itself to the
// master, measures clock offset with pings, installs state broadcasts
// into the local clock domain, and forwards local commits upstream.
type client struct {
	p    *Provider
	conn osc.Conn
	log  *slog.Logger
	est  *offsetEstimator

	host string
	port int
}

func (p *Provider) runFollower(ctx context.Context) error {
	raddr, err := p.masterAddr()
	if err != nil {
		return err
	}
	laddr, err := net.ResolveUDPAddr("udp", "0.0.0.0:0")
	if err != nil {
		return errors.Wrap(err, "resolving local address")
	}
	conn, err := osc.DialUDPContext(ctx, "udp", laddr, raddr)
	if err != nil {
		return errors.Wrapf(err, "connecting to master %s", raddr)
	}

	host, port, err := replyAddr(conn.LocalAddr())
	if err != nil {
		conn.Close()
		return err
	}
	cl := &client{
		p:    p,
		conn: conn,
		log:  p.log,
		est:  newOffsetEstimator(),
		host: host,
		port: port,
	}

	p.active.Store(true)
	p.log.Info("following sync master", "master", raddr.String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return conn.Serve(1, osc.PatternMatching{
			AddressState: logged(cl.log, cl.handleState),
			AddressPong:  logged(cl.log, cl.handlePong),
		})
	})
	g.Go(func() error {
		return cl.loop(gctx)
	})
	g.Go(func() error {
		// Sole closer of the conn; see runMaster.
		<-gctx.Done()
		return conn.Close()
	})
	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// replyAddr derives the host:port the master should send to from the
// connected socket. An unspecified local IP means loopback, same
// assumption the rest of the CLI makes for single-machine setups.
func replyAddr(local net.Addr) (string, int, error) {
	host, portStr, err := net.SplitHostPort(local.String())
	if err != nil {
		return "", 0, errors.Wrapf(err, "splitting local address %s", local)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, errors.Wrapf(err, "parsing local port %s", portStr)
	}
	if ip := net.ParseIP(host); ip == nil || ip.IsUnspecified() {
		host = "127.0.0.1"
	}
	return host, port, nil
}

func (c *client) loop(ctx context.Context) error {
	if err := c.sendHello(); err != nil {
		return errors.Wrap(err, "announcing to master")
	}
	pings := time.NewTicker(c.p.cfg.PingInterval)
	defer pings.Stop()

	// Measure the offset immediately so state installs do not have to
	// wait for the first ping tick.
	if err := c.sendPing(); err != nil {
		c.log.Warn("ping failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			// Best effort: the master expires us anyway if this is
			// lost.
			_ = c.sendBye()
			return nil
		case <-c.p.kick:
			if err := c.forwardCommit(); err != nil {
				c.log.Warn("commit forward failed", "error", err)
			}
		case <-pings.C:
			if err := c.sendPing(); err != nil {
				c.log.Warn("ping failed", "error", err)
			}
		}
	}
}

// handleState installs a master broadcast, translating host times into
// the local clock domain.
func (c *client) handleState(msg osc.Message) error {
	payload, err := statePayload(msg)
	if err != nil {
		return err
	}
	if !c.est.Ready() {
		// Master host times are meaningless until the first ping
		// round trip has measured the clock offset.
		return nil
	}
	origin := tempo.HostTime(payload.OriginHostTime).Add(-c.est.Offset())
	c.p.install(tempo.SessionState{
		Tempo:          payload.Tempo,
		OriginBeats:    payload.OriginBeats,
		OriginHostTime: origin,
		CapturedAt:     c.p.clock.Micros(),
	}, payload.Generation, payload.Peers)
	return nil
}

func (c *client) handlePong(msg osc.Message) error {
	pong, err := pingPayload(msg)
	if err != nil {
		return err
	}
	c.est.Sample(
		tempo.HostTime(pong.SentAt),
		tempo.HostTime(pong.RemoteAt),
		c.p.clock.Micros(),
	)
	return nil
}

// forwardCommit sends the locally committed timeline to the master,
// translated into the master's clock domain.
func (c *client) forwardCommit() error {
	if !c.est.Ready() {
		return errors.New("clock offset not yet measured")
	}
	state := c.p.Capture()
	msg, err := stateMessage(StatePayload{
		Tempo:          state.Tempo,
		OriginBeats:    state.OriginBeats,
		OriginHostTime: uint64(state.OriginHostTime.Add(c.est.Offset())),
		Generation:     c.p.generation.Load(),
	})
	if err != nil {
		return err
	}
	return errors.Wrap(c.conn.Send(msg), "sending state to master")
}

func (c *client) sendHello() error {
	msg, err := helloMessage(HelloPayload{Host: c.host, Port: c.port})
	if err != nil {
		return err
	}
	return errors.Wrap(c.conn.Send(msg), "sending hello")
}

func (c *client) sendBye() error {
	msg, err := byeMessage(HelloPayload{Host: c.host, Port: c.port})
	if err != nil {
		return err
	}
	return c.conn.Send(msg)
}

func (c *client) sendPing() error {
	msg, err := pingMessage(PingPayload{
		Host:   c.host,
		Port:   c.port,
		SentAt: uint64(c.p.clock.Micros()),
	})
	if err != nil {
		return err
	}
	return errors.Wrap(c.conn.Send(msg), "sending ping")
}
