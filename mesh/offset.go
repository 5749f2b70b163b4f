package mesh

import (
	"sync"
	"time"

	"github.com/srMarlins/ChromaDMX/tempo"
)

const offsetWindow = 8

// offsetSample is one measured round trip to the master.
type offsetSample struct {
	offset time.Duration
	rtt    time.Duration
}

// offsetEstimator tracks the difference between the master's host
// clock and the local one. Host times are process-local, so every
// timestamp crossing the wire must be translated through this
// estimate.
//
// Estimation assumes the master's stamp sits at the midpoint of the
// local send/receive pair. The sample with the smallest round trip
// time in a sliding window wins, since a low RTT bounds the asymmetry
// error.
type offsetEstimator struct {
	mu      sync.Mutex
	samples []offsetSample
	next    int
}

func newOffsetEstimator() *offsetEstimator {
	return &offsetEstimator{samples: make([]offsetSample, 0, offsetWindow)}
}

// Sample records a round trip. sentAt and receivedAt are local stamps;
// remoteAt is the master stamp taken between them.
func (e *offsetEstimator) Sample(sentAt, remoteAt, receivedAt tempo.HostTime) {
	rtt := receivedAt.Sub(sentAt)
	if rtt < 0 {
		return
	}
	mid := sentAt.Add(rtt / 2)
	s := offsetSample{offset: remoteAt.Sub(mid), rtt: rtt}

	e.mu.Lock()
	if len(e.samples) < offsetWindow {
		e.samples = append(e.samples, s)
	} else {
		e.samples[e.next] = s
	}
	e.next = (e.next + 1) % offsetWindow
	e.mu.Unlock()
}

// Offset returns the best current estimate of master time minus local
// time. Zero until the first sample arrives.
func (e *offsetEstimator) Offset() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.samples) == 0 {
		return 0
	}
	best := e.samples[0]
	for _, s := range e.samples[1:] {
		if s.rtt < best.rtt {
			best = s
		}
	}
	return best.offset
}

// Ready reports whether at least one round trip has been measured.
func (e *offsetEstimator) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.samples) > 0
}
