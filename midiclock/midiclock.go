// Package midiclock drives external MIDI gear from a tempo session by
// emitting standard realtime clock messages at 24 pulses per quarter
// note.
package midiclock

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"

	"github.com/srMarlins/ChromaDMX/tempo"
)

// TicksPerBeat is the MIDI realtime clock rate.
const TicksPerBeat = 24

// SendFunc delivers a MIDI message to an output port.
type SendFunc func(midi.Message) error

// Runner polls a session and sends TimingClock messages aligned to the
// shared timeline. Tempo changes take effect at the next tick: each
// delay is recomputed from a fresh capture, so the tick grid follows
// the session without accumulating drift.
type Runner struct {
	session *tempo.Session
	send    SendFunc
}

// New creates a runner for the given session and output.
func New(session *tempo.Session, send SendFunc) (*Runner, error) {
	if session == nil {
		return nil, errors.New("midiclock: session must not be nil")
	}
	if send == nil {
		return nil, errors.New("midiclock: send func must not be nil")
	}
	return &Runner{session: session, send: send}, nil
}

// Run emits Start, then TimingClock ticks until ctx is canceled, then
// Stop.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.send(midi.Start()); err != nil {
		return errors.Wrap(err, "sending midi start")
	}
	defer func() {
		_ = r.send(midi.Stop())
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()
	if !timer.Stop() {
		<-timer.C
	}

	for {
		state := r.session.Capture()
		timer.Reset(nextTick(state, r.session.Now()))
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			if err := r.send(midi.TimingClock()); err != nil {
				return errors.Wrap(err, "sending midi clock")
			}
		}
	}
}

// nextTick returns the wait from now until the next 24-PPQN tick on
// the timeline.
func nextTick(s tempo.SessionState, now tempo.HostTime) time.Duration {
	ticks := s.BeatAtTime(now) * TicksPerBeat
	next := math.Floor(ticks+1) / TicksPerBeat
	d := s.TimeAtBeat(next).Sub(now)
	if d <= 0 {
		d = time.Microsecond
	}
	return d
}
