package tempo

import (
	"math"

	"github.com/pkg/errors"
)

const microsPerMinute = 60e6

// ErrNonPositiveTempo is returned when a caller supplies a tempo that is
// zero, negative, or not finite. Invalid tempos are rejected outright
// rather than clamped so a caller bug cannot silently distort the
// timeline.
var ErrNonPositiveTempo = errors.New("tempo must be a positive finite number of bpm")

// SessionState is an immutable snapshot of the shared timeline: a tempo
// and a linear mapping from host time to beat position. Snapshots are
// plain values; deriving a modified snapshot never affects the shared
// state until it is committed back through a Provider.
type SessionState struct {
	// Tempo is the tempo in beats per minute. Always positive.
	Tempo float64

	// OriginBeats is the beat position at OriginHostTime. Together with
	// Tempo they define beatAtTime for every host time.
	OriginBeats    float64
	OriginHostTime HostTime

	// CapturedAt is the host time at which this snapshot was taken.
	CapturedAt HostTime
}

// NewSessionState returns a timeline starting at beat zero at the given
// host time.
func NewSessionState(bpm float64, at HostTime) (SessionState, error) {
	if !validTempo(bpm) {
		return SessionState{}, errors.Wrapf(ErrNonPositiveTempo, "%v bpm", bpm)
	}
	return SessionState{
		Tempo:          bpm,
		OriginHostTime: at,
		CapturedAt:     at,
	}, nil
}

// BeatAtTime returns the beat position at the given host time. The
// mapping is linear: beats grow by Tempo/60 per second.
func (s SessionState) BeatAtTime(t HostTime) float64 {
	elapsed := float64(int64(t) - int64(s.OriginHostTime))
	return s.OriginBeats + elapsed*s.Tempo/microsPerMinute
}

// TimeAtBeat returns the host time at which the given beat position is
// reached. Inverse of BeatAtTime.
func (s SessionState) TimeAtBeat(beats float64) HostTime {
	micros := (beats - s.OriginBeats) * microsPerMinute / s.Tempo
	return HostTime(int64(s.OriginHostTime) + int64(math.Round(micros)))
}

// WithTempo derives a snapshot with a new tempo taking effect at the
// given host time. The beat position at that moment is preserved, so a
// tempo change never introduces a phase discontinuity: only the slope
// of the timeline changes going forward.
func (s SessionState) WithTempo(bpm float64, at HostTime) (SessionState, error) {
	if !validTempo(bpm) {
		return SessionState{}, errors.Wrapf(ErrNonPositiveTempo, "%v bpm", bpm)
	}
	next := s
	next.Tempo = bpm
	next.OriginBeats = s.BeatAtTime(at)
	next.OriginHostTime = at
	return next, nil
}

// PhaseAtTime reports the snapshot's phase at the given host time. See
// Phase.
func (s SessionState) PhaseAtTime(t HostTime, quantum float64) (float64, error) {
	return Phase(s, t, quantum)
}

func validTempo(bpm float64) bool {
	return bpm > 0 && !math.IsInf(bpm, 1)
}
