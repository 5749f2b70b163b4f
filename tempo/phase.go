package tempo

import (
	"math"

	"github.com/pkg/errors"
)

// ErrNonPositiveQuantum is returned when a caller supplies a quantum
// that is zero, negative, or NaN.
var ErrNonPositiveQuantum = errors.New("quantum must be a positive number of beats")

// Phase returns the normalized position of the timeline within a cycle
// of quantum beats at the given host time. The result is always in
// [0, 1): quantum 1 yields beat phase, quantum 4 yields bar phase in
// 4/4 meter.
//
// Phase is a pure function of its arguments. It does not allocate and
// does not touch shared state, so it is safe to call from a real-time
// thread at arbitrary rates.
func Phase(s SessionState, t HostTime, quantum float64) (float64, error) {
	if !(quantum > 0) {
		return 0, ErrNonPositiveQuantum
	}
	raw := math.Mod(s.BeatAtTime(t), quantum)
	if raw < 0 {
		// Beat positions before the origin are negative; fold them
		// into the cycle.
		raw += quantum
	}
	if raw >= quantum {
		// Rounding at the wrap boundary can push raw back up to
		// exactly quantum.
		raw = 0
	}
	return raw / quantum, nil
}
