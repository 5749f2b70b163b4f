package tempo

import (
	"sync"

	"github.com/pkg/errors"
)

// DefaultBarQuantum is the bar length in beats assumed by BarPhase when
// the meter is 4/4.
const DefaultBarQuantum = 4.0

// Session is the application-facing handle to the shared clock. It
// owns exactly one Provider for its lifetime and adds the capture,
// mutate, commit lifecycle plus phase computation on top of it.
//
// A session that is never activated behaves as a solo timeline:
// Capture and the phase methods return valid results and PeerCount is
// zero.
type Session struct {
	provider Provider
	clock    Clock

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Session.
type Option func(*Session)

// WithProvider injects a clock mesh provider. The session takes
// ownership: the provider is closed exactly once when the session is
// closed.
func WithProvider(p Provider) Option {
	return func(s *Session) { s.provider = p }
}

// WithClock injects a host clock. Tests use a deterministic fake.
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// New creates a session proposing the given initial tempo. Without a
// WithProvider option the session runs solo.
func New(bpm float64, opts ...Option) (*Session, error) {
	s := &Session{clock: SystemClock}
	for _, opt := range opts {
		opt(s)
	}
	if !validTempo(bpm) {
		return nil, errors.Wrapf(ErrNonPositiveTempo, "%v bpm", bpm)
	}
	if s.provider == nil {
		initial, err := NewSessionState(bpm, s.clock.Micros())
		if err != nil {
			return nil, errors.Wrap(err, "creating initial timeline")
		}
		s.provider = newSoloProvider(initial)
	}
	return s, nil
}

// Now returns the current host time from the session's clock.
func (s *Session) Now() HostTime {
	return s.clock.Micros()
}

// Capture returns the current timeline snapshot. Safe to call from a
// real-time thread.
func (s *Session) Capture() SessionState {
	return s.provider.Capture()
}

// Commit proposes a modified snapshot back to the mesh.
func (s *Session) Commit(state SessionState) {
	s.provider.Commit(state)
}

// SetActive joins or leaves the synchronization mesh.
func (s *Session) SetActive(active bool) {
	s.provider.SetActive(active)
}

// IsEnabled reports whether the session is participating in a mesh.
// The provider is the source of truth; membership can change due to
// external events such as network loss.
func (s *Session) IsEnabled() bool {
	return s.provider.Active()
}

// PeerCount returns the number of other participants sharing the
// timeline.
func (s *Session) PeerCount() uint64 {
	return s.provider.PeerCount()
}

// Tempo returns the current tempo in beats per minute.
func (s *Session) Tempo() float64 {
	return s.provider.Capture().Tempo
}

// Phase returns the normalized phase in [0, 1) within a cycle of
// quantum beats, as of now.
func (s *Session) Phase(quantum float64) (float64, error) {
	return Phase(s.provider.Capture(), s.clock.Micros(), quantum)
}

// BeatPhase returns the phase within the current beat.
func (s *Session) BeatPhase() (float64, error) {
	return s.Phase(1)
}

// BarPhase returns the phase within a bar of beatsPerBar beats.
func (s *Session) BarPhase(beatsPerBar float64) (float64, error) {
	return s.Phase(beatsPerBar)
}

// RequestTempo captures the timeline, changes its tempo effective now,
// and commits it. The beat position at the moment of change is
// preserved. Invalid tempos are rejected before anything reaches the
// mesh.
func (s *Session) RequestTempo(bpm float64) error {
	state := s.provider.Capture()
	next, err := state.WithTempo(bpm, s.clock.Micros())
	if err != nil {
		return errors.Wrapf(err, "requesting tempo %v", bpm)
	}
	s.provider.Commit(next)
	return nil
}

// Close leaves the mesh and releases the provider. Idempotent, and
// safe even if the mesh was never activated.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.provider.SetActive(false)
		s.closeErr = s.provider.Close()
	})
	return s.closeErr
}
