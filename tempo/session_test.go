package tempo

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
)

// fakeClock is a deterministic host clock for tests.
type fakeClock struct {
	mu  sync.Mutex
	now HostTime
}

func newFakeClock(start HostTime) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Micros() HostTime {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeProvider records facade calls.
type fakeProvider struct {
	mu       sync.Mutex
	active   bool
	peers    uint64
	closed   int
	state    SessionState
	commits  []SessionState
	setCalls []bool
}

func (f *fakeProvider) Capture() SessionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeProvider) Commit(s SessionState) {
	f.mu.Lock()
	f.state = s
	f.commits = append(f.commits, s)
	f.mu.Unlock()
}

func (f *fakeProvider) SetActive(active bool) {
	f.mu.Lock()
	f.active = active
	f.setCalls = append(f.setCalls, active)
	f.mu.Unlock()
}

func (f *fakeProvider) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeProvider) PeerCount() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peers
}

func (f *fakeProvider) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

func TestNew_RejectsInvalidTempo(t *testing.T) {
	for _, bpm := range []float64{0, -120} {
		if _, err := New(bpm); !errors.Is(err, ErrNonPositiveTempo) {
			t.Errorf("New(%v): want ErrNonPositiveTempo, got %v", bpm, err)
		}
	}
}

func TestSession_SoloDefaults(t *testing.T) {
	clk := newFakeClock(1_000_000)
	s, err := New(120, WithClock(clk))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	// Never activated: still a fully usable local timeline.
	if s.IsEnabled() {
		t.Error("solo session reports enabled")
	}
	if got := s.PeerCount(); got != 0 {
		t.Errorf("solo peer count = %d", got)
	}
	if got := s.Tempo(); got != 120 {
		t.Errorf("tempo = %v, want 120", got)
	}

	clk.Advance(2750 * time.Millisecond) // beat 5.5 at 120 bpm
	phase, err := s.BarPhase(4)
	if err != nil {
		t.Fatalf("BarPhase: %v", err)
	}
	if !closeTo(phase, 0.375) {
		t.Errorf("bar phase = %v, want 0.375", phase)
	}
	beat, err := s.BeatPhase()
	if err != nil {
		t.Fatalf("BeatPhase: %v", err)
	}
	if !closeTo(beat, 0.5) {
		t.Errorf("beat phase = %v, want 0.5", beat)
	}
}

func TestSession_RequestTempoPreservesBeat(t *testing.T) {
	clk := newFakeClock(0)
	s, err := New(120, WithClock(clk))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	clk.Advance(3 * time.Second) // beat 6
	before := s.Capture()
	if err := s.RequestTempo(90); err != nil {
		t.Fatalf("RequestTempo: %v", err)
	}
	after := s.Capture()
	if after.Tempo != 90 {
		t.Errorf("tempo = %v, want 90", after.Tempo)
	}
	now := clk.Micros()
	if got, want := after.BeatAtTime(now), before.BeatAtTime(now); !closeTo(got, want) {
		t.Errorf("beat at change time = %v, want %v", got, want)
	}
}

func TestSession_RequestTempoRejectsInvalid(t *testing.T) {
	s, err := New(120, WithClock(newFakeClock(0)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	if err := s.RequestTempo(-5); !errors.Is(err, ErrNonPositiveTempo) {
		t.Fatalf("RequestTempo(-5): want ErrNonPositiveTempo, got %v", err)
	}
	// Nothing reached the timeline.
	if got := s.Tempo(); got != 120 {
		t.Errorf("tempo after rejected request = %v, want 120", got)
	}
}

func TestSession_NoopCommitIsIdempotent(t *testing.T) {
	clk := newFakeClock(500_000)
	s, err := New(174, WithClock(clk))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	before := s.Capture()
	s.Commit(s.Capture())
	after := s.Capture()
	if before != after {
		t.Errorf("no-op commit changed the timeline: %+v != %+v", before, after)
	}
}

func TestSession_DelegatesToProvider(t *testing.T) {
	fp := &fakeProvider{peers: 3}
	fp.state = SessionState{Tempo: 99}
	s, err := New(120, WithProvider(fp), WithClock(newFakeClock(0)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.SetActive(true)
	if !s.IsEnabled() {
		t.Error("IsEnabled should reflect the provider")
	}
	if got := s.PeerCount(); got != 3 {
		t.Errorf("PeerCount = %d, want 3", got)
	}
	if got := s.Tempo(); got != 99 {
		t.Errorf("Tempo = %v, want 99", got)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if fp.closed != 1 {
		t.Errorf("provider closed %d times, want exactly once", fp.closed)
	}
	// Close deactivates before releasing.
	if got := fp.setCalls[len(fp.setCalls)-1]; got {
		t.Error("Close did not deactivate the provider")
	}
}

func TestSession_ConcurrentCaptureCommit(t *testing.T) {
	clk := newFakeClock(0)
	s, err := New(120, WithClock(clk))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	// Every committed state satisfies OriginBeats == 2*Tempo and
	// OriginHostTime == 3*Tempo, so a torn snapshot mixing two
	// commits is detectable field by field.
	conforming := func(bpm float64) SessionState {
		return SessionState{
			Tempo:          bpm,
			OriginBeats:    2 * bpm,
			OriginHostTime: HostTime(3 * bpm),
		}
	}
	s.Commit(conforming(120))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Commit(conforming(float64(100 + i)))
		}(i)
	}
	errs := make(chan error, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				st := s.Capture()
				if st.OriginBeats != 2*st.Tempo || st.OriginHostTime != HostTime(3*st.Tempo) {
					errs <- errors.Errorf("torn snapshot: %+v", st)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	if err := <-errs; err != nil {
		t.Fatal(err)
	}
}
