package tempo

import (
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
)

const epsilon = 1e-9

func closeTo(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestNewSessionState_RejectsInvalidTempo(t *testing.T) {
	for _, bpm := range []float64{0, -5, -120, math.NaN(), math.Inf(1)} {
		if _, err := NewSessionState(bpm, 0); !errors.Is(err, ErrNonPositiveTempo) {
			t.Errorf("NewSessionState(%v): want ErrNonPositiveTempo, got %v", bpm, err)
		}
	}
}

func TestBeatAtTime_Linear(t *testing.T) {
	state, err := NewSessionState(120, 1_000_000)
	if err != nil {
		t.Fatalf("NewSessionState: %v", err)
	}
	// 120 bpm is 2 beats per second.
	tests := []struct {
		at   HostTime
		want float64
	}{
		{1_000_000, 0},
		{1_500_000, 1},
		{2_000_000, 2},
		{11_000_000, 20},
		{0, -2}, // before the origin
	}
	for _, tt := range tests {
		if got := state.BeatAtTime(tt.at); !closeTo(got, tt.want) {
			t.Errorf("BeatAtTime(%d) = %v, want %v", tt.at, got, tt.want)
		}
	}
}

func TestTimeAtBeat_InvertsBeatAtTime(t *testing.T) {
	state, err := NewSessionState(97.3, 5_000_000)
	if err != nil {
		t.Fatalf("NewSessionState: %v", err)
	}
	for _, beats := range []float64{0, 1, 5.5, 16, 123.456, -3} {
		at := state.TimeAtBeat(beats)
		if got := state.BeatAtTime(at); math.Abs(got-beats) > 1e-6 {
			t.Errorf("BeatAtTime(TimeAtBeat(%v)) = %v", beats, got)
		}
	}
}

func TestWithTempo_PreservesBeatAtChangeTime(t *testing.T) {
	state, err := NewSessionState(120, 1_000_000)
	if err != nil {
		t.Fatalf("NewSessionState: %v", err)
	}
	for _, tt := range []struct {
		bpm float64
		at  HostTime
	}{
		{90, 11_000_000},
		{174, 2_250_000},
		{60.5, 1_000_000},
		{33, 500_000}, // change before the origin
	} {
		next, err := state.WithTempo(tt.bpm, tt.at)
		if err != nil {
			t.Fatalf("WithTempo(%v, %d): %v", tt.bpm, tt.at, err)
		}
		if got, want := next.BeatAtTime(tt.at), state.BeatAtTime(tt.at); !closeTo(got, want) {
			t.Errorf("WithTempo(%v, %d): beat at change = %v, want %v", tt.bpm, tt.at, got, want)
		}
		if next.Tempo != tt.bpm {
			t.Errorf("WithTempo(%v, %d): tempo = %v", tt.bpm, tt.at, next.Tempo)
		}
		// Slope changes going forward.
		later := tt.at.Add(time.Second)
		want := next.BeatAtTime(tt.at) + tt.bpm/60
		if got := next.BeatAtTime(later); !closeTo(got, want) {
			t.Errorf("WithTempo(%v, %d): beat one second later = %v, want %v", tt.bpm, tt.at, got, want)
		}
	}
}

func TestWithTempo_RejectsInvalidTempo(t *testing.T) {
	state, err := NewSessionState(120, 0)
	if err != nil {
		t.Fatalf("NewSessionState: %v", err)
	}
	for _, bpm := range []float64{0, -5, math.NaN()} {
		if _, err := state.WithTempo(bpm, 1_000_000); !errors.Is(err, ErrNonPositiveTempo) {
			t.Errorf("WithTempo(%v): want ErrNonPositiveTempo, got %v", bpm, err)
		}
	}
}

func TestWithTempo_DoesNotMutateReceiver(t *testing.T) {
	state, err := NewSessionState(120, 0)
	if err != nil {
		t.Fatalf("NewSessionState: %v", err)
	}
	if _, err := state.WithTempo(90, 1_000_000); err != nil {
		t.Fatalf("WithTempo: %v", err)
	}
	if state.Tempo != 120 || state.OriginBeats != 0 {
		t.Errorf("receiver mutated: %+v", state)
	}
}

func TestHostTime_SubAdd(t *testing.T) {
	var a HostTime = 5_000_000
	b := a.Add(1500 * time.Millisecond)
	if b != 6_500_000 {
		t.Fatalf("Add = %d, want 6500000", b)
	}
	if got := b.Sub(a); got != 1500*time.Millisecond {
		t.Errorf("Sub = %v, want 1.5s", got)
	}
	if got := a.Sub(b); got != -1500*time.Millisecond {
		t.Errorf("reverse Sub = %v, want -1.5s", got)
	}
	if got := a.Add(-2 * time.Second); got != 3_000_000 {
		t.Errorf("Add(-2s) = %d, want 3000000", got)
	}
}
