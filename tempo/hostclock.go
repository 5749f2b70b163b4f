package tempo

import "time"

// HostTime is a monotonic timestamp in microseconds. Values are only
// comparable within the process that produced them; the mesh layer
// translates host times between clock domains before exchanging state.
type HostTime uint64

// Sub returns the signed duration from u to t.
func (t HostTime) Sub(u HostTime) time.Duration {
	return time.Duration(int64(t)-int64(u)) * time.Microsecond
}

// Add returns t shifted by d. Negative durations move the time backward.
func (t HostTime) Add(d time.Duration) HostTime {
	return HostTime(int64(t) + int64(d/time.Microsecond))
}

// Clock produces host times.
type Clock interface {
	Micros() HostTime
}

// hostClock reads the runtime monotonic clock, anchored at process
// start so host times never jump with wall-clock adjustments.
type hostClock struct {
	epoch time.Time
}

func (c hostClock) Micros() HostTime {
	return HostTime(time.Since(c.epoch) / time.Microsecond)
}

// SystemClock is the default Clock used by sessions.
var SystemClock Clock = hostClock{epoch: time.Now()}
