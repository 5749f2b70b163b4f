// Package tempo models a shared musical clock.
//
// A Session wraps a Provider, which keeps the authoritative timeline:
// a tempo in beats per minute and a mapping from host time to beat
// position. Callers read the timeline by capturing an immutable
// SessionState snapshot, derive a modified snapshot locally, and commit
// it back. Capture and phase computation are lock-free and
// allocation-free so they can run on a real-time render thread; commits
// and mesh membership changes happen off that thread.
//
// Phase converts a snapshot into a normalized position in [0, 1) within
// a quantum of beats: quantum 1 gives beat phase, quantum 4 gives bar
// phase in 4/4. Applications poll it at render rates (60-100 Hz) to
// drive lighting or audio scheduling in lock-step with other devices.
package tempo
