package calibration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pollInterval = 200 * time.Millisecond

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// feedUntil polls readings in order every pollInterval starting at start
// and stops at the first captured point. It returns the capture event, the
// time of the last poll and how many polls were made.
func feedUntil(s *Session, start time.Time, readings []int32) (Event, time.Time, int) {
	now := start
	for i, r := range readings {
		now = start.Add(time.Duration(i) * pollInterval)
		if ev := s.Poll(r, now); ev.Captured() {
			return ev, now, i + 1
		}
	}
	return EventNone, now, len(readings)
}

func repeat(pattern []int32, n int) []int32 {
	out := make([]int32, 0, n)
	for i := range n {
		out = append(out, pattern[i%len(pattern)])
	}
	return out
}

func TestSession_IdleIgnoresPolls(t *testing.T) {
	s := NewSession(DefaultConfig())
	assert.Equal(t, Idle, s.Step())
	assert.Equal(t, EventNone, s.Poll(100, t0))
	assert.False(t, s.Active())
	_, ok := s.Result()
	assert.False(t, ok)
}

func TestSession_FirstReadingOnlyArms(t *testing.T) {
	s := NewSession(DefaultConfig())
	s.Start()

	assert.Equal(t, EventArmed, s.Poll(1000, t0))
	assert.False(t, s.Stable())
	assert.Equal(t, EventAccumulated, s.Poll(1005, t0.Add(pollInterval)))
	assert.True(t, s.Stable())
	assert.Equal(t, EventReset, s.Poll(1100, t0.Add(2*pollInterval)))
	assert.False(t, s.Stable())
}

func TestSession_OscillationNeverCompletes(t *testing.T) {
	s := NewSession(DefaultConfig())
	s.Start()

	// ±20 swings exceed the 15 unit tolerance on every poll.
	readings := repeat([]int32{1000, 1020, 1000, 980}, 1000)
	ev, _, _ := feedUntil(s, t0, readings)

	assert.Equal(t, EventNone, ev)
	assert.Equal(t, AwaitingEmpty, s.Step())
	assert.False(t, s.Stable())
}

func TestSession_StableWindowCapturesMean(t *testing.T) {
	s := NewSession(DefaultConfig())
	s.Start()

	// The arming reading differs from the rest so counting it would move the mean.
	readings := append([]int32{5012}, repeat([]int32{5000, 5010, 5004, 4998}, 200)...)
	ev, at, polls := feedUntil(s, t0, readings)

	require.Equal(t, EventEmptyCaptured, ev)
	assert.Equal(t, t0.Add(DefaultMinStable), at)
	assert.Equal(t, 51, polls)

	var sum int64
	for _, r := range readings[1:polls] {
		sum += int64(r)
	}
	want := int32(sum / int64(polls-1))
	assert.Equal(t, want, s.Empty())
	assert.Equal(t, AwaitingFull, s.Step())
	assert.False(t, s.Stable(), "window is cleared after a capture")
}

func TestSession_ExcursionRestartsTimer(t *testing.T) {
	s := NewSession(DefaultConfig())
	s.Start()

	stable := repeat([]int32{2000, 2005}, 41) // 8s of stable readings
	_, _, polls := feedUntil(s, t0, stable)
	require.Equal(t, len(stable), polls)
	assert.Equal(t, 8*time.Second, s.Stabilized(t0.Add(8*time.Second)))

	jumpAt := t0.Add(time.Duration(polls) * pollInterval)
	assert.Equal(t, EventReset, s.Poll(2500, jumpAt))
	assert.Equal(t, time.Duration(0), s.Stabilized(jumpAt))

	ev, at, _ := feedUntil(s, jumpAt.Add(pollInterval), repeat([]int32{2502, 2498}, 100))
	require.Equal(t, EventEmptyCaptured, ev)
	assert.Equal(t, jumpAt.Add(DefaultMinStable), at)
	assert.Equal(t, int32(2500), s.Empty())
}

func TestSession_FullSequence(t *testing.T) {
	s := NewSession(Config{Tolerance: 15, MinStable: 2 * time.Second})
	s.Start()

	ev, at, _ := feedUntil(s, t0, repeat([]int32{-300}, 100))
	require.Equal(t, EventEmptyCaptured, ev)
	assert.Equal(t, AwaitingFull, s.Step())

	// Loading the container is one excursion, then it settles.
	ev, _, _ = feedUntil(s, at.Add(pollInterval), append([]int32{-300, 4200}, repeat([]int32{4210, 4200}, 100)...))
	require.Equal(t, EventFullCaptured, ev)
	assert.Equal(t, Done, s.Step())
	assert.False(t, s.Active())

	res, ok := s.Result()
	require.True(t, ok)
	assert.Equal(t, int32(-300), res.Empty)
	assert.Equal(t, int32(4205), res.Full)
	assert.Equal(t, int32(4505), res.Span())

	// Done is terminal until a new run starts.
	assert.Equal(t, EventNone, s.Poll(0, at.Add(time.Hour)))
	s.Start()
	assert.Equal(t, AwaitingEmpty, s.Step())
	_, ok = s.Result()
	assert.False(t, ok)
}

func TestSession_HoldBetweenSteps(t *testing.T) {
	s := NewSession(Config{Tolerance: 15, MinStable: time.Second, HoldBetweenSteps: true})
	s.Start()
	assert.False(t, s.Continue(), "nothing to continue before the empty point")

	ev, at, _ := feedUntil(s, t0, repeat([]int32{10}, 20))
	require.Equal(t, EventEmptyCaptured, ev)
	assert.True(t, s.Held())

	// Held: readings are ignored however long they stay stable.
	ev, at, _ = feedUntil(s, at.Add(pollInterval), repeat([]int32{900}, 50))
	assert.Equal(t, EventNone, ev)
	assert.Equal(t, AwaitingFull, s.Step())
	assert.Equal(t, time.Duration(0), s.Remaining(at))

	assert.True(t, s.Continue())
	assert.False(t, s.Held())
	assert.False(t, s.Continue())

	ev, _, _ = feedUntil(s, at.Add(pollInterval), repeat([]int32{900}, 20))
	require.Equal(t, EventFullCaptured, ev)
	res, ok := s.Result()
	require.True(t, ok)
	assert.Equal(t, Result{Empty: 10, Full: 900}, res)
}

func TestSession_Cancel(t *testing.T) {
	s := NewSession(Config{Tolerance: 15, MinStable: time.Second})
	s.Start()

	ev, at, _ := feedUntil(s, t0, repeat([]int32{10}, 20))
	require.Equal(t, EventEmptyCaptured, ev)
	s.Poll(500, at.Add(pollInterval))
	s.Poll(500, at.Add(2*pollInterval))
	require.True(t, s.Stable())

	s.Cancel()
	assert.Equal(t, Idle, s.Step())
	assert.False(t, s.Stable())
	assert.Equal(t, int32(0), s.Empty())
	assert.Equal(t, time.Duration(0), s.Stabilized(at.Add(time.Minute)))
	assert.Equal(t, EventNone, s.Poll(500, at.Add(3*pollInterval)))
}

func TestSession_Remaining(t *testing.T) {
	s := NewSession(DefaultConfig())
	s.Start()
	assert.Equal(t, DefaultMinStable, s.Remaining(t0))

	s.Poll(100, t0)
	s.Poll(101, t0.Add(time.Second))
	assert.Equal(t, 9*time.Second, s.Remaining(t0.Add(time.Second)))
	assert.Equal(t, time.Duration(0), s.Remaining(t0.Add(time.Minute)))
}

func TestStepAndEventStrings(t *testing.T) {
	assert.Equal(t, "awaiting empty", AwaitingEmpty.String())
	assert.Equal(t, "done", Done.String())
	assert.Equal(t, "step(9)", Step(9).String())
	assert.Equal(t, "full captured", EventFullCaptured.String())
	assert.True(t, EventEmptyCaptured.Captured())
	assert.False(t, EventAccumulated.Captured())
}
