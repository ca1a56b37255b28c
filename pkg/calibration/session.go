// Package calibration implements the two-point (empty/full container)
// calibration of a load cell. A Session is polled with the tared, unscaled
// reading and captures each reference point once the signal has stayed
// within a tolerance band for a minimum duration.
package calibration

import (
	"fmt"
	"time"
)

// Step is the position of a Session in the calibration sequence.
type Step uint8

const (
	// Idle means no calibration is running.
	Idle Step = iota
	// AwaitingEmpty waits for a stable reading of the empty container.
	AwaitingEmpty
	// AwaitingFull waits for a stable reading of the full container.
	AwaitingFull
	// Done means both points were captured.
	Done
)

func (s Step) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingEmpty:
		return "awaiting empty"
	case AwaitingFull:
		return "awaiting full"
	case Done:
		return "done"
	}
	return fmt.Sprintf("step(%d)", uint8(s))
}

// Event describes what a Poll did.
type Event uint8

const (
	// EventNone means the poll was ignored.
	EventNone Event = iota
	// EventArmed means the stability timer was started; the reading is only a reference.
	EventArmed
	// EventAccumulated means the reading was within tolerance and counted.
	EventAccumulated
	// EventReset means the reading left the tolerance band and the window restarted.
	EventReset
	// EventEmptyCaptured means the empty reference was stored.
	EventEmptyCaptured
	// EventFullCaptured means the full reference was stored and the session is done.
	EventFullCaptured
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventArmed:
		return "armed"
	case EventAccumulated:
		return "accumulated"
	case EventReset:
		return "reset"
	case EventEmptyCaptured:
		return "empty captured"
	case EventFullCaptured:
		return "full captured"
	}
	return fmt.Sprintf("event(%d)", uint8(e))
}

// Captured reports whether e stored a reference point.
func (e Event) Captured() bool {
	return e == EventEmptyCaptured || e == EventFullCaptured
}

const (
	// DefaultTolerance is the largest accepted delta between consecutive readings.
	DefaultTolerance = 15
	// DefaultMinStable is how long readings must stay within tolerance.
	DefaultMinStable = 10 * time.Second
)

// Config holds the stability criteria.
type Config struct {
	// Tolerance is the largest |current - previous| still considered stable.
	Tolerance int32
	// MinStable is the uninterrupted stable time needed to capture a point.
	MinStable time.Duration
	// HoldBetweenSteps pauses after the empty point until Continue is called,
	// giving the user time to load the container.
	HoldBetweenSteps bool
}

// DefaultConfig returns a tolerance of 15 counts held for 10 seconds.
func DefaultConfig() Config {
	return Config{
		Tolerance: DefaultTolerance,
		MinStable: DefaultMinStable,
	}
}

// Result holds the captured reference points in tared raw units.
type Result struct {
	Empty int32
	Full  int32
}

// Span returns Full - Empty.
func (r Result) Span() int32 {
	return r.Full - r.Empty
}

// Session is one calibration run. It is not safe for concurrent use.
type Session struct {
	cfg Config

	step  Step
	held  bool
	since time.Time // zero while the stability timer is unset
	prev  int32
	sum   int64
	count int64

	result Result
}

// NewSession creates an idle session.
func NewSession(cfg Config) *Session {
	if cfg.Tolerance < 0 {
		cfg.Tolerance = -cfg.Tolerance
	}
	return &Session{cfg: cfg}
}

// Config returns the criteria in use.
func (s *Session) Config() Config {
	return s.cfg
}

// Start begins a new run waiting for the empty container. Any previous
// progress or result is discarded.
func (s *Session) Start() {
	s.clear()
	s.result = Result{}
	s.held = false
	s.step = AwaitingEmpty
}

// Cancel aborts the run and returns to Idle.
func (s *Session) Cancel() {
	s.clear()
	s.result = Result{}
	s.held = false
	s.step = Idle
}

// Continue releases the hold after the empty point has been captured.
// It reports whether the session was waiting for it.
func (s *Session) Continue() bool {
	if !s.held {
		return false
	}
	s.held = false
	s.clear()
	return true
}

// Step returns the current step.
func (s *Session) Step() Step {
	return s.step
}

// Active reports whether the session is collecting readings or held.
func (s *Session) Active() bool {
	return s.step == AwaitingEmpty || s.step == AwaitingFull
}

// Held reports whether the session waits for Continue.
func (s *Session) Held() bool {
	return s.held
}

// Stable reports whether the current window holds at least one accepted reading.
func (s *Session) Stable() bool {
	return s.count > 0
}

// Stabilized returns for how long the signal has been stable at now.
func (s *Session) Stabilized(now time.Time) time.Duration {
	if s.since.IsZero() || s.count == 0 {
		return 0
	}
	return now.Sub(s.since)
}

// Remaining returns the stable time still needed to capture the current point.
func (s *Session) Remaining(now time.Time) time.Duration {
	if !s.Active() || s.held {
		return 0
	}
	return max(s.cfg.MinStable-s.Stabilized(now), 0)
}

// Result returns the captured points. ok is false until the session is Done.
func (s *Session) Result() (res Result, ok bool) {
	return s.result, s.step == Done
}

// Empty returns the empty reference captured so far.
func (s *Session) Empty() int32 {
	return s.result.Empty
}

// Poll feeds one tared, unscaled reading taken at now.
func (s *Session) Poll(reading int32, now time.Time) Event {
	if !s.Active() || s.held {
		return EventNone
	}

	// The first reading of a window is a reference only.
	if s.since.IsZero() {
		s.since = now
		s.prev = reading
		return EventArmed
	}

	ev := EventAccumulated
	if delta(reading, s.prev) <= s.cfg.Tolerance {
		s.sum += int64(reading)
		s.count++
	} else {
		s.sum, s.count = 0, 0
		s.since = now
		ev = EventReset
	}
	s.prev = reading

	if s.count == 0 || now.Sub(s.since) < s.cfg.MinStable {
		return ev
	}

	mean := int32(s.sum / s.count)
	s.clear()
	if s.step == AwaitingEmpty {
		s.result.Empty = mean
		s.step = AwaitingFull
		s.held = s.cfg.HoldBetweenSteps
		return EventEmptyCaptured
	}
	s.result.Full = mean
	s.step = Done
	return EventFullCaptured
}

func (s *Session) clear() {
	s.since = time.Time{}
	s.prev = 0
	s.sum = 0
	s.count = 0
}

func delta(a, b int32) int32 {
	d := int64(a) - int64(b)
	if d < 0 {
		d = -d
	}
	if d > 1<<31-1 {
		return 1<<31 - 1
	}
	return int32(d)
}
