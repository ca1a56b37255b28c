// Package monitor keeps a time window of readings and feeds every reading to
// the calibration session or, outside calibration, to the fill level tracker.
package monitor

import (
	"slices"
	"sync"
	"time"

	"github.com/itohio/golcm/pkg/calibration"
	"github.com/itohio/golcm/pkg/config"
	"github.com/itohio/golcm/pkg/level"
	"github.com/itohio/golcm/pkg/reading"
	log "github.com/sirupsen/logrus"
)

var _ LevelMonitor = (*Monitor)(nil)

// CalibrationState is a snapshot of the calibration session.
type CalibrationState struct {
	Step       calibration.Step
	Held       bool
	Stable     bool
	Stabilized time.Duration
	Remaining  time.Duration
	Empty      int32 // captured empty point, valid from AwaitingFull on
}

// State is a snapshot handed to update callbacks.
type State struct {
	Readings    []reading.Reading // window, oldest first
	Level       level.Report      // level of the newest reading
	Steady      bool
	Calibrated  bool
	Points      level.Calibration // reference points in use, valid if Calibrated
	Calibration CalibrationState
}

// LevelMonitor processes readings and exposes the derived state.
type LevelMonitor interface {
	ProcessReadings(input <-chan reading.Reading)
	Readings() []reading.Reading
	State() State
	StartCalibration()
	ContinueCalibration() bool
	CancelCalibration()
	OnUpdate(func(State))
	OnReport(func(level.Report))
	OnCalibrated(func(calibration.Result))
	OnTare(func(offset int64))
}

// Monitor implements LevelMonitor.
type Monitor struct {
	window time.Duration

	mu         sync.RWMutex
	readings   []reading.Reading // oldest first, trimmed by timestamp
	session    *calibration.Session
	tracker    *level.Tracker
	calibrated bool
	current    level.Report
	lastTime   time.Time

	cbMu     sync.RWMutex
	onUpdate []func(State)
	onReport []func(level.Report)
	onCalib  []func(calibration.Result)
	onTare   []func(int64)
	shutdown bool
}

// New creates a monitor from the calibration, level and poll settings of cfg.
// A persisted calibration is restored.
func New(cfg *config.Config) *Monitor {
	points, ok := cfg.Calibration.Points()
	return &Monitor{
		window:     cfg.Poll.Window,
		readings:   make([]reading.Reading, 0),
		session:    calibration.NewSession(cfg.Calibration.Session()),
		tracker:    level.NewTracker(cfg.Level, points, cfg.Calibration.Stock),
		calibrated: ok,
	}
}

// ProcessReadings consumes input until it is closed. After that no more
// callbacks are made until ResetShutdown.
func (m *Monitor) ProcessReadings(input <-chan reading.Reading) {
	for r := range input {
		m.Process(r)
	}
	m.cbMu.Lock()
	m.shutdown = true
	m.cbMu.Unlock()
}

// Process handles one reading. Its timestamp is the clock of the calibration
// session.
func (m *Monitor) Process(r reading.Reading) {
	var (
		report    level.Report
		reported  bool
		result    calibration.Result
		completed bool
	)

	m.mu.Lock()
	m.readings = append(m.readings, r)
	m.trim(r.Timestamp)
	m.lastTime = r.Timestamp

	if r.Primed {
		if m.session.Active() {
			result, completed = m.poll(r)
		} else if m.calibrated {
			report, reported = m.tracker.Update(r.Raw)
		}
	}
	if m.calibrated {
		m.current = m.tracker.Level(r.Raw)
	}
	state := m.state()
	m.mu.Unlock()

	if r.TareDone {
		log.WithField("offset", r.TareOffset).Info("Tare done")
	}
	if completed {
		log.WithFields(log.Fields{"empty": result.Empty, "full": result.Full}).Info("Calibration done")
	}
	if reported {
		log.WithFields(log.Fields{
			"percent":   report.Bucket.Percent,
			"ml":        report.Bucket.Milliliters,
			"liters":    report.Liters,
			"swapped":   report.BottleSwapped,
			"stock":     report.Stock,
			"no_bottle": report.Bucket.NoBottle,
		}).Info("Level changed")
	}

	// Copy the callbacks so they run without any lock held.
	m.cbMu.RLock()
	if m.shutdown {
		m.cbMu.RUnlock()
		return
	}
	onTare := slices.Clone(m.onTare)
	onCalib := slices.Clone(m.onCalib)
	onReport := slices.Clone(m.onReport)
	onUpdate := slices.Clone(m.onUpdate)
	m.cbMu.RUnlock()

	if r.TareDone {
		for _, cb := range onTare {
			cb(r.TareOffset)
		}
	}
	if completed {
		for _, cb := range onCalib {
			cb(result)
		}
	}
	if reported {
		for _, cb := range onReport {
			cb(report)
		}
	}
	for _, cb := range onUpdate {
		cb(state)
	}
}

// poll feeds r to the running session. Called with mu held.
func (m *Monitor) poll(r reading.Reading) (calibration.Result, bool) {
	ev := m.session.Poll(r.Raw, r.Timestamp)
	switch ev {
	case calibration.EventEmptyCaptured:
		log.WithField("empty", m.session.Empty()).Info("Empty point captured")
		if m.session.Held() {
			log.Info("Load the full container and continue")
		}
	case calibration.EventReset:
		log.WithField("raw", r.Raw).Debug("Calibration window restarted")
	case calibration.EventFullCaptured:
		res, _ := m.session.Result()
		m.tracker.SetCalibration(level.Calibration{Empty: res.Empty, Full: res.Full})
		m.calibrated = true
		return res, true
	}
	return calibration.Result{}, false
}

// trim drops readings older than the window. Called with mu held.
func (m *Monitor) trim(now time.Time) {
	if m.window <= 0 {
		return
	}
	cutoff := now.Add(-m.window)
	i := 0
	for i < len(m.readings) && !m.readings[i].Timestamp.After(cutoff) {
		i++
	}
	if i > 0 {
		m.readings = append(m.readings[:0], m.readings[i:]...)
	}
}

// state builds a snapshot. Called with mu held.
func (m *Monitor) state() State {
	readings := make([]reading.Reading, len(m.readings))
	copy(readings, m.readings)
	return State{
		Readings:    readings,
		Level:       m.current,
		Steady:      m.tracker.Steady(),
		Calibrated:  m.calibrated,
		Points:      m.tracker.Calibration(),
		Calibration: m.calibrationState(),
	}
}

func (m *Monitor) calibrationState() CalibrationState {
	return CalibrationState{
		Step:       m.session.Step(),
		Held:       m.session.Held(),
		Stable:     m.session.Stable(),
		Stabilized: m.session.Stabilized(m.lastTime),
		Remaining:  m.session.Remaining(m.lastTime),
		Empty:      m.session.Empty(),
	}
}

// Readings returns a copy of the current window.
func (m *Monitor) Readings() []reading.Reading {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]reading.Reading, len(m.readings))
	copy(result, m.readings)
	return result
}

// State returns a snapshot of the monitor.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state()
}

// StartCalibration begins a new calibration run. The level tracker pauses
// until it completes.
func (m *Monitor) StartCalibration() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session.Start()
	log.Info("Calibration started, waiting for a stable empty container")
}

// ContinueCalibration releases the hold after the empty point.
func (m *Monitor) ContinueCalibration() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Continue()
}

// CancelCalibration aborts a run. The previous calibration stays in effect.
func (m *Monitor) CancelCalibration() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session.Active() {
		log.Info("Calibration cancelled")
	}
	m.session.Cancel()
}

// SetStock overrides the spare container count.
func (m *Monitor) SetStock(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracker.SetStock(n)
}

// OnUpdate registers a callback invoked after every reading.
// Callbacks run on the processing goroutine and should return quickly.
func (m *Monitor) OnUpdate(cb func(State)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.onUpdate = append(m.onUpdate, cb)
}

// OnReport registers a callback invoked when the fill level changes.
func (m *Monitor) OnReport(cb func(level.Report)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.onReport = append(m.onReport, cb)
}

// OnCalibrated registers a callback invoked when a calibration completes.
func (m *Monitor) OnCalibrated(cb func(calibration.Result)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.onCalib = append(m.onCalib, cb)
}

// OnTare registers a callback invoked with the new offset when a tare completes.
func (m *Monitor) OnTare(cb func(offset int64)) {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.onTare = append(m.onTare, cb)
}

// ResetShutdown allows callbacks again for a new processing chain.
func (m *Monitor) ResetShutdown() {
	m.cbMu.Lock()
	defer m.cbMu.Unlock()
	m.shutdown = false
}
