package device

import (
	"sync"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/golcm/pkg/config"
	"github.com/itohio/golcm/pkg/hx711"
	"github.com/itohio/golcm/pkg/hx711/sim"
)

// Mock pin assignment on the simulated chip.
const (
	mockClock hx711.Pin = 0
	mockData  hx711.Pin = 1
)

// Mock phase boundaries as fractions of MockConfig.Period.
const (
	phaseFull  = 0.1  // no bottle before this
	phaseDrain = 0.3  // full before this
	phaseEmpty = 0.75 // draining before this
	phaseGone  = 0.9  // empty bottle before this, no bottle after
)

// Mock simulates a load cell under a water dispenser. It runs the real
// HX711 protocol and engine against a simulated chip fed with a load that
// cycles through no bottle, full, draining, empty bottle and no bottle again.
type Mock struct {
	*Local

	cfg  config.MockConfig
	chip *sim.Chip

	mu    sync.Mutex
	start time.Time
	now   func() time.Time
	// pins is the simulator's notion of time. It only advances on PowerDown
	// so scheduling delays can never stretch a clock pulse into a power down.
	pins time.Time
}

// NewMock creates a simulated device. hw supplies the smoothing settings;
// its pins are replaced by the simulator's.
func NewMock(cfg *config.MockConfig, hw hx711.Config) (*Mock, error) {
	if cfg == nil {
		cfg = &config.Default().Mock
	}
	m := &Mock{cfg: *cfg, now: time.Now}
	m.chip = sim.New(mockClock, mockData, sim.WithSource(m.source), sim.WithClock(m.pinClock))

	hw.Clock, hw.Data = mockClock, mockData
	local, err := NewLocal(m.chip, hw, LocalOptions{
		Interval: cfg.SampleRate,
		Settle:   0,
		Now:      m.clock,
	})
	if err != nil {
		return nil, err
	}
	m.Local = local
	return m, nil
}

// Connect starts the simulated load profile and the poll loop.
func (m *Mock) Connect() error {
	m.mu.Lock()
	m.start = m.now()
	m.mu.Unlock()
	return m.Local.Connect()
}

// Chip exposes the simulated chip.
func (m *Mock) Chip() *sim.Chip {
	return m.chip
}

// PowerDown holds the simulated clock line high long enough to power the
// chip down.
func (m *Mock) PowerDown() error {
	if err := m.Local.PowerDown(); err != nil {
		return err
	}
	m.mu.Lock()
	m.pins = m.pins.Add(sim.PowerDownTime)
	m.mu.Unlock()
	return nil
}

func (m *Mock) pinClock() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pins
}

func (m *Mock) clock() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now()
}

func (m *Mock) source() int32 {
	m.mu.Lock()
	elapsed := m.now().Sub(m.start)
	m.mu.Unlock()
	return MockLoad(m.cfg, elapsed)
}

// MockLoad returns the simulated conversion result at elapsed time into the
// profile.
func MockLoad(cfg config.MockConfig, elapsed time.Duration) int32 {
	load := cfg.Platform
	if cfg.Period > 0 {
		phase := float32(elapsed%cfg.Period) / float32(cfg.Period)
		switch {
		case phase < phaseFull:
		case phase < phaseDrain:
			load += cfg.Bottle + cfg.Liquid
		case phase < phaseEmpty:
			left := 1 - (phase-phaseDrain)/(phaseEmpty-phaseDrain)
			load += cfg.Bottle + int32(float32(cfg.Liquid)*left)
		case phase < phaseGone:
			load += cfg.Bottle
		}
	}
	if cfg.Noise != 0 {
		t := float32(elapsed.Seconds())
		n := (math32.Sin(t*7.3) + math32.Cos(t*11.9)) * 0.5
		load += int32(n * float32(cfg.Noise))
	}
	return load
}
