// Package sim models an HX711 at the pin level. It implements hx711.Driver
// so the real protocol code can run against it in tests and mock devices.
package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/itohio/golcm/pkg/hx711"
)

// PowerDownTime is how long the clock must stay high to power the chip down.
const PowerDownTime = 60 * time.Microsecond

var _ hx711.Driver = (*Chip)(nil)

// Chip is a simulated HX711 wired to two pins.
type Chip struct {
	mu sync.Mutex

	clock, data hx711.Pin
	clockReady  bool
	dataReady   bool

	// conversion source
	queue  []uint32
	level  uint32
	source func() int32

	// shift state
	clk       bool
	pulses    int    // rising edges seen in the current transaction
	cur       uint32 // code being shifted out
	latched   hx711.Gain
	busyPolls int // not-ready reads reported after each conversion
	busy      int

	// power control, only modelled when now is set
	now       func() time.Time
	highSince time.Time
	down      bool

	conversions int
	lastPulses  int
}

// Option configures a Chip.
type Option func(*Chip)

// WithBusyPolls makes DOUT read high for n polls after every conversion.
func WithBusyPolls(n int) Option {
	return func(c *Chip) {
		c.busyPolls = n
	}
}

// WithClock enables power-down modelling using now as the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Chip) {
		c.now = now
	}
}

// WithSource sets a generator used when the queue is empty. It returns
// signed 24-bit conversion results.
func WithSource(src func() int32) Option {
	return func(c *Chip) {
		c.source = src
	}
}

// New creates a simulated chip on the given pins.
func New(clock, data hx711.Pin, opts ...Option) *Chip {
	c := &Chip{
		clock:   clock,
		data:    data,
		latched: hx711.Gain128,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Push queues signed 24-bit conversion results.
func (c *Chip) Push(values ...int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range values {
		c.queue = append(c.queue, uint32(v)&0xFFFFFF)
	}
}

// PushCorrected queues results given in the sign-corrected domain the driver
// stores in its ring.
func (c *Chip) PushCorrected(values ...int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range values {
		c.queue = append(c.queue, hx711.SignCorrect(uint32(v)))
	}
}

// SetLevel sets the signed result repeated once the queue is empty.
func (c *Chip) SetLevel(v int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.level = uint32(v) & 0xFFFFFF
}

// SetBusy makes DOUT read high for the next n polls.
func (c *Chip) SetBusy(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = n
}

// Conversions returns the number of completed transactions.
func (c *Chip) Conversions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finish()
	return c.conversions
}

// LastPulses returns the clock pulses seen in the latest transaction.
func (c *Chip) LastPulses() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finish()
	return c.lastPulses
}

// Gain returns the gain latched for the next conversion.
func (c *Chip) Gain() hx711.Gain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finish()
	return c.latched
}

// PoweredDown reports whether the clock has been held high long enough to
// power the chip down.
func (c *Chip) PoweredDown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poweredDown()
}

func (c *Chip) poweredDown() bool {
	if c.down {
		return true
	}
	if c.now == nil || !c.clk {
		return false
	}
	return c.now().Sub(c.highSince) >= PowerDownTime
}

// ConfigureOutput implements hx711.Driver.
func (c *Chip) ConfigureOutput(pin hx711.Pin) error {
	if pin != c.clock {
		return fmt.Errorf("sim: pin %d is not PD_SCK", pin)
	}
	c.mu.Lock()
	c.clockReady = true
	c.mu.Unlock()
	return nil
}

// ConfigureInput implements hx711.Driver.
func (c *Chip) ConfigureInput(pin hx711.Pin) error {
	if pin != c.data {
		return fmt.Errorf("sim: pin %d is not DOUT", pin)
	}
	c.mu.Lock()
	c.dataReady = true
	c.mu.Unlock()
	return nil
}

// Set implements hx711.Driver.
func (c *Chip) Set(pin hx711.Pin, high bool) error {
	if pin != c.clock {
		return fmt.Errorf("sim: pin %d is not an output", pin)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.clockReady {
		return fmt.Errorf("sim: pin %d not configured", pin)
	}

	switch {
	case high && !c.clk:
		c.clk = true
		if c.now != nil {
			c.highSince = c.now()
		}
		c.rising()
	case !high && c.clk:
		if c.poweredDown() {
			c.reset()
		}
		c.clk = false
	}
	return nil
}

// Get implements hx711.Driver.
func (c *Chip) Get(pin hx711.Pin) (bool, error) {
	if pin != c.data {
		return false, fmt.Errorf("sim: pin %d is not an input", pin)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dataReady {
		return false, fmt.Errorf("sim: pin %d not configured", pin)
	}

	if c.poweredDown() {
		c.down = true
		return true, nil
	}
	if c.pulses > 0 && c.pulses <= 24 {
		return c.cur&(1<<(24-c.pulses)) != 0, nil
	}
	if !c.clk {
		c.finish()
	}
	if c.pulses > 24 {
		return true, nil
	}
	if c.busy > 0 {
		c.busy--
		return true, nil
	}
	return false, nil
}

// rising handles a clock rising edge.
func (c *Chip) rising() {
	if c.down {
		return
	}
	if c.pulses == 0 {
		if c.busy > 0 {
			// Clocking a busy chip shifts nothing out.
			return
		}
		c.cur = c.next()
	}
	c.pulses++
}

// finish completes a transaction once the gain pulses are over.
func (c *Chip) finish() {
	if c.pulses <= 24 || c.clk {
		return
	}
	switch c.pulses - 24 {
	case 2:
		c.latched = hx711.Gain32
	case 3:
		c.latched = hx711.Gain64
	default:
		c.latched = hx711.Gain128
	}
	c.lastPulses = c.pulses
	c.pulses = 0
	c.busy = c.busyPolls
	c.conversions++
}

// reset models the power-on reset that follows a power down.
func (c *Chip) reset() {
	c.down = false
	c.pulses = 0
	c.latched = hx711.Gain128
	c.busy = c.busyPolls
}

func (c *Chip) next() uint32 {
	if len(c.queue) > 0 {
		v := c.queue[0]
		c.queue = c.queue[1:]
		return v
	}
	if c.source != nil {
		return uint32(c.source()) & 0xFFFFFF
	}
	return c.level
}
