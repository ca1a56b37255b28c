// Package hx711 drives 24-bit bridge ADCs of the HX711 family over their
// two-wire clock/data protocol and turns the raw stream into a smoothed,
// tared reading.
//
// The package performs no locking besides the interrupt-masked bit shift.
// Callers polling from several goroutines must serialize access themselves.
package hx711

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// DefaultClockDelay is the time the clock is held in each phase.
	DefaultClockDelay = time.Microsecond
	// DefaultSamples is the default ring capacity.
	DefaultSamples = 16
	// DefaultHostMaxDelta is the jump guard used when bit-banging from a
	// preemptible host. A clock pulse stretched past 60µs corrupts the read.
	DefaultHostMaxDelta = 1 << 16

	dataBits = 24
	signBit  = 0x800000
	codeMask = 0xFFFFFF
)

var (
	// ErrBusy is returned by ReadConversion while the chip is still converting.
	ErrBusy = errors.New("hx711: conversion not ready")
	// ErrRejected is returned when a sample fails the sanity checks and is not
	// admitted to the ring.
	ErrRejected = errors.New("hx711: sample rejected")
)

// Pin identifies an I/O line. Its meaning belongs to the Driver.
type Pin uint32

// Driver is the GPIO abstraction the protocol runs on.
// Platform-specific implementations handle the actual hardware.
type Driver interface {
	// ConfigureOutput configures pin as a push-pull output.
	ConfigureOutput(pin Pin) error
	// ConfigureInput configures pin as a digital input.
	ConfigureInput(pin Pin) error
	// Set drives an output high (true) or low (false).
	Set(pin Pin, high bool) error
	// Get samples an input level.
	Get(pin Pin) (bool, error)
}

// Config describes one ADC channel.
type Config struct {
	Clock Pin // PD_SCK
	Data  Pin // DOUT
	Gain  Gain

	// Samples is the ring capacity used for smoothing.
	Samples int
	// IgnoreLow and IgnoreHigh drop the smallest/largest sample from the sum.
	IgnoreLow  bool
	IgnoreHigh bool
	// ExactTrimDivisor divides a trimmed sum by the number of samples left in
	// it instead of the ring capacity.
	ExactTrimDivisor bool

	// CalFactor converts tared raw units into physical units.
	CalFactor float32
	// ClockDelay is the duration of each clock phase.
	ClockDelay time.Duration
	// MaxDelta rejects a sample that jumps further than this from the
	// previous admitted one unless the next sample confirms the jump.
	// Zero disables the check.
	MaxDelta int32
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.Gain == 0 {
		c.Gain = Gain128
	}
	if c.Samples == 0 {
		c.Samples = DefaultSamples
	}
	if c.CalFactor == 0 {
		c.CalFactor = 1
	}
	if c.ClockDelay == 0 {
		c.ClockDelay = DefaultClockDelay
	}
	return c
}

// Validate checks c after defaults have been applied.
func (c Config) Validate() error {
	c = c.withDefaults()
	if !c.Gain.Valid() {
		return fmt.Errorf("%w: got %d", ErrInvalidGain, c.Gain)
	}
	if !ValidCapacity(c.Samples) {
		return fmt.Errorf("%w: got %d", ErrInvalidCapacity, c.Samples)
	}
	if c.Clock == c.Data {
		return errors.New("hx711: clock and data must be different pins")
	}
	if c.MaxDelta < 0 {
		return errors.New("hx711: max delta must not be negative")
	}
	return nil
}

// Device is one HX711 channel together with its sample ring and tare state.
type Device struct {
	drv  Driver
	cfg  Config
	ring *Ring

	// sanity guard
	prev          int32
	havePrev      bool
	candidate     int32
	haveCandidate bool

	// smoothing and tare
	shift       uint
	tareOffset  int64
	last        int64
	tarePending bool
	tareCount   int
	tareDone    bool

	// StartNoDelay bookkeeping
	startAt    time.Time
	startTared bool
}

// New configures the pins and returns a channel ready to be polled.
// The clock pin is driven low, which also wakes a powered-down chip.
func New(drv Driver, cfg Config) (*Device, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ring, err := NewRing(cfg.Samples)
	if err != nil {
		return nil, err
	}

	if err := drv.ConfigureOutput(cfg.Clock); err != nil {
		return nil, fmt.Errorf("failed to configure clock pin %d: %w", cfg.Clock, err)
	}
	if err := drv.Set(cfg.Clock, false); err != nil {
		return nil, fmt.Errorf("failed to drive clock pin %d low: %w", cfg.Clock, err)
	}
	if err := drv.ConfigureInput(cfg.Data); err != nil {
		return nil, fmt.Errorf("failed to configure data pin %d: %w", cfg.Data, err)
	}

	return &Device{
		drv:   drv,
		cfg:   cfg,
		ring:  ring,
		shift: ring.Shift(),
	}, nil
}

// Config returns the effective configuration.
func (d *Device) Config() Config {
	return d.cfg
}

// Gain returns the gain latched by every read.
func (d *Device) Gain() Gain {
	return d.cfg.Gain
}

// Ring exposes the sample ring for inspection.
func (d *Device) Ring() *Ring {
	return d.ring
}

// IsReady reports whether a conversion can be shifted out (DOUT low).
func (d *Device) IsReady() bool {
	high, err := d.drv.Get(d.cfg.Data)
	return err == nil && !high
}

// ReadConversion shifts out one conversion and stores it in the ring.
// It returns ErrBusy without touching the pins when no result is ready and
// ErrRejected for a sample that did not pass the sanity checks.
func (d *Device) ReadConversion() (int32, error) {
	high, err := d.drv.Get(d.cfg.Data)
	if err != nil {
		return 0, fmt.Errorf("failed to read data pin: %w", err)
	}
	if high {
		return 0, ErrBusy
	}

	code, err := d.transact()
	if err != nil {
		return 0, err
	}

	v := int32(SignCorrect(code))
	if !d.admit(v) {
		return v, ErrRejected
	}
	d.ring.Push(v)
	return v, nil
}

// transact clocks out 24 data bits followed by the gain pulses. It is the only
// timing-critical code in the package and runs with interrupts disabled.
func (d *Device) transact() (uint32, error) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	var code uint32
	pulses := dataBits + d.cfg.Gain.Pulses()
	for i := range pulses {
		if err := d.drv.Set(d.cfg.Clock, true); err != nil {
			return 0, fmt.Errorf("clock high on pulse %d: %w", i, err)
		}
		edgeDelay(d.cfg.ClockDelay)
		if i < dataBits {
			bit, err := d.drv.Get(d.cfg.Data)
			if err != nil {
				return 0, fmt.Errorf("data read on pulse %d: %w", i, err)
			}
			code <<= 1
			if bit {
				code |= 1
			}
		}
		if err := d.drv.Set(d.cfg.Clock, false); err != nil {
			return 0, fmt.Errorf("clock low on pulse %d: %w", i, err)
		}
		edgeDelay(d.cfg.ClockDelay)
	}
	return code, nil
}

// admit applies the zero-code and jump checks.
func (d *Device) admit(v int32) bool {
	if v == 0 {
		return false
	}
	if d.cfg.MaxDelta > 0 && d.havePrev && absDiff(v, d.prev) > d.cfg.MaxDelta {
		// A single spike is dropped. A jump confirmed by the following sample is
		// a real step in the load and is let through.
		if !d.haveCandidate || absDiff(v, d.candidate) > d.cfg.MaxDelta {
			d.candidate = v
			d.haveCandidate = true
			return false
		}
	}
	d.haveCandidate = false
	d.prev = v
	d.havePrev = true
	return true
}

// PowerDown drives the clock low then high and leaves it high. The chip
// powers down once the clock stays high for more than 60µs.
func (d *Device) PowerDown() error {
	if err := d.drv.Set(d.cfg.Clock, false); err != nil {
		return fmt.Errorf("failed to power down: %w", err)
	}
	if err := d.drv.Set(d.cfg.Clock, true); err != nil {
		return fmt.Errorf("failed to power down: %w", err)
	}
	return nil
}

// PowerUp drives the clock low. The chip resets to channel A, gain 128 for
// its first conversion, so the jump guard starts over.
func (d *Device) PowerUp() error {
	if err := d.drv.Set(d.cfg.Clock, false); err != nil {
		return fmt.Errorf("failed to power up: %w", err)
	}
	d.havePrev = false
	d.haveCandidate = false
	return nil
}

// SignCorrect maps the chip's two's complement output onto an unsigned,
// monotonically increasing range. It is its own inverse.
func SignCorrect(code uint32) uint32 {
	return (code & codeMask) ^ signBit
}

// absDiff is |a-b| saturated to the int32 range.
func absDiff(a, b int32) int32 {
	d := int64(a) - int64(b)
	if d < 0 {
		d = -d
	}
	return int32(min(d, math.MaxInt32))
}
