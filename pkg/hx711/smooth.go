package hx711

import (
	"context"
	"errors"
	"time"
)

// Status is the outcome of one Update poll.
type Status uint8

const (
	// StatusIdle means no conversion was ready.
	StatusIdle Status = iota
	// StatusSample means a new sample was admitted to the ring.
	StatusSample
	// StatusTared means a sample was admitted and completed a pending tare.
	StatusTared
	// StatusRejected means a conversion was read but failed the sanity checks.
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusSample:
		return "sample"
	case StatusTared:
		return "tared"
	case StatusRejected:
		return "rejected"
	}
	return "unknown"
}

const (
	// StartSettleExtra is added to the settle time passed to Start.
	StartSettleExtra = 400 * time.Millisecond

	// pollBackoff is how long blocking helpers wait between not-ready polls.
	pollBackoff = time.Millisecond
)

// SmoothedSum returns the sum of all ring slots with the configured extremes
// removed. The result is cached for LastSmoothed.
func (d *Device) SmoothedSum() int64 {
	d.last = d.ring.Sum(d.cfg.IgnoreLow, d.cfg.IgnoreHigh)
	return d.last
}

// LastSmoothed returns the sum computed by the latest SmoothedSum call.
func (d *Device) LastSmoothed() int64 {
	return d.last
}

// Primed reports whether the ring has been filled at least once. Readings
// taken before that average in empty slots.
func (d *Device) Primed() bool {
	return d.ring.Primed()
}

// Raw returns the tared, unscaled smoothed reading.
func (d *Device) Raw() int32 {
	sum := d.SmoothedSum() - d.tareOffset
	if d.cfg.ExactTrimDivisor {
		return int32(sum / int64(d.count()))
	}
	return int32(sum >> d.shift)
}

// Value returns the smoothed reading in physical units.
func (d *Device) Value() float32 {
	return float32(d.Raw()) / d.cfg.CalFactor
}

// count is the number of samples left in the sum after trimming.
func (d *Device) count() int {
	n := d.ring.Cap()
	if d.cfg.IgnoreLow {
		n--
	}
	if d.cfg.IgnoreHigh {
		n--
	}
	return n
}

// TareOffset returns the zero reference in the SmoothedSum domain.
func (d *Device) TareOffset() int64 {
	return d.tareOffset
}

// SetTareOffset restores a previously persisted zero reference. A pending
// tare is abandoned and StartNoDelay no longer tares on its own.
func (d *Device) SetTareOffset(offset int64) {
	d.tareOffset = offset
	d.tarePending = false
	d.tareCount = 0
	d.tareDone = false
	d.startTared = true
}

// SetCalFactor changes the physical unit scale.
func (d *Device) SetCalFactor(f float32) {
	if f != 0 {
		d.cfg.CalFactor = f
	}
}

// TareNoDelay arms a tare that completes after the ring has been refilled
// with fresh samples by regular Update polls. Check TareDone for completion.
func (d *Device) TareNoDelay() {
	d.tarePending = true
	d.tareCount = 0
	d.tareDone = false
}

// TarePending reports whether a tare is accumulating.
func (d *Device) TarePending() bool {
	return d.tarePending
}

// TareDone reports whether a tare completed since the last call and clears
// the flag.
func (d *Device) TareDone() bool {
	done := d.tareDone
	d.tareDone = false
	return done
}

// Update is the per-poll entry point. It reads a conversion when one is ready
// and advances a pending tare. Not being ready is not an error.
func (d *Device) Update() (Status, error) {
	_, err := d.ReadConversion()
	switch {
	case errors.Is(err, ErrBusy):
		return StatusIdle, nil
	case errors.Is(err, ErrRejected):
		// The window must consist of consecutive fresh samples.
		d.tareCount = 0
		return StatusRejected, nil
	case err != nil:
		return StatusIdle, err
	}

	if !d.tarePending {
		return StatusSample, nil
	}
	d.tareCount++
	if d.tareCount < d.ring.Cap() {
		return StatusSample, nil
	}
	d.tareOffset = d.SmoothedSum()
	d.tarePending = false
	d.tareCount = 0
	d.tareDone = true
	return StatusTared, nil
}

// Tare blocks until a full window of fresh samples has been collected and
// stored as the new zero reference. A cancelled ctx abandons the tare and
// leaves the previous offset untouched.
func (d *Device) Tare(ctx context.Context) error {
	d.TareNoDelay()
	for {
		st, err := d.Update()
		if err != nil {
			d.tarePending = false
			return err
		}
		if st == StatusTared {
			d.tareDone = false
			return nil
		}
		// A saturated input is rejected on every poll and must not spin.
		if st == StatusIdle || st == StatusRejected {
			select {
			case <-ctx.Done():
				d.tarePending = false
				return ctx.Err()
			case <-time.After(pollBackoff):
			}
		}
	}
}

// Start polls conversions for settle plus StartSettleExtra so the chip and
// the ring settle, then tares.
func (d *Device) Start(ctx context.Context, settle time.Duration) error {
	deadline := time.Now().Add(settle + StartSettleExtra)
	for time.Now().Before(deadline) {
		st, err := d.Update()
		if err != nil {
			return err
		}
		if st == StatusIdle || st == StatusRejected {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollBackoff):
			}
		}
	}
	return d.Tare(ctx)
}

// StartNoDelay is the cooperative form of Start for loops that serve several
// channels. Call it on every poll; it returns true once the channel has
// settled and tared.
func (d *Device) StartNoDelay(now time.Time, settle time.Duration) (bool, error) {
	if d.startTared {
		return true, nil
	}
	if d.startAt.IsZero() {
		d.startAt = now.Add(settle + StartSettleExtra)
	}
	if _, err := d.Update(); err != nil {
		return false, err
	}
	if d.TareDone() {
		d.startTared = true
		return true, nil
	}
	if !now.Before(d.startAt) && !d.tarePending {
		d.TareNoDelay()
	}
	return false, nil
}
