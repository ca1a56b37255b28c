package level

import "math"

// Config tunes the Tracker.
type Config struct {
	// FullLiters is the container volume.
	FullLiters float32 `yaml:"full_liters"`
	// Divisions of a liter that make up the reporting threshold.
	Divisions int `yaml:"divisions"`
	// StaticCount is the number of consecutive polls a change must persist.
	StaticCount int `yaml:"static_count"`
	// Tolerance bounds the poll-to-poll delta of a steady signal.
	Tolerance int32 `yaml:"tolerance"`
}

// DefaultConfig returns the tuning for an 18.9 L container.
func DefaultConfig() Config {
	return Config{
		FullLiters:  FullLiters,
		Divisions:   Divisions,
		StaticCount: StaticCount,
		Tolerance:   15,
	}
}

// Report is a fill level worth publishing.
type Report struct {
	Raw     int32
	Percent int // unquantized percentage
	Liters  float32
	Bucket  Bucket
	// BottleSwapped is set when the level jumps from the no-bottle bucket to
	// full, i.e. an empty container was replaced with a new one.
	BottleSwapped bool
	// Stock is the number of spare containers after this report.
	Stock int
}

// Tracker turns a stream of calibrated readings into sparse Reports. A
// reading is reported once it has differed from the last report by more than
// the threshold for StaticCount consecutive polls. It is not safe for
// concurrent use.
type Tracker struct {
	cfg       Config
	cal       Calibration
	threshold int32

	last     int32
	counter  int
	noBottle bool
	stock    int

	prev     int32
	havePrev bool
	steady   bool
}

// NewTracker creates a tracker for cal. stock is the current number of spare
// containers and is decremented on every bottle swap.
func NewTracker(cfg Config, cal Calibration, stock int) *Tracker {
	def := DefaultConfig()
	if cfg.FullLiters <= 0 {
		cfg.FullLiters = def.FullLiters
	}
	if cfg.Divisions <= 0 {
		cfg.Divisions = def.Divisions
	}
	if cfg.StaticCount <= 0 {
		cfg.StaticCount = def.StaticCount
	}
	t := &Tracker{cfg: cfg, stock: stock}
	t.SetCalibration(cal)
	return t
}

// SetCalibration installs new reference points and restarts tracking from
// the empty point.
func (t *Tracker) SetCalibration(cal Calibration) {
	t.cal = cal
	t.threshold = cal.Threshold(t.cfg.FullLiters, t.cfg.Divisions)
	t.last = cal.Empty
	t.counter = 0
}

// Calibration returns the reference points in use.
func (t *Tracker) Calibration() Calibration {
	return t.cal
}

// Threshold returns the raw change needed before a reading counts as different.
func (t *Tracker) Threshold() int32 {
	return t.threshold
}

// Stock returns the spare container count.
func (t *Tracker) Stock() int {
	return t.stock
}

// SetStock overrides the spare container count.
func (t *Tracker) SetStock(n int) {
	t.stock = max(n, 0)
}

// Steady reports whether the latest two readings were within tolerance.
func (t *Tracker) Steady() bool {
	return t.steady
}

// LastReported returns the raw value of the latest report.
func (t *Tracker) LastReported() int32 {
	return t.last
}

// Level computes a report for raw without affecting tracking state.
func (t *Tracker) Level(raw int32) Report {
	pct := t.cal.Percent(raw)
	return Report{
		Raw:     raw,
		Percent: pct,
		Liters:  t.cal.Liters(raw, t.cfg.FullLiters),
		Bucket:  Quantize(pct),
		Stock:   t.stock,
	}
}

// Update feeds one reading and returns a report when one is due.
func (t *Tracker) Update(raw int32) (Report, bool) {
	t.steady = t.havePrev && absDiff(raw, t.prev) <= t.cfg.Tolerance
	t.prev = raw
	t.havePrev = true

	if !t.cal.Valid() || absDiff(raw, t.last) <= t.threshold {
		t.counter = 0
		return Report{}, false
	}
	t.counter++
	if t.counter < t.cfg.StaticCount {
		return Report{}, false
	}

	rep := t.Level(raw)
	if rep.Bucket.Percent == 100 && t.noBottle {
		rep.BottleSwapped = true
		if t.stock > 0 {
			t.stock--
		}
		rep.Stock = t.stock
	}
	t.noBottle = rep.Bucket.NoBottle
	t.last = raw
	t.counter = 0
	return rep, true
}

// absDiff is |a-b| saturated to the int32 range.
func absDiff(a, b int32) int32 {
	d := int64(a) - int64(b)
	if d < 0 {
		d = -d
	}
	return int32(min(d, math.MaxInt32))
}
