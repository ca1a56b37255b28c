// Package level converts calibrated load cell readings into container fill
// levels and decides when a new level is worth reporting.
package level

import (
	"github.com/chewxy/math32"
)

const (
	// FullLiters is the volume of a full container.
	FullLiters float32 = 18.9
	// Divisions splits one liter into the smallest change worth reporting.
	Divisions = 10
	// StaticCount is how many consecutive polls a change must persist.
	StaticCount = 15
)

// Calibration holds the empty and full reference points in tared raw units.
type Calibration struct {
	Empty int32 `yaml:"empty"`
	Full  int32 `yaml:"full"`
}

// Valid reports whether the two points span a non-zero range.
func (c Calibration) Valid() bool {
	return c.Full != c.Empty
}

// Map linearly re-maps x from [inMin, inMax] to [outMin, outMax] using
// integer arithmetic. x is not clamped.
func Map(x, inMin, inMax, outMin, outMax int64) int64 {
	if inMax == inMin {
		return outMin
	}
	return (x-inMin)*(outMax-outMin)/(inMax-inMin) + outMin
}

// Percent maps raw onto 0..100 between the reference points. Readings outside
// the calibrated range map outside 0..100.
func (c Calibration) Percent(raw int32) int {
	return int(Map(int64(raw), int64(c.Empty), int64(c.Full), 0, 100))
}

// Fraction returns the fill ratio clamped to [0, 1].
func (c Calibration) Fraction(raw int32) float32 {
	if !c.Valid() {
		return 0
	}
	f := float32(raw-c.Empty) / float32(c.Full-c.Empty)
	return math32.Max(0, math32.Min(1, f))
}

// Liters converts raw into the liquid volume of a container holding full liters.
func (c Calibration) Liters(raw int32, full float32) float32 {
	if !c.Valid() {
		return 0
	}
	return float32(raw-c.Empty) * full / float32(c.Full-c.Empty)
}

// Threshold is the raw change that corresponds to 1/divisions of a liter.
func (c Calibration) Threshold(full float32, divisions int) int32 {
	if full <= 0 || divisions <= 0 {
		return 0
	}
	return int32(math32.Abs(float32(c.Full-c.Empty) / full / float32(divisions)))
}

// Bucket is a quantized fill level.
type Bucket struct {
	Percent     int
	Milliliters int
	// NoBottle is set for the lowest bucket, when the container is taken off
	// or nearly empty.
	NoBottle bool
}

// Quantize rounds a percentage up to the next quarter.
func Quantize(percent int) Bucket {
	switch {
	case percent > 75:
		return Bucket{Percent: 100, Milliliters: 18900}
	case percent > 50:
		return Bucket{Percent: 75, Milliliters: 14180}
	case percent > 25:
		return Bucket{Percent: 50, Milliliters: 9450}
	}
	return Bucket{Percent: 25, Milliliters: 4730, NoBottle: true}
}
