package hx711

import (
	"errors"
	"fmt"
)

// ErrInvalidGain is returned when a gain other than 32, 64 or 128 is requested.
var ErrInvalidGain = errors.New("hx711: gain must be 32, 64 or 128")

// Gain selects the input channel and amplification latched for the next conversion.
type Gain uint8

const (
	// Gain128 reads channel A with gain 128 (1 trailing pulse).
	Gain128 Gain = 128
	// Gain64 reads channel A with gain 64 (3 trailing pulses).
	Gain64 Gain = 64
	// Gain32 reads channel B with gain 32 (2 trailing pulses).
	Gain32 Gain = 32
)

// ParseGain converts a numeric gain into a Gain. Unlike the chip's vendor
// library it never coerces unknown values.
func ParseGain(v int) (Gain, error) {
	switch v {
	case 128:
		return Gain128, nil
	case 64:
		return Gain64, nil
	case 32:
		return Gain32, nil
	}
	return 0, fmt.Errorf("%w: got %d", ErrInvalidGain, v)
}

// Valid reports whether g is one of the supported settings.
func (g Gain) Valid() bool {
	return g == Gain128 || g == Gain64 || g == Gain32
}

// Pulses returns the number of clock pulses following the 24 data bits.
func (g Gain) Pulses() int {
	switch g {
	case Gain32:
		return 2
	case Gain64:
		return 3
	default:
		return 1
	}
}

// Channel returns the bridge input selected by g.
func (g Gain) Channel() string {
	if g == Gain32 {
		return "B"
	}
	return "A"
}

func (g Gain) String() string {
	return fmt.Sprintf("%s/%d", g.Channel(), uint8(g))
}
