// Package reading turns raw device samples into readings in physical units
// and provides the channel stages the monitor pipeline is built from.
package reading

import (
	"time"

	"github.com/itohio/golcm/pkg/config"
	"github.com/itohio/golcm/pkg/device"
	log "github.com/sirupsen/logrus"
)

// Reading is one smoothed load cell reading.
type Reading struct {
	Timestamp time.Time
	Raw       int32   // tared, unscaled; calibration works on this
	Value     float32 // Raw scaled by the calibration factor
	Primed    bool
	TareDone  bool
	// TareOffset is the zero reference in the device's smoothed sum domain.
	TareOffset int64
}

// Converter is a pipeline stage from raw samples to readings.
type Converter func(in <-chan device.RawSample) <-chan Reading

// NewConverter creates a converter scaling raw samples with the configured
// calibration factor.
func NewConverter(cfg *config.Config, bufSize int) Converter {
	if bufSize <= 0 {
		bufSize = 100
	}
	calFactor := calFactorOf(cfg)

	return func(in <-chan device.RawSample) <-chan Reading {
		out := make(chan Reading, bufSize)

		go func() {
			defer close(out)

			for raw := range in {
				send(out, Convert(raw, calFactor))
			}
		}()

		return out
	}
}

// Convert scales one raw sample.
func Convert(raw device.RawSample, calFactor float32) Reading {
	if calFactor == 0 {
		calFactor = 1
	}
	return Reading{
		Timestamp:  raw.Timestamp,
		Raw:        raw.Raw,
		Value:      float32(raw.Raw) / calFactor,
		Primed:     raw.Primed,
		TareDone:   raw.TareDone,
		TareOffset: raw.TareOffset,
	}
}

func calFactorOf(cfg *config.Config) float32 {
	if cfg == nil || cfg.Sensor.CalFactor == 0 {
		return 1
	}
	return cfg.Sensor.CalFactor
}

// send delivers r unless the consumer stalls for a second.
func send(out chan<- Reading, r Reading) {
	select {
	case out <- r:
	case <-time.After(time.Second):
		log.Warn("Converter output channel full, dropping reading")
	}
}
