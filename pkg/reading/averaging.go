package reading

import (
	"github.com/itohio/golcm/pkg/config"
	"github.com/itohio/golcm/pkg/device"
)

// NewAveragingConverter creates a converter that emits, for every raw
// sample, the mean of the last windowSize raw samples. The timestamp and
// flags are those of the newest sample. A tare resets the window so the mean
// never mixes readings from both sides of a zero shift.
func NewAveragingConverter(cfg *config.Config, windowSize int, bufSize int) Converter {
	if windowSize <= 0 {
		windowSize = 1
	}
	if bufSize <= 0 {
		bufSize = 100
	}
	calFactor := calFactorOf(cfg)

	return func(in <-chan device.RawSample) <-chan Reading {
		out := make(chan Reading, bufSize)

		go func() {
			defer close(out)

			buffer := make([]int32, 0, windowSize)
			for raw := range in {
				if raw.TareDone {
					buffer = buffer[:0]
				}
				buffer = append(buffer, raw.Raw)
				if len(buffer) > windowSize {
					buffer = buffer[1:]
				}

				avg := raw
				avg.Raw = Mean(buffer)
				send(out, Convert(avg, calFactor))
			}
		}()

		return out
	}
}

// Mean returns the rounded mean of values, 0 for none.
func Mean(values []int32) int32 {
	if len(values) == 0 {
		return 0
	}
	var sum int64
	for _, v := range values {
		sum += int64(v)
	}
	n := int64(len(values))
	if sum < 0 {
		return int32((sum - n/2) / n)
	}
	return int32((sum + n/2) / n)
}
