//go:build !tinygo

package hx711

import "time"

// edgeDelay busy-waits for d. time.Sleep would hand the thread back to the
// scheduler and stretch the clock phase far past the chip's limits.
func edgeDelay(d time.Duration) {
	start := time.Now()
	for time.Since(start) < d {
	}
}
