//go:build tinygo

package hx711

import (
	"time"

	"tinygo.org/x/drivers/delay"
)

// edgeDelay busy-waits for d using the cycle-counted delay of the target.
func edgeDelay(d time.Duration) {
	delay.Sleep(d)
}
