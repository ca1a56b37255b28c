//go:build linux

package device

import (
	"github.com/itohio/golcm/pkg/hx711"
	"github.com/itohio/golcm/pkg/hx711/gpiodpin"
)

func openGPIOD(chip string) (hx711.Driver, error) {
	return gpiodpin.Open(chip)
}
