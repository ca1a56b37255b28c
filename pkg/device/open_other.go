//go:build !linux

package device

import (
	"errors"

	"github.com/itohio/golcm/pkg/hx711"
)

func openGPIOD(string) (hx711.Driver, error) {
	return nil, errors.New("gpiod backend is only available on linux")
}
