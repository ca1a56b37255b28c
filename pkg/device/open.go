package device

import (
	"fmt"
	"io"

	"github.com/itohio/golcm/pkg/config"
	"github.com/itohio/golcm/pkg/hx711"
	"github.com/itohio/golcm/pkg/hx711/periphpin"
)

// Open creates the device selected by cfg.Sensor.Backend. The device is not
// connected yet.
func Open(cfg *config.Config) (Device, error) {
	restore := cfg.Calibration.Stable && cfg.Calibration.TareOffset != 0
	if cfg.Sensor.Backend == config.BackendSerial {
		s := NewSerial(cfg.Serial.Port, cfg.Serial.Baud, 0)
		if restore {
			s.RestoreTare(cfg.Calibration.TareOffset)
		}
		return s, nil
	}

	hw, err := cfg.Sensor.HX711()
	if err != nil {
		return nil, err
	}
	if cfg.Sensor.Backend == config.BackendMock {
		m, err := NewMock(&cfg.Mock, hw)
		if err != nil {
			return nil, err
		}
		return m, nil
	}

	var drv hx711.Driver
	switch cfg.Sensor.Backend {
	case config.BackendGPIOD:
		drv, err = openGPIOD(cfg.Sensor.Chip)
	case config.BackendPeriph:
		drv, err = openPeriph(cfg.Sensor)
	default:
		return nil, fmt.Errorf("unknown sensor backend %q", cfg.Sensor.Backend)
	}
	if err != nil {
		return nil, err
	}

	local, err := NewLocal(drv, hw, LocalOptions{
		Interval:    cfg.Poll.Interval,
		Settle:      cfg.Sensor.Settle,
		RestoreTare: restore,
		TareOffset:  cfg.Calibration.TareOffset,
	})
	if err != nil {
		if c, ok := drv.(io.Closer); ok {
			c.Close()
		}
		return nil, err
	}
	return local, nil
}

type pinNamer interface {
	Alias(pin hx711.Pin, name string)
}

func openPeriph(s config.SensorConfig) (hx711.Driver, error) {
	drv, err := periphpin.Open()
	if err != nil {
		return nil, err
	}
	namePins(drv, s)
	return drv, nil
}

// namePins applies the configured registry names of the clock and data pins.
func namePins(drv pinNamer, s config.SensorConfig) {
	if s.ClockName != "" {
		drv.Alias(hx711.Pin(s.ClockPin), s.ClockName)
	}
	if s.DataName != "" {
		drv.Alias(hx711.Pin(s.DataPin), s.DataName)
	}
}
