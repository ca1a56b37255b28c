package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/itohio/golcm/pkg/calibration"
	"github.com/itohio/golcm/pkg/hx711"
	"github.com/itohio/golcm/pkg/level"
	"gopkg.in/yaml.v3"
)

// Sensor backends.
const (
	BackendSerial = "serial" // firmware streaming over a serial port
	BackendGPIOD  = "gpiod"  // Linux GPIO character device
	BackendPeriph = "periph" // periph.io pin registry
	BackendMock   = "mock"   // simulated chip
)

// Config represents the application configuration.
type Config struct {
	Serial      SerialConfig      `yaml:"serial"`
	Sensor      SensorConfig      `yaml:"sensor"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Level       level.Config      `yaml:"level"`
	Poll        PollConfig        `yaml:"poll"`
	Mock        MockConfig        `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// SensorConfig describes the HX711 wiring and signal conditioning.
type SensorConfig struct {
	Backend string `yaml:"backend"`
	Chip    string `yaml:"chip"` // gpiod chip name, e.g. gpiochip0

	ClockPin int `yaml:"clock_pin"`
	DataPin  int `yaml:"data_pin"`
	Gain     int `yaml:"gain"`

	// periph registry names overriding "GPIO<pin>", e.g. "P1_29"
	ClockName string `yaml:"clock_name,omitempty"`
	DataName  string `yaml:"data_name,omitempty"`

	Samples          int  `yaml:"samples"` // ring capacity, power of two in 4..128
	IgnoreLow        bool `yaml:"ignore_low"`
	IgnoreHigh       bool `yaml:"ignore_high"`
	ExactTrimDivisor bool `yaml:"exact_trim_divisor"`

	CalFactor  float32       `yaml:"cal_factor"`
	ClockDelay time.Duration `yaml:"clock_delay"`
	MaxDelta   int32         `yaml:"max_delta"` // 0 disables the guard, or selects hx711.DefaultHostMaxDelta on gpiod and periph
	Settle     time.Duration `yaml:"settle"`    // conversions discarded before the initial tare
}

// CalibrationConfig contains the stability criteria and the persisted result.
type CalibrationConfig struct {
	Tolerance        int32         `yaml:"tolerance"`
	MinStable        time.Duration `yaml:"min_stable"`
	HoldBetweenSteps bool          `yaml:"hold_between_steps"`

	// Persisted state
	Empty      int32 `yaml:"empty"`
	Full       int32 `yaml:"full"`
	Stable     bool  `yaml:"stable"` // a calibration has completed
	TareOffset int64 `yaml:"tare_offset"`
	Stock      int   `yaml:"stock"`
}

// PollConfig controls the acquisition and display cadence.
type PollConfig struct {
	Interval       time.Duration `yaml:"interval"`
	Window         time.Duration `yaml:"window"`          // history kept for display
	AverageSamples int           `yaml:"average_samples"` // host-side moving average, 0 = disabled
}

// MockConfig shapes the simulated load of the mock backend, in raw counts.
type MockConfig struct {
	Platform   int32         `yaml:"platform"`    // load cell zero, removed by tare
	Bottle     int32         `yaml:"bottle"`      // empty container
	Liquid     int32         `yaml:"liquid"`      // liquid of a full container
	Noise      int32         `yaml:"noise"`       // peak noise amplitude
	Period     time.Duration `yaml:"period"`      // full-drain-empty-swap cycle
	SampleRate time.Duration `yaml:"sample_rate"` // conversion rate
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port: "/dev/ttyACM0",
			Baud: 115200,
		},
		Sensor: SensorConfig{
			Backend:    BackendSerial,
			Chip:       "gpiochip0",
			ClockPin:   5,
			DataPin:    6,
			Gain:       int(hx711.Gain128),
			Samples:    hx711.DefaultSamples,
			CalFactor:  1,
			ClockDelay: hx711.DefaultClockDelay,
			Settle:     time.Second,
		},
		Calibration: CalibrationConfig{
			Tolerance: calibration.DefaultTolerance,
			MinStable: calibration.DefaultMinStable,
		},
		Level: level.DefaultConfig(),
		Poll: PollConfig{
			Interval: 200 * time.Millisecond,
			Window:   5 * time.Minute,
		},
		Mock: MockConfig{
			Platform:   84000,
			Bottle:     6500,
			Liquid:     120000,
			Noise:      4,
			Period:     2 * time.Minute,
			SampleRate: 100 * time.Millisecond, // HX711 at 10 SPS
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", filename, err)
	}
	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks values that have no usable default.
func (c *Config) Validate() error {
	switch c.Sensor.Backend {
	case BackendSerial, BackendGPIOD, BackendPeriph, BackendMock:
	default:
		return fmt.Errorf("unknown sensor backend %q", c.Sensor.Backend)
	}
	if _, err := c.Sensor.HX711(); err != nil {
		return err
	}
	if c.Sensor.CalFactor == 0 {
		return errors.New("sensor cal_factor must not be zero")
	}
	if c.Calibration.Tolerance < 0 {
		return errors.New("calibration tolerance must not be negative")
	}
	if c.Calibration.Stock < 0 {
		return errors.New("calibration stock must not be negative")
	}
	if c.Poll.Interval <= 0 {
		return errors.New("poll interval must be positive")
	}
	return nil
}

// HX711 converts the sensor section into a driver configuration.
func (s SensorConfig) HX711() (hx711.Config, error) {
	gain, err := hx711.ParseGain(s.Gain)
	if err != nil {
		return hx711.Config{}, err
	}
	cfg := hx711.Config{
		Clock:            hx711.Pin(s.ClockPin),
		Data:             hx711.Pin(s.DataPin),
		Gain:             gain,
		Samples:          s.Samples,
		IgnoreLow:        s.IgnoreLow,
		IgnoreHigh:       s.IgnoreHigh,
		ExactTrimDivisor: s.ExactTrimDivisor,
		CalFactor:        s.CalFactor,
		ClockDelay:       s.ClockDelay,
		MaxDelta:         s.MaxDelta,
	}
	if cfg.MaxDelta == 0 && (s.Backend == BackendGPIOD || s.Backend == BackendPeriph) {
		cfg.MaxDelta = hx711.DefaultHostMaxDelta
	}
	return cfg, cfg.Validate()
}

// Session returns the stability criteria of a calibration run.
func (c CalibrationConfig) Session() calibration.Config {
	return calibration.Config{
		Tolerance:        c.Tolerance,
		MinStable:        c.MinStable,
		HoldBetweenSteps: c.HoldBetweenSteps,
	}
}

// Points returns the persisted reference points. ok is false until a
// calibration has completed.
func (c CalibrationConfig) Points() (cal level.Calibration, ok bool) {
	return level.Calibration{Empty: c.Empty, Full: c.Full}, c.Stable
}

// Apply stores a completed calibration.
func (c *CalibrationConfig) Apply(res calibration.Result) {
	c.Empty = res.Empty
	c.Full = res.Full
	c.Stable = true
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = def.Serial.Baud
	}

	if c.Sensor.Backend == "" {
		c.Sensor.Backend = def.Sensor.Backend
	}
	if c.Sensor.Chip == "" {
		c.Sensor.Chip = def.Sensor.Chip
	}
	if c.Sensor.Gain == 0 {
		c.Sensor.Gain = def.Sensor.Gain
	}
	if c.Sensor.Samples == 0 {
		c.Sensor.Samples = def.Sensor.Samples
	}
	if c.Sensor.CalFactor == 0 {
		c.Sensor.CalFactor = def.Sensor.CalFactor
	}
	if c.Sensor.ClockDelay == 0 {
		c.Sensor.ClockDelay = def.Sensor.ClockDelay
	}

	if c.Calibration.Tolerance == 0 {
		c.Calibration.Tolerance = def.Calibration.Tolerance
	}
	if c.Calibration.MinStable == 0 {
		c.Calibration.MinStable = def.Calibration.MinStable
	}

	if c.Level.FullLiters == 0 {
		c.Level.FullLiters = def.Level.FullLiters
	}
	if c.Level.Divisions == 0 {
		c.Level.Divisions = def.Level.Divisions
	}
	if c.Level.StaticCount == 0 {
		c.Level.StaticCount = def.Level.StaticCount
	}
	if c.Level.Tolerance == 0 {
		c.Level.Tolerance = def.Level.Tolerance
	}

	if c.Poll.Interval == 0 {
		c.Poll.Interval = def.Poll.Interval
	}
	if c.Poll.Window == 0 {
		c.Poll.Window = def.Poll.Window
	}

	if c.Mock.Period == 0 {
		c.Mock.Period = def.Mock.Period
	}
	if c.Mock.SampleRate == 0 {
		c.Mock.SampleRate = def.Mock.SampleRate
	}
	if c.Mock.Liquid == 0 {
		c.Mock.Liquid = def.Mock.Liquid
	}
}
