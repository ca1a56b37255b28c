// Package periphpin runs the hx711 protocol on pins from the periph.io
// registry, which covers the Raspberry Pi and most single board computers.
package periphpin

import (
	"fmt"
	"sync"

	"github.com/itohio/golcm/pkg/hx711"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var _ hx711.Driver = (*Driver)(nil)

// Driver implements hx711.Driver with periph.io pins. Pin numbers are
// resolved by name, "GPIO<n>" unless overridden.
type Driver struct {
	mu    sync.Mutex
	names map[hx711.Pin]string
	pins  map[hx711.Pin]gpio.PinIO
}

// Open initializes the periph host drivers.
func Open() (*Driver, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periphpin: host init: %w", err)
	}
	return newDriver(), nil
}

func newDriver() *Driver {
	return &Driver{
		names: make(map[hx711.Pin]string),
		pins:  make(map[hx711.Pin]gpio.PinIO),
	}
}

// Alias makes pin resolve to the registry name instead of "GPIO<n>".
func (d *Driver) Alias(pin hx711.Pin, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names[pin] = name
}

func (d *Driver) lookup(pin hx711.Pin) (gpio.PinIO, error) {
	name, ok := d.names[pin]
	if !ok {
		name = fmt.Sprintf("GPIO%d", pin)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("periphpin: no pin named %s", name)
	}
	return p, nil
}

// ConfigureOutput implements hx711.Driver.
func (d *Driver) ConfigureOutput(pin hx711.Pin) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.lookup(pin)
	if err != nil {
		return err
	}
	if err := p.Out(gpio.Low); err != nil {
		return fmt.Errorf("periphpin: %s as output: %w", p, err)
	}
	d.pins[pin] = p
	return nil
}

// ConfigureInput implements hx711.Driver.
func (d *Driver) ConfigureInput(pin hx711.Pin) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, err := d.lookup(pin)
	if err != nil {
		return err
	}
	if err := p.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return fmt.Errorf("periphpin: %s as input: %w", p, err)
	}
	d.pins[pin] = p
	return nil
}

// Set implements hx711.Driver.
func (d *Driver) Set(pin hx711.Pin, high bool) error {
	p, err := d.pin(pin)
	if err != nil {
		return err
	}
	return p.Out(gpio.Level(high))
}

// Get implements hx711.Driver.
func (d *Driver) Get(pin hx711.Pin) (bool, error) {
	p, err := d.pin(pin)
	if err != nil {
		return false, err
	}
	return p.Read() == gpio.High, nil
}

func (d *Driver) pin(pin hx711.Pin) (gpio.PinIO, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pins[pin]
	if !ok {
		return nil, fmt.Errorf("periphpin: pin %d not configured", pin)
	}
	return p, nil
}
