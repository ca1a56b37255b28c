//go:build linux

// Package gpiodpin runs the hx711 protocol on Linux GPIO character device
// lines. Pins are line offsets on a single chip.
package gpiodpin

import (
	"errors"
	"fmt"
	"sync"

	"github.com/itohio/golcm/pkg/hx711"
	"github.com/warthog618/gpiod"
	"go.uber.org/multierr"
)

// Consumer is the label the requested lines carry.
const Consumer = "golcm-hx711"

// ErrClosed indicates the driver is closed.
var ErrClosed = errors.New("gpiodpin: closed")

var _ hx711.Driver = (*Driver)(nil)

// Driver implements hx711.Driver on top of a gpiod chip.
type Driver struct {
	mu    sync.Mutex
	chip  *gpiod.Chip
	lines map[hx711.Pin]*gpiod.Line
}

// Open opens the named chip, e.g. "gpiochip0".
func Open(chip string) (*Driver, error) {
	c, err := gpiod.NewChip(chip, gpiod.WithConsumer(Consumer))
	if err != nil {
		return nil, fmt.Errorf("gpiodpin: open %s: %w", chip, err)
	}
	return &Driver{chip: c, lines: make(map[hx711.Pin]*gpiod.Line)}, nil
}

// ConfigureOutput implements hx711.Driver.
func (d *Driver) ConfigureOutput(pin hx711.Pin) error {
	return d.request(pin, gpiod.AsOutput(0))
}

// ConfigureInput implements hx711.Driver.
func (d *Driver) ConfigureInput(pin hx711.Pin) error {
	return d.request(pin, gpiod.AsInput)
}

func (d *Driver) request(pin hx711.Pin, opt gpiod.LineReqOption) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.chip == nil {
		return ErrClosed
	}
	if l, ok := d.lines[pin]; ok {
		// Re-requesting is the portable way to change direction.
		l.Close()
		delete(d.lines, pin)
	}
	l, err := d.chip.RequestLine(int(pin), opt)
	if err != nil {
		return fmt.Errorf("gpiodpin: request line %d: %w", pin, err)
	}
	d.lines[pin] = l
	return nil
}

// Set implements hx711.Driver.
func (d *Driver) Set(pin hx711.Pin, high bool) error {
	l, err := d.line(pin)
	if err != nil {
		return err
	}
	v := 0
	if high {
		v = 1
	}
	return l.SetValue(v)
}

// Get implements hx711.Driver.
func (d *Driver) Get(pin hx711.Pin) (bool, error) {
	l, err := d.line(pin)
	if err != nil {
		return false, err
	}
	v, err := l.Value()
	return v != 0, err
}

func (d *Driver) line(pin hx711.Pin) (*gpiod.Line, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.chip == nil {
		return nil, ErrClosed
	}
	l, ok := d.lines[pin]
	if !ok {
		return nil, fmt.Errorf("gpiodpin: line %d not requested", pin)
	}
	return l, nil
}

// Close releases all lines and the chip.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.chip == nil {
		return ErrClosed
	}
	var err error
	for pin, l := range d.lines {
		err = multierr.Append(err, l.Close())
		delete(d.lines, pin)
	}
	err = multierr.Append(err, d.chip.Close())
	d.chip = nil
	return err
}
