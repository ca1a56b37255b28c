// Package device provides the sources of load cell readings: firmware
// streaming over a serial port, an HX711 polled directly on local GPIO and a
// simulated load for development.
package device

import (
	"errors"
	"time"
)

const (
	// DefaultBufferSize is the default size for the samples channel buffer.
	DefaultBufferSize = 100
)

var (
	// ErrNotConnected is returned by commands sent to a closed or never
	// connected device.
	ErrNotConnected = errors.New("not connected")
	// ErrAlreadyConnected is returned by a second Connect.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrClosed is returned by Connect after Close. Devices are single use.
	ErrClosed = errors.New("device closed")
)

// RawSample is one smoothed reading as produced by the acquisition side.
type RawSample struct {
	Timestamp  time.Time
	Raw        int32 // tared, unscaled smoothed reading
	TareOffset int64 // smoothed sum subtracted by the tare
	Primed     bool  // the smoothing ring has been filled once
	TareDone   bool  // a tare completed with this sample
}

// Device defines the interface for reading sources (serial, local or mocked).
type Device interface {
	Connect() error
	Close() error
	Samples() <-chan RawSample
	Tare() error
	PowerDown() error
	PowerUp() error
	IsConnected() bool
}

var (
	_ Device = (*Serial)(nil)
	_ Device = (*Local)(nil)
	_ Device = (*Mock)(nil)
)
