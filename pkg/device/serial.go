package device

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// DefaultBaudRate is the firmware UART rate.
const DefaultBaudRate = 115200

// Firmware commands, one per line.
const (
	CmdTare      = 'T'
	CmdPowerDown = 'D'
	CmdPowerUp   = 'U'

	// CmdTareOffset is followed by a signed decimal offset, e.g. "O-84000".
	CmdTareOffset = 'O'
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

type openFunc func(name string, mode *serial.Mode) (serial.Port, error)

// Serial is a load cell firmware streaming readings over a serial port.
type Serial struct {
	port     string
	baudRate int
	open     openFunc

	conn      serial.Port
	samples   chan RawSample
	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool
	closed    bool

	// restore is sent on Connect. Until a sample carries it, tares reported
	// by the firmware stem from its boot sequence and are not forwarded.
	restore   int64
	restoring bool
}

// NewSerial creates a device on the given port. Zero baudRate and bufSize
// select the defaults.
func NewSerial(port string, baudRate int, bufSize int) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Serial{
		port:     port,
		baudRate: baudRate,
		open:     serial.Open,
		samples:  make(chan RawSample, bufSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Connect opens the serial port and starts reading samples.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.connected {
		return ErrAlreadyConnected
	}

	port, err := d.open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}

	if d.restoring {
		if err := writeLine(port, tareOffsetLine(d.restore)); err != nil {
			port.Close()
			return fmt.Errorf("failed to restore tare offset on %s: %w", d.port, err)
		}
	}

	d.conn = port
	d.connected = true
	log.WithFields(log.Fields{"port": d.port, "baud": d.baudRate}).Info("Serial device connected")

	go d.readSamples()

	return nil
}

// Close closes the port, waits for the reader and closes the samples channel.
func (d *Serial) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.cancel()

	var err error
	wasConnected := d.connected
	if d.conn != nil {
		// Closing the port unblocks the scanner.
		err = d.conn.Close()
		d.conn = nil
	}
	d.connected = false
	d.mu.Unlock()

	if wasConnected {
		<-d.done
	}
	close(d.samples)

	if err != nil {
		return fmt.Errorf("failed to close serial port %s: %w", d.port, err)
	}
	return nil
}

// Samples returns the channel for reading samples.
func (d *Serial) Samples() <-chan RawSample {
	return d.samples
}

// RestoreTare makes Connect hand a persisted zero reference to the firmware
// before its own boot tare completes.
func (d *Serial) RestoreTare(offset int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.restore = offset
	d.restoring = true
}

// SetTareOffset sends a zero reference to the connected firmware.
func (d *Serial) SetTareOffset(offset int64) error {
	return d.send(tareOffsetLine(offset))
}

// Tare asks the firmware to tare.
func (d *Serial) Tare() error {
	d.mu.Lock()
	d.restoring = false
	d.mu.Unlock()
	return d.command(CmdTare)
}

// PowerDown asks the firmware to power the ADC down.
func (d *Serial) PowerDown() error {
	return d.command(CmdPowerDown)
}

// PowerUp asks the firmware to power the ADC up.
func (d *Serial) PowerUp() error {
	return d.command(CmdPowerUp)
}

func (d *Serial) command(cmd byte) error {
	return d.send(string(cmd))
}

func (d *Serial) send(line string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return ErrNotConnected
	}

	if err := writeLine(d.conn, line); err != nil {
		return fmt.Errorf("failed to send command %q: %w", line, err)
	}
	return nil
}

func writeLine(w io.Writer, line string) error {
	_, err := io.WriteString(w, line+"\n")
	return err
}

func tareOffsetLine(offset int64) string {
	return string(CmdTareOffset) + strconv.FormatInt(offset, 10)
}

// checkRestore drops the tare-done flag of samples reported before the
// firmware adopted the restored offset.
func (d *Serial) checkRestore(s *RawSample) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.restoring {
		return
	}
	if s.TareOffset == d.restore {
		d.restoring = false
		return
	}
	if s.TareDone {
		log.WithField("tare_offset", s.TareOffset).Debug("Ignoring firmware boot tare")
		s.TareDone = false
	}
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// readSamples reads lines from the serial port and parses them into RawSample.
func (d *Serial) readSamples() {
	defer close(d.done)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Panic in readSamples: %v", r)
		}
	}()

	d.mu.RLock()
	conn := d.conn
	d.mu.RUnlock()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		sample, err := parseLine(line)
		if err != nil {
			log.WithField("line", line).Warnf("Failed to parse line: %v", err)
			continue
		}
		d.checkRestore(&sample)

		select {
		case d.samples <- sample:
		case <-d.ctx.Done():
			return
		default:
			log.Warn("Samples channel full, dropping sample")
		}
	}

	if err := scanner.Err(); err != nil && err != io.EOF && d.ctx.Err() == nil {
		log.Errorf("Error reading from serial port: %v", err)
	}

	d.mu.Lock()
	d.connected = false
	d.mu.Unlock()
}

// parseLine parses a line from the firmware into a RawSample.
// Format: unix_micros,raw,tare_offset,flags where flags holds the primed and
// tare-done bits as '0'/'1'.
// Example: 1234567890123,4520,-84000,10
func parseLine(line string) (RawSample, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 4 {
		return RawSample{}, fmt.Errorf("invalid line format: expected 4 comma-separated values, got %d", len(parts))
	}

	timestampMicros, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	raw, err := strconv.ParseInt(parts[1], 10, 32)
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid raw reading: %w", err)
	}

	offset, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return RawSample{}, fmt.Errorf("invalid tare offset: %w", err)
	}

	flags := parts[3]
	if len(flags) != 2 {
		return RawSample{}, fmt.Errorf("invalid flags: expected 2 digits, got %d", len(flags))
	}
	for _, c := range flags {
		if c != '0' && c != '1' {
			return RawSample{}, fmt.Errorf("invalid flag %q", c)
		}
	}

	return RawSample{
		Timestamp:  time.UnixMicro(timestampMicros),
		Raw:        int32(raw),
		TareOffset: offset,
		Primed:     flags[0] == '1',
		TareDone:   flags[1] == '1',
	}, nil
}

// FormatLine renders s in the firmware line format, without the newline.
func FormatLine(s RawSample) string {
	flag := func(b bool) byte {
		if b {
			return '1'
		}
		return '0'
	}
	return fmt.Sprintf("%d,%d,%d,%c%c", s.Timestamp.UnixMicro(), s.Raw, s.TareOffset, flag(s.Primed), flag(s.TareDone))
}
