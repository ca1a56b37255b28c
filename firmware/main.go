//go:generate tinygo flash -target=xiao
//go:build tinygo

package main

import (
	"machine"
	"strconv"
	"time"

	"github.com/itohio/golcm/pkg/hx711"
)

var (
	uart = machine.UART0

	// Serial buffer for reading one command line
	serialBuffer [24]byte
	serialPos    int
)

// pins drives the HX711 from machine pins.
type pins struct{}

func (pins) ConfigureOutput(p hx711.Pin) error {
	machine.Pin(p).Configure(machine.PinConfig{Mode: machine.PinOutput})
	return nil
}

func (pins) ConfigureInput(p hx711.Pin) error {
	machine.Pin(p).Configure(machine.PinConfig{Mode: machine.PinInput})
	return nil
}

func (pins) Set(p hx711.Pin, high bool) error {
	machine.Pin(p).Set(high)
	return nil
}

func (pins) Get(p hx711.Pin) (bool, error) {
	return machine.Pin(p).Get(), nil
}

func main() {
	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	dev, err := hx711.New(pins{}, hx711.Config{
		Clock:      hx711.Pin(PIN_HX711_SCK),
		Data:       hx711.Pin(PIN_HX711_DOUT),
		Gain:       hx711.Gain128,
		Samples:    NUM_SAMPLES,
		IgnoreLow:  true,
		IgnoreHigh: true,
		MaxDelta:   MAX_DELTA,
	})
	if err != nil {
		halt(err)
	}

	started := false
	poweredDown := false
	for {
		now := time.Now()
		if cmd, arg, ok := processSerial(); ok {
			switch cmd {
			case 'T':
				dev.TareNoDelay()
			case 'O':
				dev.SetTareOffset(arg)
				started = true
			case 'D':
				poweredDown = dev.PowerDown() == nil
			case 'U':
				if dev.PowerUp() == nil {
					poweredDown = false
				}
			}
		}

		switch {
		case poweredDown:
		case !started:
			// Stream placeholders until the start tare completes so the
			// host sees the link is alive.
			done, err := dev.StartNoDelay(now, SETTLE_MS*time.Millisecond)
			if err != nil {
				println("hx711:", err.Error())
			}
			started = done
			output(now, dev, done, done)
		default:
			st, err := dev.Update()
			if err != nil {
				println("hx711:", err.Error())
			}
			switch st {
			case hx711.StatusSample:
				output(now, dev, dev.Primed(), false)
			case hx711.StatusTared:
				output(now, dev, true, dev.TareDone())
			}
		}

		time.Sleep(POLL_INTERVAL_MS * time.Millisecond)
	}
}

func halt(err error) {
	for {
		println("hx711:", err.Error())
		time.Sleep(time.Second)
	}
}

// output prints "unix_micros,raw,tare_offset,flags\n" where flags holds the
// primed and tare-done bits.
func output(now time.Time, dev *hx711.Device, primed, tared bool) {
	print(now.UnixNano() / 1000)
	print(",")
	print(dev.Raw())
	print(",")
	print(dev.TareOffset())
	print(",")
	printFlag(primed)
	printFlag(tared)
	print("\n")
}

func printFlag(v bool) {
	if v {
		print("1")
	} else {
		print("0")
	}
}

// processSerial reads available bytes and returns a complete command. Only
// 'O' carries an argument, a signed decimal tare offset.
func processSerial() (byte, int64, bool) {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			n := serialPos
			serialPos = 0
			if n == 0 {
				continue
			}
			cmd := serialBuffer[0]
			if cmd != 'O' {
				if n == 1 {
					return cmd, 0, true
				}
				continue
			}
			arg, err := strconv.ParseInt(string(serialBuffer[1:n]), 10, 64)
			if err != nil {
				continue
			}
			return cmd, arg, true
		}

		if data == ' ' || data == '\t' {
			continue
		}

		valid := false
		switch {
		case serialPos == 0:
			valid = data == 'T' || data == 'D' || data == 'U' || data == 'O'
		case serialBuffer[0] == 'O':
			valid = data == '-' && serialPos == 1 || data >= '0' && data <= '9'
		}
		if !valid || serialPos >= len(serialBuffer) {
			serialPos = 0
			continue
		}
		serialBuffer[serialPos] = data
		serialPos++
	}
	return 0, 0, false
}
