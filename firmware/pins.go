//go:build tinygo

package main

import "machine"

const (
	// HX711 wiring
	PIN_HX711_SCK  = machine.D2
	PIN_HX711_DOUT = machine.D3

	// Sampling configuration
	POLL_INTERVAL_MS = 100 // HX711 converts at 10 SPS with RATE low
	NUM_SAMPLES      = 16  // smoothing ring capacity, power of two
	SETTLE_MS        = 500 // conversions discarded after power up before the first tare
	MAX_DELTA        = 0   // jump guard in raw counts, 0 = disabled

	// Serial configuration
	// Format "unix_micros,raw,tare_offset,flags\n"
	// Example: "1234567890123456,-8388608,-1073741824,11\n" = ~45 bytes max per line
	// 10 lines/sec * 45 bytes = 450 bytes/sec, far below 115200 baud.
	UART_BAUD_RATE = 115200
)
