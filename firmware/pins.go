//go:build tinygo

package main

import "machine"

const (
	// Sampling configuration
	SAMPLE_INTERVAL_MS = 2 // Frame interval in milliseconds (500 Hz)
	NUM_CHANNELS       = 4 // Electrode channels streamed per frame

	// ADC configuration. The SAMD21 samples at 12 bits; frames are shifted
	// down to the 10-bit range the host pipeline expects (0-1023).
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)
	ADC_SHIFT        = 2    // 12-bit reading -> 10-bit frame value

	// Serial configuration
	// Baud rate calculation: Format "unix_micros,ch0,ch1,ch2,ch3\n"
	// Example: "1234567890123456,1023,1023,1023,1023\n" = ~37 bytes max per line
	// 500 frames/sec * 37 bytes/line = 18,500 bytes/sec
	// UART 8N1: 10 bits/byte = 185,000 baud minimum is too tight for 115200;
	// typical frames ("...,512,498,530,505\n") stay under 23 bytes, ~11,500
	// bytes/sec, which 115200 baud covers with no headroom to spare.
	UART_BAUD_RATE = 115200
)

// adcPins maps channel index to electrode input pin.
var adcPins = [NUM_CHANNELS]machine.Pin{
	machine.A0, // forearm flexor
	machine.A1, // forearm extensor
	machine.A2, // bicep brachii
	machine.A3, // tricep brachii
}
