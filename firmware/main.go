//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"time"
)

var (
	adcs [NUM_CHANNELS]machine.ADC

	// Timing
	lastADCRead time.Time
)

func main() {
	// Configure ADC pins and set up ADCs with the bridge resolution
	adcConfig := machine.ADCConfig{
		Reference:  ADC_REFERENCE_MV,
		Resolution: ADC_RESOLUTION,
	}

	for i, pin := range adcPins {
		pin.Configure(machine.PinConfig{Mode: machine.PinInput})
		adcs[i] = machine.ADC{Pin: pin}
		adcs[i].Configure(adcConfig)
	}

	machine.UART0.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	// Initialize timing
	lastADCRead = time.Now()

	// Main loop: the bridge is a dumb fixed-rate sampler, all conditioning
	// happens host-side.
	for {
		now := time.Now()

		if now.Sub(lastADCRead) >= time.Duration(SAMPLE_INTERVAL_MS)*time.Millisecond {
			outputFrame()
			lastADCRead = now
		}

		// Small delay to prevent tight loop (but still allow precise timing)
		time.Sleep(100 * time.Microsecond)
	}
}

func outputFrame() {
	// Get timestamp in unix microseconds
	timestampMicros := time.Now().UnixNano() / 1000

	// Output format: "unix_micros,ch0,ch1,...,chN-1\n"
	// Example: "1234567890123,512,498,530,505\n"
	print(timestampMicros)
	for i := range adcs {
		print(",")
		print(adcs[i].Get() >> ADC_SHIFT)
	}
	print("\n")
}
