package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/itohio/goemg/pkg/config"
	"github.com/itohio/goemg/pkg/emg"
	"github.com/itohio/goemg/pkg/pipeline"
	"github.com/itohio/goemg/pkg/telemetry"
)

func main() {
	var (
		portFlag   = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag   = flag.Bool("mock", false, "Use mocked EMG source instead of serial port")
		mqttFlag   = flag.String("mqtt", "", "MQTT broker override (e.g., tcp://localhost:1883)")
		listFlag   = flag.Bool("list", false, "List available serial ports and exit")
	)
	flag.Parse()

	if *listFlag {
		ports, err := emg.Ports()
		if err != nil {
			log.Fatalf("Failed to list serial ports: %v", err)
		}
		for _, p := range ports {
			log.Println(p)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Override serial port if provided via command line
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *mqttFlag != "" {
		cfg.Telemetry.MqttBroker = *mqttFlag
	}

	// Create the raw sample source
	var source emg.Source
	if *mockFlag {
		source = emg.NewMock(&cfg.Mock, len(cfg.Channels), cfg.Sampling.ADCMax)
	} else {
		source = emg.New(cfg.Serial.Port, cfg.Serial.BaudRate, len(cfg.Channels), cfg.Sampling.ADCMax)
	}

	if err := source.Connect(); err != nil {
		log.Fatalf("Failed to connect to EMG source: %v", err)
	}
	defer source.Close()

	// Telemetry goes to stdout, optionally fanned out to MQTT
	var sink io.Writer = os.Stdout
	if cfg.Telemetry.MqttBroker != "" {
		topic := cfg.Telemetry.MqttTopic
		if topic == "" {
			topic = "goemg/telemetry"
		}
		mw, err := telemetry.NewMQTTWriter(cfg.Telemetry.MqttBroker, topic)
		if err != nil {
			log.Fatalf("Failed to set up MQTT telemetry: %v", err)
		}
		defer mw.Close()
		sink = io.MultiWriter(os.Stdout, mw)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(cfg, source, sink)

	log.Printf("Conditioning %d channels at %d Hz (calibration: %d samples)",
		len(cfg.Channels), cfg.Sampling.RateHz, cfg.Calibration.Samples)
	p.Run(ctx)
	log.Println("Shutting down")
}
