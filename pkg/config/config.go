package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial      SerialConfig      `yaml:"serial"`
	Sampling    SamplingConfig    `yaml:"sampling"`
	Channels    []ChannelConfig   `yaml:"channels"`
	Envelope    EnvelopeConfig    `yaml:"envelope"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Threshold   ThresholdConfig   `yaml:"threshold"`
	Peak        PeakConfig        `yaml:"peak"`
	Quality     QualityConfig     `yaml:"quality"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Mock        MockConfig        `yaml:"mock"`
}

// SerialConfig contains serial port configuration for the ADC bridge.
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// SamplingConfig contains the fixed-rate sampling parameters.
type SamplingConfig struct {
	RateHz int `yaml:"rate_hz"` // Conditioning cycles per second
	ADCMax int `yaml:"adc_max"` // Full-scale ADC reading (1023 for 10-bit)
}

// ChannelConfig describes one EMG channel.
type ChannelConfig struct {
	Name   string  `yaml:"name"`   // Electrode site, e.g. "forearm_flexor"
	Gain   float64 `yaml:"gain"`   // Single per-channel amplification constant
	LowHz  float64 `yaml:"low_hz"` // Band-pass lower edge
	HighHz float64 `yaml:"high_hz"`
	// Coefficients optionally overrides the designed band-pass with literal
	// biquad coefficients, four sections of [b0 b1 b2 a1 a2].
	Coefficients [][]float64 `yaml:"coefficients,omitempty"`
}

// EnvelopeConfig contains the moving-average rectifier parameters.
type EnvelopeConfig struct {
	Window int `yaml:"window"` // Circular buffer length B
}

// CalibrationConfig contains the rest-baseline calibration parameters.
type CalibrationConfig struct {
	Samples          int     `yaml:"samples"`            // Cycles accumulated before Calibrated
	NoiseFloorMargin float64 `yaml:"noise_floor_margin"` // Noise floor = baseline * (1 + margin)
	UseNoiseFloor    bool    `yaml:"use_noise_floor"`    // Floor the threshold by the noise floor
}

// ThresholdConfig contains the adaptive threshold parameters.
type ThresholdConfig struct {
	Alpha      float64 `yaml:"alpha"`      // Baseline EMA smoothing, close to 1
	Multiplier float64 `yaml:"multiplier"` // Threshold = baseline * (1 + multiplier)
	Compress   bool    `yaml:"compress"`   // Square-root compression of the excess
	Scale      float64 `yaml:"scale"`      // Compression output scale
	PostGain   float64 `yaml:"post_gain"`  // Final multiplicative gain
}

// PeakConfig contains the decaying peak-hold parameters.
type PeakConfig struct {
	Decay float64 `yaml:"decay"` // Per-cycle decay, close to but below 1
}

// QualityConfig contains the signal-quality monitor parameters.
type QualityConfig struct {
	MinSNR   float64       `yaml:"min_snr"`  // Minimum acceptable peak/baseline ratio
	Interval time.Duration `yaml:"interval"` // Wall-clock check interval
}

// TelemetryConfig contains telemetry output parameters.
type TelemetryConfig struct {
	Precision  int    `yaml:"precision"` // Decimal places on data lines
	MqttBroker string `yaml:"mqtt_broker,omitempty"`
	MqttTopic  string `yaml:"mqtt_topic,omitempty"`
}

// MockConfig contains mock device configuration.
type MockConfig struct {
	RestLevel     float64       `yaml:"rest_level"`     // Resting ADC offset from midscale
	NoiseLevel    float64       `yaml:"noise_level"`    // Noise amplitude in ADC counts
	BurstLevel    float64       `yaml:"burst_level"`    // Contraction amplitude in ADC counts
	BurstDuration time.Duration `yaml:"burst_duration"` // Contraction length
	BurstPeriod   time.Duration `yaml:"burst_period"`   // Time between contractions
	ToneHz        float64       `yaml:"tone_hz"`        // Carrier frequency of the synthetic EMG
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:     "/dev/ttyACM0",
			BaudRate: 115200,
		},
		Sampling: SamplingConfig{
			RateHz: 500,
			ADCMax: 1023,
		},
		Channels: []ChannelConfig{
			{Name: "forearm_flexor", Gain: 2.0, LowHz: 70, HighHz: 190},
			{Name: "forearm_extensor", Gain: 2.0, LowHz: 70, HighHz: 190},
		},
		Envelope: EnvelopeConfig{
			Window: 32,
		},
		Calibration: CalibrationConfig{
			Samples:          1000,
			NoiseFloorMargin: 0.15,
			UseNoiseFloor:    true,
		},
		Threshold: ThresholdConfig{
			Alpha:      0.97,
			Multiplier: 0.25,
			Compress:   true,
			Scale:      10.0,
			PostGain:   1.0,
		},
		Peak: PeakConfig{
			Decay: 0.998,
		},
		Quality: QualityConfig{
			MinSNR:   2.0,
			Interval: time.Second,
		},
		Telemetry: TelemetryConfig{
			Precision: 2,
		},
		Mock: MockConfig{
			RestLevel:     8.0,
			NoiseLevel:    4.0,
			BurstLevel:    120.0,
			BurstDuration: 2 * time.Second,
			BurstPeriod:   6 * time.Second,
			ToneHz:        110,
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
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

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

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}

	if c.Sampling.RateHz == 0 {
		c.Sampling.RateHz = def.Sampling.RateHz
	}
	if c.Sampling.ADCMax == 0 {
		c.Sampling.ADCMax = def.Sampling.ADCMax
	}

	if len(c.Channels) == 0 {
		c.Channels = def.Channels
	}
	for i := range c.Channels {
		if c.Channels[i].Gain == 0 {
			c.Channels[i].Gain = 1.0
		}
		if c.Channels[i].LowHz == 0 {
			c.Channels[i].LowHz = def.Channels[0].LowHz
		}
		if c.Channels[i].HighHz == 0 {
			c.Channels[i].HighHz = def.Channels[0].HighHz
		}
	}

	if c.Envelope.Window == 0 {
		c.Envelope.Window = def.Envelope.Window
	}

	if c.Calibration.Samples == 0 {
		c.Calibration.Samples = def.Calibration.Samples
	}
	if c.Calibration.NoiseFloorMargin == 0 {
		c.Calibration.NoiseFloorMargin = def.Calibration.NoiseFloorMargin
	}

	if c.Threshold.Alpha == 0 {
		c.Threshold.Alpha = def.Threshold.Alpha
	}
	if c.Threshold.Multiplier == 0 {
		c.Threshold.Multiplier = def.Threshold.Multiplier
	}
	if c.Threshold.Scale == 0 {
		c.Threshold.Scale = def.Threshold.Scale
	}
	if c.Threshold.PostGain == 0 {
		c.Threshold.PostGain = def.Threshold.PostGain
	}

	if c.Peak.Decay == 0 {
		c.Peak.Decay = def.Peak.Decay
	}

	if c.Quality.MinSNR == 0 {
		c.Quality.MinSNR = def.Quality.MinSNR
	}
	if c.Quality.Interval == 0 {
		c.Quality.Interval = def.Quality.Interval
	}

	if c.Telemetry.Precision == 0 {
		c.Telemetry.Precision = def.Telemetry.Precision
	}

	if c.Mock.NoiseLevel == 0 {
		c.Mock.NoiseLevel = def.Mock.NoiseLevel
	}
	if c.Mock.BurstLevel == 0 {
		c.Mock.BurstLevel = def.Mock.BurstLevel
	}
	if c.Mock.BurstDuration == 0 {
		c.Mock.BurstDuration = def.Mock.BurstDuration
	}
	if c.Mock.BurstPeriod == 0 {
		c.Mock.BurstPeriod = def.Mock.BurstPeriod
	}
	if c.Mock.ToneHz == 0 {
		c.Mock.ToneHz = def.Mock.ToneHz
	}
}

// SamplePeriod returns the nominal conditioning cycle period.
func (c *Config) SamplePeriod() time.Duration {
	return time.Duration(float64(time.Second) / float64(c.Sampling.RateHz))
}
