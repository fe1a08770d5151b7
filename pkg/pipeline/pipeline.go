package pipeline

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/itohio/goemg/pkg/config"
	"github.com/itohio/goemg/pkg/emg"
	"github.com/itohio/goemg/pkg/telemetry"
)

const snrSentinel = telemetry.SNRSentinel

// tuning holds the shared conditioning constants, converted to float32 once
// at construction.
type tuning struct {
	alpha            float32
	multiplier       float32
	compress         bool
	scale            float32
	postGain         float32
	peakDecay        float32
	useNoiseFloor    bool
	noiseFloorMargin float32
}

// Pipeline owns the per-channel conditioning state and drives one full cycle
// per scheduler trigger: read raw, filter, envelope, calibrate or threshold,
// peak-track, then emit telemetry. Everything runs on the caller's goroutine;
// no channel state is shared or locked.
type Pipeline struct {
	source  emg.Source
	emitter *telemetry.Emitter

	channels []*Channel
	tuning   tuning
	midscale float32

	// Scheduler countdown. Elapsed time is subtracted each poll; when it goes
	// non-positive one cycle runs and the nominal period is added back (not
	// reset), so overrun is credited and the cadence does not drift. At most
	// one cycle runs per trigger; under sustained overload samples are
	// skipped, never queued.
	period time.Duration
	timer  time.Duration

	// Calibration: shared cycle counter across channels.
	calibTarget  int
	calibCount   int
	calibStarted bool
	calibrated   bool

	minSNR          float32
	qualityInterval time.Duration
	lastQuality     time.Time

	startTime time.Time

	// Per-cycle scratch, reused to keep the cycle allocation-free.
	outputs   []float32
	baselines []float32
	snrs      []float32
}

// New builds a pipeline for the configured channels, reading raw samples from
// source and writing telemetry to sink.
func New(cfg *config.Config, source emg.Source, sink io.Writer) *Pipeline {
	n := len(cfg.Channels)
	channels := make([]*Channel, n)
	for i, cc := range cfg.Channels {
		channels[i] = newChannel(cc, float64(cfg.Sampling.RateHz), cfg.Envelope.Window)
	}

	return &Pipeline{
		source:   source,
		emitter:  telemetry.NewEmitter(sink, cfg.Telemetry.Precision),
		channels: channels,
		tuning: tuning{
			alpha:            float32(cfg.Threshold.Alpha),
			multiplier:       float32(cfg.Threshold.Multiplier),
			compress:         cfg.Threshold.Compress,
			scale:            float32(cfg.Threshold.Scale),
			postGain:         float32(cfg.Threshold.PostGain),
			peakDecay:        float32(cfg.Peak.Decay),
			useNoiseFloor:    cfg.Calibration.UseNoiseFloor,
			noiseFloorMargin: float32(cfg.Calibration.NoiseFloorMargin),
		},
		midscale:        float32(cfg.Sampling.ADCMax) / 2,
		period:          cfg.SamplePeriod(),
		timer:           cfg.SamplePeriod(),
		calibTarget:     cfg.Calibration.Samples,
		minSNR:          float32(cfg.Quality.MinSNR),
		qualityInterval: cfg.Quality.Interval,
		outputs:         make([]float32, n),
		baselines:       make([]float32, n),
		snrs:            make([]float32, n),
	}
}

// Step advances the scheduler by the measured elapsed time since the previous
// poll and runs at most one conditioning cycle. Returns whether a cycle ran.
func (p *Pipeline) Step(elapsed time.Duration, now time.Time) bool {
	p.timer -= elapsed
	if p.timer > 0 {
		return false
	}
	p.timer += p.period

	p.runCycle(now)
	return true
}

// Run drives the pipeline until the context is cancelled, pacing the
// cooperative loop with a short sleep between polls.
func (p *Pipeline) Run(ctx context.Context) {
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := time.Now()
		p.Step(now.Sub(last), now)
		last = now

		time.Sleep(100 * time.Microsecond)
	}
}

// runCycle executes one full pass over every channel.
func (p *Pipeline) runCycle(now time.Time) {
	if p.startTime.IsZero() {
		p.startTime = now
		p.lastQuality = now
	}

	if !p.calibrated {
		p.calibrationCycle()
		return
	}

	for i, ch := range p.channels {
		envelope := ch.condition(p.source.Read(i), p.midscale)
		p.outputs[i] = ch.update(envelope, &p.tuning)
		p.baselines[i] = ch.baseline
	}

	ts := now.Sub(p.startTime).Milliseconds()
	if err := p.emitter.Data(ts, p.outputs, p.baselines); err != nil {
		log.Printf("Failed to emit data line: %v", err)
	}

	// The quality gate is wall-clock driven, independent of sample cadence.
	if now.Sub(p.lastQuality) >= p.qualityInterval {
		p.lastQuality = now
		p.qualityCheck()
	}
}

// calibrationCycle accumulates resting envelopes; no thresholded output is
// emitted until every channel is calibrated.
func (p *Pipeline) calibrationCycle() {
	if !p.calibStarted {
		p.calibStarted = true
		if err := p.emitter.Status("CALIBRATION_START,%d", p.calibTarget); err != nil {
			log.Printf("Failed to emit status line: %v", err)
		}
	}

	for i, ch := range p.channels {
		ch.accumulate(ch.condition(p.source.Read(i), p.midscale))
	}
	p.calibCount++

	if p.calibCount%(p.calibTarget/4+1) == 0 && p.calibCount < p.calibTarget {
		p.emitter.Status("CALIBRATION_PROGRESS,%d", p.calibCount*100/p.calibTarget)
	}

	if p.calibCount >= p.calibTarget {
		for _, ch := range p.channels {
			ch.finishCalibration(p.calibTarget, &p.tuning)
		}
		p.calibrated = true
		if err := p.emitter.Status("CALIBRATION_COMPLETE"); err != nil {
			log.Printf("Failed to emit status line: %v", err)
		}
	}
}

// qualityCheck computes per-channel SNR and emits the quality record.
// Advisory only; it never alters the conditioning path.
func (p *Pipeline) qualityCheck() {
	classification := telemetry.Good
	for i, ch := range p.channels {
		p.snrs[i] = ch.snr()
		if p.snrs[i] < p.minSNR {
			classification = telemetry.LowQuality
		}
	}

	if err := p.emitter.Quality(p.snrs, classification); err != nil {
		log.Printf("Failed to emit quality line: %v", err)
	}
}

// Calibrated reports whether the rest-baseline calibration has completed.
func (p *Pipeline) Calibrated() bool {
	return p.calibrated
}

// Channels returns the pipeline's channels, indexed as configured.
func (p *Pipeline) Channels() []*Channel {
	return p.channels
}
