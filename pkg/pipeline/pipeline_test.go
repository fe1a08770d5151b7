package pipeline

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/itohio/goemg/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSource serves fixed per-channel raw values and counts reads.
type stubSource struct {
	values    []uint16
	reads     int
	connected bool
}

func (s *stubSource) Connect() error { s.connected = true; return nil }
func (s *stubSource) Close() error   { s.connected = false; return nil }
func (s *stubSource) Read(ch int) uint16 {
	s.reads++
	return s.values[ch]
}
func (s *stubSource) Channels() int     { return len(s.values) }
func (s *stubSource) IsConnected() bool { return s.connected }

var identityCoefficients = [][]float64{
	{1, 0, 0, 0, 0},
	{1, 0, 0, 0, 0},
	{1, 0, 0, 0, 0},
	{1, 0, 0, 0, 0},
}

// testConfig builds a deterministic configuration: identity filters so the
// envelope tracks |raw - 500| directly, a short window, and a short
// calibration phase.
func testConfig(channels int) *config.Config {
	cfg := config.Default()
	cfg.Sampling.RateHz = 500
	cfg.Sampling.ADCMax = 1000
	cfg.Envelope.Window = 4
	cfg.Calibration.Samples = 10
	cfg.Calibration.UseNoiseFloor = false
	cfg.Threshold.Alpha = 0.97
	cfg.Threshold.Multiplier = 0.25
	cfg.Threshold.Compress = false
	cfg.Threshold.Scale = 1
	cfg.Threshold.PostGain = 1
	cfg.Peak.Decay = 0.998
	cfg.Quality.MinSNR = 2.0
	cfg.Quality.Interval = 50 * time.Millisecond
	cfg.Telemetry.Precision = 2

	cfg.Channels = nil
	for i := 0; i < channels; i++ {
		cfg.Channels = append(cfg.Channels, config.ChannelConfig{
			Name:         "ch" + strconv.Itoa(i),
			Gain:         1,
			Coefficients: identityCoefficients,
		})
	}
	return cfg
}

// drive runs n conditioning cycles back to back.
func drive(p *Pipeline, start time.Time, n int) time.Time {
	now := start
	for i := 0; i < n; i++ {
		now = now.Add(p.period)
		p.Step(p.period, now)
	}
	return now
}

func emgLines(buf *bytes.Buffer) []string {
	var out []string
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.HasPrefix(line, "EMG,") {
			out = append(out, line)
		}
	}
	return out
}

func TestPipeline_CalibrationTransitionsExactlyOnce(t *testing.T) {
	var buf bytes.Buffer
	src := &stubSource{values: []uint16{600, 500}}
	p := New(testConfig(2), src, &buf)

	start := time.Now()
	now := drive(p, start, 9)
	assert.False(t, p.Calibrated())
	assert.NotContains(t, buf.String(), "CALIBRATION_COMPLETE")

	drive(p, now, 1)
	assert.True(t, p.Calibrated())
	assert.Contains(t, buf.String(), "CALIBRATION_START,10")
	assert.Contains(t, buf.String(), "CALIBRATION_COMPLETE")
	assert.Equal(t, 1, strings.Count(buf.String(), "CALIBRATION_COMPLETE\n"))
}

func TestPipeline_BaselineIsMeanOfCalibrationWindow(t *testing.T) {
	var buf bytes.Buffer
	src := &stubSource{values: []uint16{600, 500}}
	p := New(testConfig(2), src, &buf)

	drive(p, time.Now(), 10)
	require.True(t, p.Calibrated())

	// Channel 0 sees |600-500| = 100 through a window of 4: the envelope
	// ramps 25, 50, 75 and then holds at 100 for the remaining 7 cycles.
	want := (25.0 + 50 + 75 + 100*7) / 10
	assert.InDelta(t, want, p.Channels()[0].Baseline(), 0.01)

	// Channel 1 rests at midscale, so its baseline is exactly zero.
	assert.Equal(t, float32(0), p.Channels()[1].Baseline())
}

func TestPipeline_BaselineScalesWithGain(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig(1)
	cfg.Channels[0].Gain = 2

	src := &stubSource{values: []uint16{600}}
	p := New(cfg, src, &buf)

	drive(p, time.Now(), 10)
	require.True(t, p.Calibrated())
	assert.InDelta(t, 2*(25.0+50+75+100*7)/10, p.Channels()[0].Baseline(), 0.01)
}

func TestPipeline_OutputSuppressedWhileCalibrating(t *testing.T) {
	var buf bytes.Buffer
	src := &stubSource{values: []uint16{900}}
	p := New(testConfig(1), src, &buf)

	drive(p, time.Now(), 9)
	assert.Empty(t, emgLines(&buf), "no data lines may be emitted before calibration completes")

	drive(p, time.Now(), 2)
	assert.NotEmpty(t, emgLines(&buf))
}

func TestPipeline_RestingInputYieldsZeroOutput(t *testing.T) {
	var buf bytes.Buffer
	src := &stubSource{values: []uint16{600}}
	p := New(testConfig(1), src, &buf)

	now := drive(p, time.Now(), 10)
	require.True(t, p.Calibrated())

	buf.Reset()
	drive(p, now, 50)

	for _, line := range emgLines(&buf) {
		fields := strings.Split(line, ",")
		require.Len(t, fields, 4) // EMG, ts, out0, base0
		assert.Equal(t, "0.00", fields[2], "resting input must not produce control output")
	}
}

func TestPipeline_ContractionProducesOutput(t *testing.T) {
	var buf bytes.Buffer
	src := &stubSource{values: []uint16{600}}
	p := New(testConfig(1), src, &buf)

	now := drive(p, time.Now(), 10)
	require.True(t, p.Calibrated())

	// Strong step well above baseline*multiplier.
	src.values[0] = 950
	drive(p, now, 20)

	out := p.Channels()[0].Output()
	assert.Positive(t, out)
	assert.Greater(t, p.Channels()[0].Peak(), float32(0))
}

func TestPipeline_SchedulerCreditsOverrun(t *testing.T) {
	var buf bytes.Buffer
	src := &stubSource{values: []uint16{600}}
	p := New(testConfig(1), src, &buf) // period = 2ms

	now := time.Now()
	assert.False(t, p.Step(time.Millisecond, now), "half a period elapsed")
	assert.True(t, p.Step(time.Millisecond, now), "period boundary reached")

	// A 5ms overrun is credited: the next two polls trigger immediately.
	assert.True(t, p.Step(5*time.Millisecond, now))
	assert.True(t, p.Step(0, now))
	assert.False(t, p.Step(0, now), "credit repaid, timer positive again")
}

func TestPipeline_OneCyclePerTrigger(t *testing.T) {
	var buf bytes.Buffer
	src := &stubSource{values: []uint16{600, 600}}
	p := New(testConfig(2), src, &buf)

	// Ten periods elapse in one poll; only one cycle (one read per channel)
	// may run, the missed samples are skipped, not queued.
	p.Step(10*p.period, time.Now())
	assert.Equal(t, 2, src.reads)
}

func TestPipeline_QualitySentinelOnZeroBaseline(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig(1)
	src := &stubSource{values: []uint16{500}} // Exactly midscale: zero envelope
	p := New(cfg, src, &buf)

	now := drive(p, time.Now(), 10)
	require.True(t, p.Calibrated())
	require.Equal(t, float32(0), p.Channels()[0].Baseline())

	// Cross the wall-clock quality interval.
	now = now.Add(cfg.Quality.Interval)
	p.Step(p.period, now)

	assert.Contains(t, buf.String(), "QUALITY,999.00,GOOD\n")
}

func TestPipeline_LowQualityClassification(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig(1)
	cfg.Quality.MinSNR = 50 // Unreachably strict
	src := &stubSource{values: []uint16{600}}
	p := New(cfg, src, &buf)

	now := drive(p, time.Now(), 10)
	require.True(t, p.Calibrated())

	now = now.Add(cfg.Quality.Interval)
	p.Step(p.period, now)

	require.Contains(t, buf.String(), "QUALITY,")
	assert.Contains(t, buf.String(), ",LOW_QUALITY\n")
}

func TestPipeline_QualityGateIsWallClock(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig(1)
	src := &stubSource{values: []uint16{600}}
	p := New(cfg, src, &buf)

	now := drive(p, time.Now(), 10)

	// Many cycles inside one quality interval: no quality line yet.
	buf.Reset()
	drive(p, now, 5)
	assert.NotContains(t, buf.String(), "QUALITY,")
}

func TestPipeline_DataLineFormat(t *testing.T) {
	var buf bytes.Buffer
	src := &stubSource{values: []uint16{600, 500}}
	p := New(testConfig(2), src, &buf)

	now := drive(p, time.Now(), 10)
	buf.Reset()
	drive(p, now, 1)

	lines := emgLines(&buf)
	require.Len(t, lines, 1)
	fields := strings.Split(lines[0], ",")
	require.Len(t, fields, 6) // EMG, ts, out0, out1, base0, base1

	_, err := strconv.ParseInt(fields[1], 10, 64)
	assert.NoError(t, err, "timestamp field must be integer milliseconds")
	for _, f := range fields[2:] {
		_, err := strconv.ParseFloat(f, 64)
		assert.NoError(t, err)
	}
}

func TestPipeline_BandPassEndToEnd(t *testing.T) {
	// Real designed filters instead of identity coefficients: a channel tuned
	// to 70-150 Hz must respond far more to a 100 Hz tone than to 20 Hz.
	cfg := testConfig(1)
	cfg.Channels[0].Coefficients = nil
	cfg.Channels[0].LowHz = 70
	cfg.Channels[0].HighHz = 150
	cfg.Envelope.Window = 32
	cfg.Calibration.Samples = 100

	envelopeAfter := func(freq float64) float32 {
		var buf bytes.Buffer
		src := &toneSource{freq: freq, amplitude: 50, sampleRate: 500}
		p := New(cfg, src, &buf)
		drive(p, time.Now(), 2000)
		return p.Channels()[0].Baseline() + p.Channels()[0].Peak()
	}

	inBand := envelopeAfter(100)
	outOfBand := envelopeAfter(20)
	assert.Greater(t, inBand, outOfBand*3)
}

// toneSource synthesizes a sinusoid around midscale, advancing one sample per
// read.
type toneSource struct {
	freq       float64
	amplitude  float64
	sampleRate float64
	n          int
	connected  bool
}

func (s *toneSource) Connect() error { s.connected = true; return nil }
func (s *toneSource) Close() error   { s.connected = false; return nil }
func (s *toneSource) Read(ch int) uint16 {
	v := 500 + s.amplitude*math.Sin(2*math.Pi*s.freq*float64(s.n)/s.sampleRate)
	s.n++
	return uint16(v)
}
func (s *toneSource) Channels() int     { return 1 }
func (s *toneSource) IsConnected() bool { return s.connected }
