// Package synth generates deterministic ECG and PPG traces with known beat
// timing, used for smoke tests and for exercising the pipeline without
// recorded data.
package synth

import (
	"math"

	"github.com/danielpatrickdp/hrv-parity/internal/signal"
)

// #region config
// Shape selects the per-beat waveform.
type Shape string

const (
	ShapeECG Shape = "ecg"
	ShapePPG Shape = "ppg"
)

// Config describes a synthetic recording. Heart rate is modulated by a
// respiratory (HF) and a Mayer-wave (LF) sinusoid.
type Config struct {
	Shape        Shape
	SampleRate   float64 // Hz
	Seconds      float64
	HeartRateBPM float64
	RespHz       float64 // respiratory sinus arrhythmia frequency
	RespDepthBPM float64 // peak HR swing due to respiration
	LFHz         float64
	LFDepthBPM   float64
	Noise        float64 // amplitude of deterministic pseudo-noise
	Baseline     float64 // amplitude of slow baseline wander
}

// DefaultConfig returns a 3-minute 72 BPM PPG recording at 100 Hz.
func DefaultConfig() Config {
	return Config{
		Shape:        ShapePPG,
		SampleRate:   100,
		Seconds:      180,
		HeartRateBPM: 72,
		RespHz:       0.25,
		RespDepthBPM: 4,
		LFHz:         0.1,
		LFDepthBPM:   2,
		Noise:        0.02,
		Baseline:     0.05,
	}
}
// #endregion config

// #region generate
// Generate renders the trace and returns it with the sample index at which
// every beat's dominant peak (R wave or systolic peak) was placed.
func Generate(cfg Config) (signal.Waveform, []int) {
	beat, peakPhase := ppgCycle, ppgPeak
	if cfg.Shape == ShapeECG {
		beat, peakPhase = ecgCycle, ecgPeak
	}

	n := int(cfg.Seconds * cfg.SampleRate)
	samples := make([]float64, n)
	var peaks []int

	phase := 0.0
	for i := 0; i < n; i++ {
		t := float64(i) / cfg.SampleRate
		hr := cfg.HeartRateBPM +
			cfg.RespDepthBPM*math.Sin(2*math.Pi*cfg.RespHz*t) +
			cfg.LFDepthBPM*math.Sin(2*math.Pi*cfg.LFHz*t)

		prev := phase
		phase += hr / 60.0 / cfg.SampleRate
		if phase >= 1.0 {
			phase -= 1.0
		}
		if prev < peakPhase && phase >= peakPhase {
			peaks = append(peaks, i)
		}

		samples[i] = beat(phase) +
			cfg.Baseline*math.Sin(2*math.Pi*0.05*t) +
			cfg.Noise*(2*fract(math.Sin(12345.678*float64(i))*9876.543)-1)
	}
	return signal.Waveform{Samples: samples, SampleRate: cfg.SampleRate}, peaks
}

const (
	ecgPeak = 0.32
	ppgPeak = 0.25
)

// ecgCycle draws P, QRS and T waves as gaussians over a normalised cardiac phase.
func ecgCycle(t float64) float64 {
	p := 0.08 * gauss(t, 0.18, 0.03)
	q := -0.12 * gauss(t, 0.30, 0.01)
	r := 1.00 * gauss(t, ecgPeak, 0.008)
	s := -0.25 * gauss(t, 0.35, 0.012)
	tw := 0.25 * gauss(t, 0.60, 0.06)
	return p + q + r + s + tw
}

// ppgCycle is a systolic pulse with a diastolic shoulder on its falling edge.
func ppgCycle(t float64) float64 {
	return gauss(t, ppgPeak, 0.06) + 0.3*gauss(t, 0.42, 0.08)
}

func gauss(x, mu, sigma float64) float64 {
	z := (x - mu) / sigma
	return math.Exp(-0.5 * z * z)
}

func fract(x float64) float64 { return x - math.Floor(x) }
// #endregion generate

// #region rr
// RRIntervals returns the RR intervals (ms) implied by a list of beat indices.
func RRIntervals(beats []int, sampleRate float64) []float64 {
	if len(beats) < 2 {
		return nil
	}
	out := make([]float64, len(beats)-1)
	for i := 1; i < len(beats); i++ {
		out[i-1] = float64(beats[i]-beats[i-1]) / sampleRate * 1000
	}
	return out
}
// #endregion rr
