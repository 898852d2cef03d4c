// Package signal holds the in-memory waveform type and the preprocessing
// transforms applied before beat detection. Every transform is pure: it returns a
// new Waveform and leaves its input untouched.
package signal

import (
	"math"

	"github.com/danielpatrickdp/hrv-parity/internal/hrverr"
)

// #region waveform
// Waveform is a uniformly sampled ECG/PPG trace.
type Waveform struct {
	Samples    []float64
	SampleRate float64 // Hz
}

// New copies samples into a Waveform.
func New(samples []float64, sampleRate float64) Waveform {
	cp := make([]float64, len(samples))
	copy(cp, samples)
	return Waveform{Samples: cp, SampleRate: sampleRate}
}

// Len returns the sample count.
func (w Waveform) Len() int { return len(w.Samples) }

// Duration returns the trace length in seconds.
func (w Waveform) Duration() float64 {
	if w.SampleRate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / w.SampleRate
}

// Validate checks the sample rate and that every sample is finite.
func (w Waveform) Validate() error {
	if w.SampleRate <= 0 || math.IsNaN(w.SampleRate) || math.IsInf(w.SampleRate, 0) {
		return hrverr.InvalidParameter("signal.Validate", "sample rate %v must be a positive finite number", w.SampleRate)
	}
	if len(w.Samples) == 0 {
		return hrverr.InsufficientData("signal.Validate", "waveform is empty")
	}
	for i, v := range w.Samples {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return hrverr.InvalidParameter("signal.Validate", "sample %d is not finite", i)
		}
	}
	return nil
}

// withSamples returns a Waveform sharing w's sample rate.
func (w Waveform) withSamples(s []float64) Waveform {
	return Waveform{Samples: s, SampleRate: w.SampleRate}
}
// #endregion waveform

// #region helpers
func minMax(x []float64) (float64, float64) {
	lo, hi := x[0], x[0]
	for _, v := range x[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
// #endregion helpers
