// Package beats locates heartbeats in a preprocessed waveform with an adaptive
// threshold: a sample is a beat candidate when it is a local maximum above the
// rolling mean plus a multiple of the rolling standard deviation.
package beats

import (
	"math"

	"github.com/danielpatrickdp/hrv-parity/internal/hrverr"
	"github.com/danielpatrickdp/hrv-parity/internal/signal"
)

// Detector defaults.
const (
	DefaultThresholdScale = 0.5
	DefaultRefractoryMs   = 250.0
	DefaultWindowSec      = 1.0
)

// #region config
// Config holds the detector thresholds.
type Config struct {
	ThresholdScale float64 `json:"threshold_scale"` // multiples of rolling SD above rolling mean
	RefractoryMs   float64 `json:"refractory_ms"`   // minimum spacing between accepted beats
	WindowSec      float64 `json:"window_sec"`      // full width of the centred rolling window
}

// DefaultConfig returns the standard detector settings.
func DefaultConfig() Config {
	return Config{
		ThresholdScale: DefaultThresholdScale,
		RefractoryMs:   DefaultRefractoryMs,
		WindowSec:      DefaultWindowSec,
	}
}

// Validate rejects non-positive windows and negative thresholds.
func (c Config) Validate() error {
	if !(c.WindowSec > 0) || math.IsInf(c.WindowSec, 0) {
		return hrverr.InvalidParameter("beats.Config", "window %g s must be positive", c.WindowSec)
	}
	if c.RefractoryMs < 0 || math.IsNaN(c.RefractoryMs) {
		return hrverr.InvalidParameter("beats.Config", "refractory %g ms must be >= 0", c.RefractoryMs)
	}
	if math.IsNaN(c.ThresholdScale) || math.IsInf(c.ThresholdScale, 0) {
		return hrverr.InvalidParameter("beats.Config", "threshold scale must be finite")
	}
	return nil
}
// #endregion config

// #region detector
// Envelope computes the rolling mean and population SD of x over a centred
// window of half samples on each side, truncated at the edges.
type Envelope func(x []float64, half int) (mean, sd []float64)

// Detector finds beats with a given envelope kernel.
type Detector struct {
	config   Config
	envelope Envelope
}

// NewDetector creates a detector. A nil envelope selects PrefixSumEnvelope.
func NewDetector(config Config, envelope Envelope) *Detector {
	if envelope == nil {
		envelope = PrefixSumEnvelope
	}
	return &Detector{config: config, envelope: envelope}
}

// Detect returns the strictly increasing sample indices of detected beats.
func (d *Detector) Detect(w signal.Waveform) ([]int, error) {
	if err := d.config.Validate(); err != nil {
		return nil, err
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	x := w.Samples
	n := len(x)
	if n < 3 {
		return nil, hrverr.InsufficientData("beats.Detect", "%d samples, need at least 3", n)
	}

	half := int(math.Round(d.config.WindowSec * w.SampleRate / 2))
	if half < 1 {
		half = 1
	}
	mean, sd := d.envelope(x, half)

	// 1. Candidates: local maxima above the adaptive threshold.
	var candidates []int
	for i := 1; i < n-1; i++ {
		if x[i] <= mean[i]+d.config.ThresholdScale*sd[i] {
			continue
		}
		if x[i] > x[i-1] && x[i] >= x[i+1] {
			candidates = append(candidates, i)
		}
	}

	// 2. Refractory merge: within the window keep the larger peak.
	refractory := d.config.RefractoryMs / 1000 * w.SampleRate
	var peaks []int
	for _, c := range candidates {
		if len(peaks) == 0 {
			peaks = append(peaks, c)
			continue
		}
		last := peaks[len(peaks)-1]
		if float64(c-last) < refractory {
			if x[c] > x[last] {
				peaks[len(peaks)-1] = c
			}
			continue
		}
		peaks = append(peaks, c)
	}

	if len(peaks) < 2 {
		return nil, hrverr.InsufficientData("beats.Detect", "found %d beats, need at least 2", len(peaks))
	}
	return peaks, nil
}

// Detect runs a default-kernel detector with the given config.
func Detect(w signal.Waveform, config Config) ([]int, error) {
	return NewDetector(config, nil).Detect(w)
}
// #endregion detector

// #region envelopes
// PrefixSumEnvelope computes window statistics from cumulative sums of x and x².
func PrefixSumEnvelope(x []float64, half int) ([]float64, []float64) {
	n := len(x)
	s1 := make([]float64, n+1)
	s2 := make([]float64, n+1)
	for i, v := range x {
		s1[i+1] = s1[i] + v
		s2[i+1] = s2[i] + v*v
	}
	mean := make([]float64, n)
	sd := make([]float64, n)
	for i := range x {
		lo := max(0, i-half)
		hi := min(n, i+half+1)
		k := float64(hi - lo)
		m := (s1[hi] - s1[lo]) / k
		v := (s2[hi]-s2[lo])/k - m*m
		mean[i] = m
		sd[i] = math.Sqrt(math.Max(v, 0))
	}
	return mean, sd
}

// SlidingEnvelope maintains running sums as the window slides one sample at a
// time, centring each window on the current sample's mean before squaring.
func SlidingEnvelope(x []float64, half int) ([]float64, []float64) {
	n := len(x)
	mean := make([]float64, n)
	sd := make([]float64, n)
	lo, hi := 0, 0
	var sum float64
	for i := range x {
		for hi < min(n, i+half+1) {
			sum += x[hi]
			hi++
		}
		for lo < max(0, i-half) {
			sum -= x[lo]
			lo++
		}
		k := float64(hi - lo)
		m := sum / k
		var ss float64
		for j := lo; j < hi; j++ {
			d := x[j] - m
			ss += d * d
		}
		mean[i] = m
		sd[i] = math.Sqrt(ss / k)
	}
	return mean, sd
}
// #endregion envelopes
