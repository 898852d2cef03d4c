package signal

import (
	"math"
	"sort"

	"github.com/danielpatrickdp/hrv-parity/internal/hrverr"
)

// Default preprocessing constants.
const (
	DefaultScaleMin          = 0.0
	DefaultScaleMax          = 1024.0
	DefaultClippingThreshold = 1020.0
	DefaultHampelWindow      = 6
	DefaultHampelThreshold   = 3.0
	BaselineWanderCutoffHz   = 0.05
)

// #region scale
// Scale min-max rescales w into [newMin, newMax]. A flat trace cannot be
// rescaled and yields ErrNumericDegenerate.
func Scale(w Waveform, newMin, newMax float64) (Waveform, error) {
	if err := w.Validate(); err != nil {
		return Waveform{}, err
	}
	if newMax <= newMin {
		return Waveform{}, hrverr.InvalidParameter("signal.Scale", "range [%g, %g] is empty", newMin, newMax)
	}
	lo, hi := minMax(w.Samples)
	if hi == lo {
		return Waveform{}, hrverr.NumericDegenerate("signal.Scale", "flat waveform (all samples = %g)", lo)
	}
	out := make([]float64, len(w.Samples))
	k := (newMax - newMin) / (hi - lo)
	for i, v := range w.Samples {
		out[i] = (v-lo)*k + newMin
	}
	return w.withSamples(out), nil
}

// ZScore centres w on zero and divides by its population standard deviation.
func ZScore(w Waveform) (Waveform, error) {
	if err := w.Validate(); err != nil {
		return Waveform{}, err
	}
	var sum float64
	for _, v := range w.Samples {
		sum += v
	}
	mean := sum / float64(len(w.Samples))
	var ss float64
	for _, v := range w.Samples {
		ss += (v - mean) * (v - mean)
	}
	sd := math.Sqrt(ss / float64(len(w.Samples)))
	if sd == 0 {
		return Waveform{}, hrverr.NumericDegenerate("signal.ZScore", "zero variance")
	}
	out := make([]float64, len(w.Samples))
	for i, v := range w.Samples {
		out[i] = (v - mean) / sd
	}
	return w.withSamples(out), nil
}
// #endregion scale

// #region detrend
// MovingAverageDetrend subtracts a centred moving average of windowSec seconds.
func MovingAverageDetrend(w Waveform, windowSec float64) (Waveform, error) {
	if err := w.Validate(); err != nil {
		return Waveform{}, err
	}
	win := int(math.Round(windowSec * w.SampleRate))
	if win <= 1 {
		return w.withSamples(append([]float64(nil), w.Samples...)), nil
	}
	n := len(w.Samples)
	cum := make([]float64, n+1)
	for i, v := range w.Samples {
		cum[i+1] = cum[i] + v
	}
	out := make([]float64, n)
	for i := range w.Samples {
		start := max(0, i-win/2)
		end := min(n, i+win-win/2)
		out[i] = w.Samples[i] - (cum[end]-cum[start])/float64(end-start)
	}
	return w.withSamples(out), nil
}

// RemoveBaselineWander strips slow drift with a zero-phase high-pass.
func RemoveBaselineWander(w Waveform) (Waveform, error) {
	return Highpass(w, BaselineWanderCutoffHz, 2)
}
// #endregion detrend

// #region hampel
// Hampel replaces samples deviating from their windowed median by more than
// threshold scaled MADs with that median.
func Hampel(w Waveform, window int, threshold float64) (Waveform, error) {
	if err := w.Validate(); err != nil {
		return Waveform{}, err
	}
	if window < 2 || threshold <= 0 {
		return Waveform{}, hrverr.InvalidParameter("signal.Hampel", "window %d / threshold %g out of range", window, threshold)
	}
	half := window / 2
	n := len(w.Samples)
	out := append([]float64(nil), w.Samples...)
	buf := make([]float64, 0, 2*half+1)
	dev := make([]float64, 0, 2*half+1)
	for i := range w.Samples {
		buf = append(buf[:0], w.Samples[max(0, i-half):min(n, i+half+1)]...)
		med := median(buf)
		dev = dev[:0]
		for _, v := range buf {
			dev = append(dev, math.Abs(v-med))
		}
		mad := 1.4826 * median(dev)
		if mad > 0 && math.Abs(w.Samples[i]-med) > threshold*mad {
			out[i] = med
		}
	}
	return w.withSamples(out), nil
}

func median(x []float64) float64 {
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	m := len(s) / 2
	if len(s)%2 == 0 {
		return (s[m-1] + s[m]) / 2
	}
	return s[m]
}
// #endregion hampel

// #region clipping
// InterpolateClipping reconstructs runs of samples at or above threshold
// (sensor saturation) with a cubic through the two samples on each side.
func InterpolateClipping(w Waveform, threshold float64) (Waveform, error) {
	if err := w.Validate(); err != nil {
		return Waveform{}, err
	}
	x := w.Samples
	n := len(x)
	out := append([]float64(nil), x...)
	for i := 0; i < n; {
		if x[i] < threshold {
			i++
			continue
		}
		start := i
		for i < n && x[i] >= threshold {
			i++
		}
		end := i - 1
		if start < 2 || end > n-3 {
			continue
		}
		ts := []float64{float64(start - 2), float64(start - 1), float64(end + 1), float64(end + 2)}
		vs := []float64{x[start-2], x[start-1], x[end+1], x[end+2]}
		for j := start; j <= end; j++ {
			out[j] = lagrange(ts, vs, float64(j))
		}
	}
	return w.withSamples(out), nil
}

func lagrange(ts, vs []float64, t float64) float64 {
	var sum float64
	for i := range ts {
		term := vs[i]
		for j := range ts {
			if i != j {
				term *= (t - ts[j]) / (ts[i] - ts[j])
			}
		}
		sum += term
	}
	return sum
}
// #endregion clipping

// #region enhance
// EnhancePeaks sharpens peaks by repeatedly squaring the rescaled trace.
func EnhancePeaks(w Waveform, iterations int) (Waveform, error) {
	out, err := Scale(w, DefaultScaleMin, DefaultScaleMax)
	if err != nil {
		return Waveform{}, err
	}
	for k := 0; k < iterations; k++ {
		sq := make([]float64, out.Len())
		for i, v := range out.Samples {
			sq[i] = v * v
		}
		out, err = Scale(out.withSamples(sq), DefaultScaleMin, DefaultScaleMax)
		if err != nil {
			return Waveform{}, err
		}
	}
	return out, nil
}
// #endregion enhance
