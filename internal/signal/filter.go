package signal

import (
	"math"

	"github.com/danielpatrickdp/hrv-parity/internal/hrverr"
)

// #region section
// section is a second-order (or first-order, b2=a2=0) IIR stage in
// transposed direct form II, normalised so a0 = 1.
type section struct {
	b0, b1, b2 float64
	a1, a2     float64
}

func (s section) run(x []float64) {
	var z1, z2 float64
	for i, in := range x {
		out := s.b0*in + z1
		z1 = s.b1*in - s.a1*out + z2
		z2 = s.b2*in - s.a2*out
		x[i] = out
	}
}
// #endregion section

// #region design
type passType int

const (
	lowPass passType = iota
	highPass
)

// butterworth returns the cascade for an order-n Butterworth low- or high-pass
// at cutoff Hz. Biquads use the bilinear transform with prewarping at the cutoff.
func butterworth(kind passType, order int, cutoff, fs float64) []section {
	var out []section
	for k := 0; k < order/2; k++ {
		q := 1.0 / (2.0 * math.Sin(float64(2*k+1)*math.Pi/float64(2*order)))
		out = append(out, biquad(kind, cutoff, fs, q))
	}
	if order%2 == 1 {
		out = append(out, firstOrder(kind, cutoff, fs))
	}
	return out
}

func biquad(kind passType, f0, fs, q float64) section {
	w0 := 2 * math.Pi * f0 / fs
	cosw, sinw := math.Cos(w0), math.Sin(w0)
	alpha := sinw / (2 * q)
	a0 := 1 + alpha

	var b0, b1, b2 float64
	if kind == lowPass {
		b0 = (1 - cosw) / 2
		b1 = 1 - cosw
		b2 = (1 - cosw) / 2
	} else {
		b0 = (1 + cosw) / 2
		b1 = -(1 + cosw)
		b2 = (1 + cosw) / 2
	}
	return section{
		b0: b0 / a0,
		b1: b1 / a0,
		b2: b2 / a0,
		a1: -2 * cosw / a0,
		a2: (1 - alpha) / a0,
	}
}

func firstOrder(kind passType, fc, fs float64) section {
	k := math.Tan(math.Pi * fc / fs)
	a1 := (k - 1) / (k + 1)
	if kind == lowPass {
		return section{b0: k / (1 + k), b1: k / (1 + k), a1: a1}
	}
	return section{b0: 1 / (1 + k), b1: -1 / (1 + k), a1: a1}
}
// #endregion design

// #region filtfilt
// filtfilt runs the cascade forward then backward over an odd-reflected copy
// of x, which cancels the phase response and keeps peaks in place.
func filtfilt(x []float64, sections []section) []float64 {
	n := len(x)
	if n == 0 {
		return []float64{}
	}
	pad := 3 * (2*len(sections) + 1)
	if pad > n-1 {
		pad = n - 1
	}

	ext := make([]float64, n+2*pad)
	for i := 0; i < pad; i++ {
		ext[i] = 2*x[0] - x[pad-i]
		ext[n+pad+i] = 2*x[n-1] - x[n-2-i]
	}
	copy(ext[pad:], x)

	for _, s := range sections {
		s.run(ext)
	}
	reverse(ext)
	for _, s := range sections {
		s.run(ext)
	}
	reverse(ext)

	out := make([]float64, n)
	copy(out, ext[pad:pad+n])
	return out
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}
// #endregion filtfilt

// #region filters
// Bandpass applies a zero-phase Butterworth band-pass of the given order
// (a high-pass at lowHz cascaded with a low-pass at highHz).
func Bandpass(w Waveform, lowHz, highHz float64, order int) (Waveform, error) {
	if err := w.Validate(); err != nil {
		return Waveform{}, err
	}
	nyq := w.SampleRate / 2
	if !(lowHz > 0 && lowHz < highHz && highHz < nyq) {
		return Waveform{}, hrverr.InvalidParameter("signal.Bandpass",
			"cutoffs must satisfy 0 < low < high < fs/2 (low=%g high=%g fs/2=%g)", lowHz, highHz, nyq)
	}
	if order < 1 {
		return Waveform{}, hrverr.InvalidParameter("signal.Bandpass", "order %d must be >= 1", order)
	}
	cascade := append(butterworth(highPass, order, lowHz, w.SampleRate),
		butterworth(lowPass, order, highHz, w.SampleRate)...)
	return w.withSamples(filtfilt(w.Samples, cascade)), nil
}

// Highpass applies a zero-phase Butterworth high-pass.
func Highpass(w Waveform, cutoff float64, order int) (Waveform, error) {
	return singleEdge(w, highPass, cutoff, order, "signal.Highpass")
}

// Lowpass applies a zero-phase Butterworth low-pass.
func Lowpass(w Waveform, cutoff float64, order int) (Waveform, error) {
	return singleEdge(w, lowPass, cutoff, order, "signal.Lowpass")
}

func singleEdge(w Waveform, kind passType, cutoff float64, order int, op string) (Waveform, error) {
	if err := w.Validate(); err != nil {
		return Waveform{}, err
	}
	if !(cutoff > 0 && cutoff < w.SampleRate/2) {
		return Waveform{}, hrverr.InvalidParameter(op, "cutoff %g must satisfy 0 < cutoff < fs/2 (%g)", cutoff, w.SampleRate/2)
	}
	if order < 1 {
		return Waveform{}, hrverr.InvalidParameter(op, "order %d must be >= 1", order)
	}
	return w.withSamples(filtfilt(w.Samples, butterworth(kind, order, cutoff, w.SampleRate))), nil
}
// #endregion filters
