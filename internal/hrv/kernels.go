package hrv

import (
	"math"
	"math/cmplx"
	"sort"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// #region kernels
// Kernels bundles the numeric primitives a metric calculator is built on.
// Two independent sets exist so parity runs compare different arithmetic.
type Kernels struct {
	Name   string
	MeanSD func(x []float64) (mean, sd float64)
	Median func(x []float64) float64
	Window func(n int) []float64
	DFT    func(x []float64) []complex128
}

// ReferenceKernels uses two-pass moments, sort-based medians and go-dsp's FFT.
func ReferenceKernels() Kernels {
	return Kernels{
		Name:   "reference",
		MeanSD: TwoPassMeanSD,
		Median: SortMedian,
		Window: window.Hann,
		DFT:    fft.FFTReal,
	}
}

// CandidateKernels uses Welford moments, quickselect medians and a direct DFT.
func CandidateKernels() Kernels {
	return Kernels{
		Name:   "candidate",
		MeanSD: WelfordMeanSD,
		Median: SelectMedian,
		Window: HannWindow,
		DFT:    DirectDFT,
	}
}
// #endregion kernels

// #region moments
// TwoPassMeanSD returns the mean and population SD. Empty input gives NaN.
func TwoPassMeanSD(x []float64) (float64, float64) {
	if len(x) == 0 {
		return math.NaN(), math.NaN()
	}
	var sum float64
	for _, v := range x {
		sum += v
	}
	mean := sum / float64(len(x))
	var ss float64
	for _, v := range x {
		ss += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(ss / float64(len(x)))
}

// WelfordMeanSD computes the same moments in a single streaming pass.
func WelfordMeanSD(x []float64) (float64, float64) {
	if len(x) == 0 {
		return math.NaN(), math.NaN()
	}
	var mean, m2 float64
	for i, v := range x {
		d := v - mean
		mean += d / float64(i+1)
		m2 += d * (v - mean)
	}
	return mean, math.Sqrt(m2 / float64(len(x)))
}
// #endregion moments

// #region medians
// SortMedian sorts a copy of x. Empty input gives NaN.
func SortMedian(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	m := len(s) / 2
	if len(s)%2 == 0 {
		return (s[m-1] + s[m]) / 2
	}
	return s[m]
}

// SelectMedian finds the middle order statistics with quickselect.
func SelectMedian(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), x...)
	m := len(s) / 2
	hi := quickselect(s, m)
	if len(s)%2 == 1 {
		return hi
	}
	// After selection every element left of m is <= s[m].
	lo := s[0]
	for _, v := range s[1:m] {
		if v > lo {
			lo = v
		}
	}
	return (lo + hi) / 2
}

// quickselect partially orders s so s[k] is the k-th smallest and returns it.
func quickselect(s []float64, k int) float64 {
	lo, hi := 0, len(s)-1
	for lo < hi {
		pivot := s[(lo+hi)/2]
		i, j := lo, hi
		for i <= j {
			for s[i] < pivot {
				i++
			}
			for s[j] > pivot {
				j--
			}
			if i <= j {
				s[i], s[j] = s[j], s[i]
				i++
				j--
			}
		}
		switch {
		case k <= j:
			hi = j
		case k >= i:
			lo = i
		default:
			return s[k]
		}
	}
	return s[k]
}
// #endregion medians

// #region spectral
// HannWindow returns the symmetric Hann window of length n.
func HannWindow(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return w
}

// DirectDFT evaluates the discrete Fourier transform term by term.
func DirectDFT(x []float64) []complex128 {
	n := len(x)
	out := make([]complex128, n)
	for k := 0; k < n; k++ {
		var re, im float64
		for t, v := range x {
			angle := -2 * math.Pi * float64(k*t%n) / float64(n)
			re += v * math.Cos(angle)
			im += v * math.Sin(angle)
		}
		out[k] = complex(re, im)
	}
	return out
}

func sqMag(c complex128) float64 {
	a := cmplx.Abs(c)
	return a * a
}
// #endregion spectral
