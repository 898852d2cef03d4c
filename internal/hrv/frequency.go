package hrv

import (
	"math"

	"github.com/danielpatrickdp/hrv-parity/internal/hrverr"
	"github.com/danielpatrickdp/hrv-parity/internal/rr"
)

// #region freq-config
// Band is a half-open frequency band [Lo, Hi) in Hz.
type Band struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

// FreqConfig holds the resampling and Welch settings.
type FreqConfig struct {
	ResampleHz  float64 `json:"resample_hz"`
	RRSplineS   float64 `json:"rr_spline_s"` // target smoothing spline SSE in ms²; 0 interpolates
	WelchSec    float64 `json:"welch_sec"`   // Welch segment length, clipped to the series length
	Overlap     float64 `json:"overlap"`     // fraction of a segment shared with the next
	VLFBand     Band    `json:"vlf_band"`
	LFBand      Band    `json:"lf_band"`
	HFBand      Band    `json:"hf_band"`
	BreathingLo float64 `json:"breathing_lo"`
	BreathingHi float64 `json:"breathing_hi"`
}

// DefaultFreqConfig returns the standard frequency-domain settings.
func DefaultFreqConfig() FreqConfig {
	return FreqConfig{
		ResampleHz:  4,
		RRSplineS:   10,
		WelchSec:    240,
		Overlap:     0.5,
		VLFBand:     Band{0.0033, 0.04},
		LFBand:      Band{0.04, 0.15},
		HFBand:      Band{0.15, 0.4},
		BreathingLo: 0.1,
		BreathingHi: 0.5,
	}
}

// Validate checks the resampling rate, segment length and overlap. A Welch
// segment must hold at least minWelchSamples resampled points.
func (c FreqConfig) Validate() error {
	if !(c.ResampleHz > 0) {
		return hrverr.InvalidParameter("hrv.FreqConfig", "resample rate %g must be positive", c.ResampleHz)
	}
	if !(c.WelchSec > 0) {
		return hrverr.InvalidParameter("hrv.FreqConfig", "welch segment %g s must be positive", c.WelchSec)
	}
	if n := math.Round(c.WelchSec * c.ResampleHz); n < minWelchSamples {
		return hrverr.InvalidParameter("hrv.FreqConfig", "welch segment %g s at %g Hz is %g samples, need %d",
			c.WelchSec, c.ResampleHz, n, minWelchSamples)
	}
	if c.Overlap < 0 || c.Overlap >= 1 {
		return hrverr.InvalidParameter("hrv.FreqConfig", "overlap %g must be in [0, 1)", c.Overlap)
	}
	if !(c.BreathingLo < c.BreathingHi) {
		return hrverr.InvalidParameter("hrv.FreqConfig", "breathing band [%g, %g] is empty", c.BreathingLo, c.BreathingHi)
	}
	return nil
}
// #endregion freq-config

// #region psd
// minWelchSamples is the shortest resampled series a spectrum is estimated from.
const minWelchSamples = 16

// PSD is a one-sided power spectral density in ms²/Hz.
type PSD struct {
	Freqs []float64
	Power []float64
}

// Welch estimates the PSD of x sampled at fs with segments of nperseg
// samples, the given overlap, a Hann window, constant detrend and density
// scaling.
func Welch(x []float64, fs float64, nperseg int, overlap float64, k Kernels) PSD {
	if nperseg > len(x) {
		nperseg = len(x)
	}
	if nperseg < 2 {
		return PSD{}
	}
	step := nperseg - int(float64(nperseg)*overlap)
	if step < 1 {
		step = 1
	}
	win := k.Window(nperseg)
	var wss float64
	for _, w := range win {
		wss += w * w
	}
	scale := 1 / (fs * wss)

	bins := nperseg/2 + 1
	power := make([]float64, bins)
	segs := 0
	seg := make([]float64, nperseg)
	for start := 0; start+nperseg <= len(x); start += step {
		mean, _ := k.MeanSD(x[start : start+nperseg])
		for i := range seg {
			seg[i] = (x[start+i] - mean) * win[i]
		}
		spec := k.DFT(seg)
		for b := 0; b < bins; b++ {
			p := sqMag(spec[b]) * scale
			if b != 0 && !(nperseg%2 == 0 && b == nperseg/2) {
				p *= 2
			}
			power[b] += p
		}
		segs++
	}

	freqs := make([]float64, bins)
	for b := range freqs {
		freqs[b] = float64(b) * fs / float64(nperseg)
		power[b] /= float64(segs)
	}
	return PSD{Freqs: freqs, Power: power}
}

// BandPower integrates the PSD over [band.Lo, band.Hi) with the trapezoid
// rule. Fewer than 2 bins in the band leaves it Undefined.
func (p PSD) BandPower(band Band) Value {
	var idx []int
	for i, f := range p.Freqs {
		if f >= band.Lo && f < band.Hi {
			idx = append(idx, i)
		}
	}
	if len(idx) < 2 {
		return Undefined()
	}
	var area float64
	for j := 0; j+1 < len(idx); j++ {
		a, b := idx[j], idx[j+1]
		area += (p.Power[a] + p.Power[b]) / 2 * (p.Freqs[b] - p.Freqs[a])
	}
	return Defined(area)
}

// PeakFrequency returns the frequency of the largest bin in [lo, hi].
func (p PSD) PeakFrequency(lo, hi float64) Value {
	best := -1
	for i, f := range p.Freqs {
		if f < lo || f > hi {
			continue
		}
		if best < 0 || p.Power[i] > p.Power[best] {
			best = i
		}
	}
	if best < 0 {
		return Undefined()
	}
	return Defined(p.Freqs[best])
}
// #endregion psd

// #region frequency-domain
// Spectrum resamples the valid intervals of s on a uniform grid and returns
// their Welch PSD.
func Spectrum(s rr.Series, cfg FreqConfig, k Kernels) (PSD, error) {
	if err := cfg.Validate(); err != nil {
		return PSD{}, err
	}
	onsets := s.ValidOnsets()
	intervals := s.ValidIntervals()
	if len(onsets) < 4 {
		return PSD{}, hrverr.InsufficientData("hrv.Spectrum", "%d valid intervals, need at least 4", len(onsets))
	}
	t := make([]float64, len(onsets))
	for i, v := range onsets {
		t[i] = v / 1000
	}
	sp, err := SmoothingSpline(t, intervals, cfg.RRSplineS)
	if err != nil {
		return PSD{}, err
	}
	y := sp.Resample(cfg.ResampleHz)
	if len(y) < minWelchSamples {
		return PSD{}, hrverr.InsufficientData("hrv.Spectrum", "%d resampled points, need %d", len(y), minWelchSamples)
	}
	nperseg := int(math.Round(cfg.WelchSec * cfg.ResampleHz))
	return Welch(y, cfg.ResampleHz, nperseg, cfg.Overlap, k), nil
}

// FrequencyDomain fills band powers, their ratios and the breathing rate.
// When the series is too short for a spectrum every field stays Undefined
// and the record is flagged.
func FrequencyDomain(s rr.Series, cfg FreqConfig, k Kernels, rec *Record) error {
	psd, err := Spectrum(s, cfg, k)
	if err != nil {
		if hrverr.KindOf(err) == hrverr.ErrInsufficientData {
			rec.Flag(flag(hrverr.ErrInsufficientData, "spectrum"))
			return nil
		}
		return err
	}

	rec.VLF = psd.BandPower(cfg.VLFBand)
	rec.LF = psd.BandPower(cfg.LFBand)
	rec.HF = psd.BandPower(cfg.HFBand)

	lf, lfOK := rec.LF.Float()
	hf, hfOK := rec.HF.Float()
	if lfOK && hfOK && hf >= 1e-12 {
		rec.LFHF = Defined(lf / hf)
	} else if lfOK && hfOK {
		rec.Flag(flag(hrverr.ErrNumericDegenerate, string(LFHF)))
	}
	if lfOK && hfOK && lf+hf > 0 {
		rec.LFNorm = Defined(100 * lf / (lf + hf))
		rec.HFNorm = Defined(100 * hf / (lf + hf))
	}
	if vlf, ok := rec.VLF.Float(); ok && lfOK && hfOK {
		rec.TotalPower = Defined(vlf + lf + hf)
	}

	rec.BreathingRate = psd.PeakFrequency(cfg.BreathingLo, cfg.BreathingHi)
	return nil
}
// #endregion frequency-domain
