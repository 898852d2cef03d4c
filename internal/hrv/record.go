// Package hrv computes heart rate variability metrics from a cleaned RR series.
//
// Every metric is carried as a Value that is either a finite number or
// Undefined. Undefined encodes as JSON null; NaN and Inf never leave this
// package.
package hrv

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// #region value
// Value is a metric that may be Undefined.
type Value struct {
	v  float64
	ok bool
}

// Defined wraps v. Non-finite input yields Undefined.
func Defined(v float64) Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Value{}
	}
	return Value{v: v, ok: true}
}

// Undefined returns the missing value.
func Undefined() Value { return Value{} }

// IsDefined reports whether the value holds a number.
func (v Value) IsDefined() bool { return v.ok }

// Float returns the number and whether it is defined.
func (v Value) Float() (float64, bool) { return v.v, v.ok }

// Or returns the number, or fallback when undefined.
func (v Value) Or(fallback float64) float64 {
	if !v.ok {
		return fallback
	}
	return v.v
}

// Map applies f to a defined value.
func (v Value) Map(f func(float64) float64) Value {
	if !v.ok {
		return v
	}
	return Defined(f(v.v))
}

func (v Value) String() string {
	if !v.ok {
		return "undefined"
	}
	return strconv.FormatFloat(v.v, 'g', 6, 64)
}

// MarshalJSON encodes Undefined as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.ok {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(v.v, 'g', -1, 64)), nil
}

// UnmarshalJSON accepts a number or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = Value{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode metric value: %w", err)
	}
	*v = Defined(f)
	return nil
}
// #endregion value

// #region metric
// Metric names a field of Record by its wire key.
type Metric string

const (
	BPM           Metric = "bpm"
	SDNN          Metric = "sdnn"
	RMSSD         Metric = "rmssd"
	SDSD          Metric = "sdsd"
	PNN20         Metric = "pnn20"
	PNN50         Metric = "pnn50"
	SD1           Metric = "sd1"
	SD2           Metric = "sd2"
	SD1SD2Ratio   Metric = "sd1sd2Ratio"
	VLF           Metric = "vlf"
	LF            Metric = "lf"
	HF            Metric = "hf"
	LFHF          Metric = "lf_hf"
	BreathingRate Metric = "breathingrate"
	HRMAD         Metric = "hr_mad"
	NPeaks        Metric = "n_peaks"

	NN20        Metric = "nn20"
	NN50        Metric = "nn50"
	EllipseArea Metric = "ellipse_area"
	TotalPower  Metric = "total_power"
	LFNorm      Metric = "lf_norm"
	HFNorm      Metric = "hf_norm"
)

// CoreMetrics lists the compared metrics in report order.
var CoreMetrics = []Metric{
	BPM, SDNN, RMSSD, SDSD, PNN20, PNN50, SD1, SD2, SD1SD2Ratio,
	VLF, LF, HF, LFHF, BreathingRate, HRMAD, NPeaks,
}

// ExtraMetrics lists the additional metrics carried in every record.
var ExtraMetrics = []Metric{NN20, NN50, EllipseArea, TotalPower, LFNorm, HFNorm}
// #endregion metric

// #region record
// Record is the fixed set of metrics produced for one recording.
type Record struct {
	BPM           Value `json:"bpm"`
	SDNN          Value `json:"sdnn"`
	RMSSD         Value `json:"rmssd"`
	SDSD          Value `json:"sdsd"`
	PNN20         Value `json:"pnn20"`
	PNN50         Value `json:"pnn50"`
	SD1           Value `json:"sd1"`
	SD2           Value `json:"sd2"`
	SD1SD2Ratio   Value `json:"sd1sd2Ratio"`
	VLF           Value `json:"vlf"`
	LF            Value `json:"lf"`
	HF            Value `json:"hf"`
	LFHF          Value `json:"lf_hf"`
	BreathingRate Value `json:"breathingrate"`
	HRMAD         Value `json:"hr_mad"`
	NPeaks        Value `json:"n_peaks"`

	NN20        Value `json:"nn20"`
	NN50        Value `json:"nn50"`
	EllipseArea Value `json:"ellipse_area"`
	TotalPower  Value `json:"total_power"`
	LFNorm      Value `json:"lf_norm"`
	HFNorm      Value `json:"hf_norm"`

	// Flags lists degenerate computations, e.g. "numeric_degenerate:sd2".
	Flags []string `json:"flags,omitempty"`
}

// field returns a pointer to the Value for m, or nil for an unknown metric.
func (r *Record) field(m Metric) *Value {
	switch m {
	case BPM:
		return &r.BPM
	case SDNN:
		return &r.SDNN
	case RMSSD:
		return &r.RMSSD
	case SDSD:
		return &r.SDSD
	case PNN20:
		return &r.PNN20
	case PNN50:
		return &r.PNN50
	case SD1:
		return &r.SD1
	case SD2:
		return &r.SD2
	case SD1SD2Ratio:
		return &r.SD1SD2Ratio
	case VLF:
		return &r.VLF
	case LF:
		return &r.LF
	case HF:
		return &r.HF
	case LFHF:
		return &r.LFHF
	case BreathingRate:
		return &r.BreathingRate
	case HRMAD:
		return &r.HRMAD
	case NPeaks:
		return &r.NPeaks
	case NN20:
		return &r.NN20
	case NN50:
		return &r.NN50
	case EllipseArea:
		return &r.EllipseArea
	case TotalPower:
		return &r.TotalPower
	case LFNorm:
		return &r.LFNorm
	case HFNorm:
		return &r.HFNorm
	}
	return nil
}

// Get returns the value of m; unknown metrics are Undefined.
func (r Record) Get(m Metric) Value {
	if p := r.field(m); p != nil {
		return *p
	}
	return Undefined()
}

// Set assigns the value of m and reports whether m is known.
func (r *Record) Set(m Metric, v Value) bool {
	p := r.field(m)
	if p == nil {
		return false
	}
	*p = v
	return true
}

// Flag appends a flag once.
func (r *Record) Flag(flag string) {
	for _, f := range r.Flags {
		if f == flag {
			return
		}
	}
	r.Flags = append(r.Flags, flag)
}

// KnownMetric reports whether m names a Record field.
func KnownMetric(m Metric) bool {
	var r Record
	return r.field(m) != nil
}
// #endregion record

// #region units
// HzToBreathsPerMinute converts a breathing frequency for reporting.
func HzToBreathsPerMinute(hz float64) float64 { return hz * 60 }

// BreathsPerMinuteToHz is the inverse of HzToBreathsPerMinute.
func BreathsPerMinuteToHz(bpm float64) float64 { return bpm / 60 }

// RatioToPercent converts a pNN ratio in [0,1] to percent.
func RatioToPercent(r float64) float64 { return r * 100 }

// PercentToRatio is the inverse of RatioToPercent.
func PercentToRatio(p float64) float64 { return p / 100 }

// Units describes how a record expresses pNN and breathing rate. The zero
// value is canonical: ratios and Hz.
type Units struct {
	PNNAsPercent   bool `json:"pnn_as_percent"`
	BreathingAsBPM bool `json:"breathing_as_bpm"`
}

// ToCanonical converts a record reported in u back to ratios and Hz.
func (u Units) ToCanonical(r Record) Record {
	if u.PNNAsPercent {
		r.PNN20 = r.PNN20.Map(PercentToRatio)
		r.PNN50 = r.PNN50.Map(PercentToRatio)
	}
	if u.BreathingAsBPM {
		r.BreathingRate = r.BreathingRate.Map(BreathsPerMinuteToHz)
	}
	return r
}

// FromCanonical converts a canonical record into u for reporting.
func (u Units) FromCanonical(r Record) Record {
	if u.PNNAsPercent {
		r.PNN20 = r.PNN20.Map(RatioToPercent)
		r.PNN50 = r.PNN50.Map(RatioToPercent)
	}
	if u.BreathingAsBPM {
		r.BreathingRate = r.BreathingRate.Map(HzToBreathsPerMinute)
	}
	return r
}
// #endregion units
