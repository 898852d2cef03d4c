package rr

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/danielpatrickdp/hrv-parity/internal/hrverr"
)

// #region clean-config
// OutlierMethod selects the optional outlier rejection stage.
type OutlierMethod string

const (
	OutlierNone     OutlierMethod = ""
	OutlierQuotient OutlierMethod = "quotient-filter"
	OutlierIQR      OutlierMethod = "iqr"
	OutlierZScore   OutlierMethod = "z-score"
)

// ParseOutlierMethod maps a CLI/config name onto an OutlierMethod.
func ParseOutlierMethod(name string) (OutlierMethod, error) {
	switch OutlierMethod(name) {
	case OutlierNone, OutlierQuotient, OutlierIQR, OutlierZScore:
		return OutlierMethod(name), nil
	case "none":
		return OutlierNone, nil
	}
	return OutlierNone, hrverr.InvalidParameter("rr.ParseOutlierMethod", "unknown outlier method %q", name)
}

// UnmarshalJSON accepts the names ParseOutlierMethod does, "none" included.
func (m *OutlierMethod) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("parse outlier method: %w", err)
	}
	parsed, err := ParseOutlierMethod(name)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// CleanConfig holds the cleaning thresholds.
type CleanConfig struct {
	MinMs float64 `json:"min_ms"` // range filter lower bound
	MaxMs float64 `json:"max_ms"` // range filter upper bound

	Outlier      OutlierMethod `json:"outlier"`
	QuotientLow  float64       `json:"quotient_low"` // neighbour ratio bounds for the quotient filter
	QuotientHigh float64       `json:"quotient_high"`
	IQRFactor    float64       `json:"iqr_factor"`
	ZThreshold   float64       `json:"z_threshold"`

	SegmentReject bool    `json:"segment_reject"`
	SegmentSec    float64 `json:"segment_sec"`     // fixed segment duration
	SegMaxRejects int     `json:"seg_max_rejects"` // a segment with more rejects than this is invalidated

	MinValid int `json:"min_valid"` // valid intervals required after cleaning
}

// DefaultCleanConfig returns the range filter only, with outlier and segment
// rejection disabled.
func DefaultCleanConfig() CleanConfig {
	return CleanConfig{
		MinMs:         300,
		MaxMs:         2000,
		Outlier:       OutlierNone,
		QuotientLow:   0.8,
		QuotientHigh:  1.2,
		IQRFactor:     1.5,
		ZThreshold:    3,
		SegmentReject: false,
		SegmentSec:    10,
		SegMaxRejects: 3,
		MinValid:      5,
	}
}

// Validate checks that bounds are ordered and positive.
func (c CleanConfig) Validate() error {
	if !(c.MinMs >= 0 && c.MinMs < c.MaxMs) {
		return hrverr.InvalidParameter("rr.CleanConfig", "range [%g, %g] ms is empty", c.MinMs, c.MaxMs)
	}
	if _, err := ParseOutlierMethod(string(c.Outlier)); err != nil {
		return err
	}
	if c.Outlier == OutlierQuotient && !(c.QuotientLow > 0 && c.QuotientLow < c.QuotientHigh) {
		return hrverr.InvalidParameter("rr.CleanConfig", "quotient bounds [%g, %g] invalid", c.QuotientLow, c.QuotientHigh)
	}
	if c.SegmentReject && !(c.SegmentSec > 0) {
		return hrverr.InvalidParameter("rr.CleanConfig", "segment duration %g s must be positive", c.SegmentSec)
	}
	if c.MinValid < 2 {
		return hrverr.InvalidParameter("rr.CleanConfig", "min valid %d must be >= 2", c.MinValid)
	}
	return nil
}
// #endregion clean-config

// #region clean-result
// StageReport records how many items one cleaning stage removed.
type StageReport struct {
	Stage   string `json:"stage"`
	Removed int    `json:"removed"`
}

// Segment describes one fixed-duration segment of the series.
type Segment struct {
	Index       int     `json:"index"`
	StartMs     float64 `json:"start_ms"`
	EndMs       float64 `json:"end_ms"`
	Intervals   int     `json:"intervals"`
	Rejects     int     `json:"rejects"`
	Invalidated bool    `json:"invalidated"`
}

// Quality summarises rejection over the whole series.
type Quality struct {
	TotalIntervals    int     `json:"total_intervals"`
	RejectedIntervals int     `json:"rejected_intervals"`
	RejectionRate     float64 `json:"rejection_rate"`
	RejectedIndices   []int   `json:"rejected_indices,omitempty"`
}

// Cleaned is the output of Clean.
type Cleaned struct {
	Series   Series        `json:"series"`
	Stages   []StageReport `json:"stages"`
	Segments []Segment     `json:"segments,omitempty"`
	Quality  Quality       `json:"quality"`
}
// #endregion clean-result

// #region clean
// Clean applies the range filter, the configured outlier rejection and the
// optional segment rejection to a copy of s. It fails with InsufficientData
// when fewer than MinValid intervals survive.
func Clean(s Series, config CleanConfig) (Cleaned, error) {
	if err := config.Validate(); err != nil {
		return Cleaned{}, err
	}
	out := s.Clone()
	var stages []StageReport

	// 1. Range filter.
	stages = append(stages, StageReport{Stage: "range", Removed: rangeFilter(out, config.MinMs, config.MaxMs)})

	// 2. Outlier rejection.
	switch config.Outlier {
	case OutlierQuotient:
		stages = append(stages, StageReport{Stage: string(OutlierQuotient), Removed: quotientFilter(out, config.QuotientLow, config.QuotientHigh)})
	case OutlierIQR:
		stages = append(stages, StageReport{Stage: string(OutlierIQR), Removed: iqrFilter(out, config.IQRFactor)})
	case OutlierZScore:
		stages = append(stages, StageReport{Stage: string(OutlierZScore), Removed: zScoreFilter(out, config.ZThreshold)})
	}

	// 3. Segment rejection.
	var segments []Segment
	if config.SegmentReject {
		segments = segmentise(s, out, config.SegmentSec)
		removedSegs := 0
		for i := range segments {
			if segments[i].Rejects > config.SegMaxRejects {
				segments[i].Invalidated = true
				removedSegs++
				invalidateSegment(out, segments[i])
			}
		}
		stages = append(stages, StageReport{Stage: "segment", Removed: removedSegs})
	}

	result := Cleaned{
		Series:   out,
		Stages:   stages,
		Segments: segments,
		Quality:  quality(out),
	}
	if valid := out.ValidCount(); valid < config.MinValid {
		return result, hrverr.InsufficientData("rr.Clean", "%d valid intervals after cleaning, need %d", valid, config.MinValid)
	}
	return result, nil
}

func rangeFilter(s Series, lo, hi float64) int {
	removed := 0
	for i, v := range s.Intervals {
		if s.Valid[i] && (v < lo || v > hi) {
			s.Valid[i] = false
			removed++
		}
	}
	return removed
}

// quotientFilter rejects an interval whose ratio to the last accepted
// interval falls outside [lo, hi]. The first valid interval is checked
// against the next valid one instead.
func quotientFilter(s Series, lo, hi float64) int {
	idx := validIndices(s)
	if len(idx) < 2 {
		return 0
	}
	removed := 0
	if q := s.Intervals[idx[0]] / s.Intervals[idx[1]]; q < lo || q > hi {
		s.Valid[idx[0]] = false
		removed++
	}
	ref := -1
	if s.Valid[idx[0]] {
		ref = idx[0]
	}
	for _, i := range idx[1:] {
		if ref < 0 {
			ref = i
			continue
		}
		if q := s.Intervals[i] / s.Intervals[ref]; q < lo || q > hi {
			s.Valid[i] = false
			removed++
			continue
		}
		ref = i
	}
	return removed
}

func iqrFilter(s Series, factor float64) int {
	vals := s.ValidIntervals()
	if len(vals) < 4 {
		return 0
	}
	sort.Float64s(vals)
	q1 := percentile(vals, 25)
	q3 := percentile(vals, 75)
	iqr := q3 - q1
	lo, hi := q1-factor*iqr, q3+factor*iqr
	removed := 0
	for i, v := range s.Intervals {
		if s.Valid[i] && (v < lo || v > hi) {
			s.Valid[i] = false
			removed++
		}
	}
	return removed
}

func zScoreFilter(s Series, threshold float64) int {
	vals := s.ValidIntervals()
	if len(vals) < 2 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / float64(len(vals))
	var ss float64
	for _, v := range vals {
		ss += (v - mean) * (v - mean)
	}
	sd := math.Sqrt(ss / float64(len(vals)))
	if sd == 0 {
		return 0
	}
	removed := 0
	for i, v := range s.Intervals {
		if s.Valid[i] && math.Abs(v-mean)/sd > threshold {
			s.Valid[i] = false
			removed++
		}
	}
	return removed
}

// segmentise buckets intervals by onset into fixed-duration segments and
// counts how many were rejected by the earlier stages.
func segmentise(orig, cleaned Series, segmentSec float64) []Segment {
	width := segmentSec * 1000
	var segments []Segment
	for i, onset := range orig.Onsets {
		k := int(onset / width)
		for len(segments) <= k {
			j := len(segments)
			segments = append(segments, Segment{Index: j, StartMs: float64(j) * width, EndMs: float64(j+1) * width})
		}
		segments[k].Intervals++
		if orig.Valid[i] && !cleaned.Valid[i] {
			segments[k].Rejects++
		}
	}
	return segments
}

func invalidateSegment(s Series, seg Segment) {
	for i, onset := range s.Onsets {
		if onset >= seg.StartMs && onset < seg.EndMs {
			s.Valid[i] = false
		}
	}
}

func quality(s Series) Quality {
	q := Quality{TotalIntervals: s.Len()}
	for i, v := range s.Valid {
		if !v {
			q.RejectedIntervals++
			q.RejectedIndices = append(q.RejectedIndices, i)
		}
	}
	if q.TotalIntervals > 0 {
		q.RejectionRate = float64(q.RejectedIntervals) / float64(q.TotalIntervals)
	}
	return q
}
// #endregion clean

// #region helpers
func validIndices(s Series) []int {
	var out []int
	for i, v := range s.Valid {
		if v {
			out = append(out, i)
		}
	}
	return out
}

// percentile linearly interpolates the p-th percentile of sorted values.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// String renders a stage report for log lines.
func (r StageReport) String() string {
	return fmt.Sprintf("%s:-%d", r.Stage, r.Removed)
}
// #endregion helpers
