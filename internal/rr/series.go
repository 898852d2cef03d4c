// Package rr turns beat positions into RR interval series and cleans them.
// Rejected intervals stay in the series with Valid=false so every stage can be
// traced back to the input.
package rr

import (
	"math"

	"github.com/danielpatrickdp/hrv-parity/internal/hrverr"
)

// #region series
// Series is an RR interval series. Onsets[i] is the time (ms from the start of
// the recording) of the beat that closes Intervals[i].
type Series struct {
	Intervals []float64 `json:"intervals"`
	Onsets    []float64 `json:"onsets"`
	Valid     []bool    `json:"valid"`
}

// FromBeats converts strictly increasing beat sample indices into intervals.
func FromBeats(beats []int, sampleRate float64) (Series, error) {
	if !(sampleRate > 0) || math.IsInf(sampleRate, 0) {
		return Series{}, hrverr.InvalidParameter("rr.FromBeats", "sample rate %v must be positive", sampleRate)
	}
	if len(beats) < 3 {
		return Series{}, hrverr.InsufficientData("rr.FromBeats", "%d beats give fewer than 2 intervals", len(beats))
	}
	n := len(beats) - 1
	s := Series{
		Intervals: make([]float64, n),
		Onsets:    make([]float64, n),
		Valid:     make([]bool, n),
	}
	for i := 0; i < n; i++ {
		if beats[i+1] <= beats[i] {
			return Series{}, hrverr.InvalidParameter("rr.FromBeats", "beats not strictly increasing at %d", i+1)
		}
		s.Intervals[i] = float64(beats[i+1]-beats[i]) / sampleRate * 1000
		s.Onsets[i] = float64(beats[i+1]) / sampleRate * 1000
		s.Valid[i] = true
	}
	return s, nil
}

// FromIntervals wraps a precomputed RR list (ms). Onsets are the running sum.
func FromIntervals(ms []float64) (Series, error) {
	if len(ms) < 2 {
		return Series{}, hrverr.InsufficientData("rr.FromIntervals", "%d intervals, need at least 2", len(ms))
	}
	s := Series{
		Intervals: make([]float64, len(ms)),
		Onsets:    make([]float64, len(ms)),
		Valid:     make([]bool, len(ms)),
	}
	var t float64
	for i, v := range ms {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return Series{}, hrverr.InvalidParameter("rr.FromIntervals", "interval %d (%v) must be a positive finite number", i, v)
		}
		t += v
		s.Intervals[i] = v
		s.Onsets[i] = t
		s.Valid[i] = true
	}
	return s, nil
}

// Len returns the number of intervals, valid or not.
func (s Series) Len() int { return len(s.Intervals) }

// ValidCount returns the number of intervals still marked valid.
func (s Series) ValidCount() int {
	n := 0
	for _, v := range s.Valid {
		if v {
			n++
		}
	}
	return n
}

// ValidIntervals returns the valid intervals in order.
func (s Series) ValidIntervals() []float64 {
	out := make([]float64, 0, len(s.Intervals))
	for i, v := range s.Intervals {
		if s.Valid[i] {
			out = append(out, v)
		}
	}
	return out
}

// ValidOnsets returns the onsets of valid intervals in order.
func (s Series) ValidOnsets() []float64 {
	out := make([]float64, 0, len(s.Onsets))
	for i, v := range s.Onsets {
		if s.Valid[i] {
			out = append(out, v)
		}
	}
	return out
}

// SuccessiveDiffs returns RR[i+1]-RR[i] for every pair of adjacent intervals
// that are both valid. Pairs straddling a rejected interval are skipped.
func (s Series) SuccessiveDiffs() []float64 {
	var out []float64
	for i := 0; i+1 < len(s.Intervals); i++ {
		if s.Valid[i] && s.Valid[i+1] {
			out = append(out, s.Intervals[i+1]-s.Intervals[i])
		}
	}
	return out
}

// Clone returns a deep copy.
func (s Series) Clone() Series {
	return Series{
		Intervals: append([]float64(nil), s.Intervals...),
		Onsets:    append([]float64(nil), s.Onsets...),
		Valid:     append([]bool(nil), s.Valid...),
	}
}
// #endregion series
