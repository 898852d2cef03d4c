package parity

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/danielpatrickdp/hrv-parity/internal/hrv"
	"github.com/danielpatrickdp/hrv-parity/internal/hrverr"
)

// #region defaults
// DefaultTolerances returns the standard per-metric tolerances.
func DefaultTolerances() ToleranceSpec {
	pct := func(t float64) Tolerance { return Tolerance{Kind: Percent, Threshold: t} }
	abs := func(t float64) Tolerance { return Tolerance{Kind: Absolute, Threshold: t} }
	return ToleranceSpec{
		hrv.BPM:           abs(5),
		hrv.SDNN:          pct(2),
		hrv.RMSSD:         pct(2),
		hrv.SDSD:          pct(2),
		hrv.PNN20:         pct(2),
		hrv.PNN50:         pct(2),
		hrv.SD1:           pct(2),
		hrv.SD2:           pct(2),
		hrv.HRMAD:         pct(3),
		hrv.VLF:           pct(10),
		hrv.LF:            pct(10),
		hrv.HF:            pct(10),
		hrv.LFHF:          pct(15),
		hrv.BreathingRate: abs(0.02),
		hrv.NPeaks:        abs(2),
	}
}
// #endregion defaults

// #region spec
// Metrics returns the spec's metrics in report order: core metrics first,
// then extras, then anything else alphabetically.
func (s ToleranceSpec) Metrics() []hrv.Metric {
	seen := make(map[hrv.Metric]bool, len(s))
	var out []hrv.Metric
	for _, group := range [][]hrv.Metric{hrv.CoreMetrics, hrv.ExtraMetrics} {
		for _, m := range group {
			if _, ok := s[m]; ok && !seen[m] {
				out = append(out, m)
				seen[m] = true
			}
		}
	}
	var rest []hrv.Metric
	for m := range s {
		if !seen[m] {
			rest = append(rest, m)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(out, rest...)
}

// Validate rejects unknown metrics, unknown kinds and negative thresholds.
func (s ToleranceSpec) Validate() error {
	if len(s) == 0 {
		return hrverr.InvalidParameter("parity.ToleranceSpec", "no metrics")
	}
	for m, t := range s {
		if !hrv.KnownMetric(m) {
			return hrverr.InvalidParameter("parity.ToleranceSpec", "unknown metric %q", m)
		}
		if t.Kind != Absolute && t.Kind != Percent {
			return hrverr.InvalidParameter("parity.ToleranceSpec", "metric %s: unknown tolerance kind %q", m, t.Kind)
		}
		if t.Threshold < 0 || math.IsNaN(t.Threshold) || math.IsInf(t.Threshold, 0) {
			return hrverr.InvalidParameter("parity.ToleranceSpec", "metric %s: threshold %v must be finite and >= 0", m, t.Threshold)
		}
	}
	return nil
}

// Merge returns a copy of s with every entry of over applied on top.
func (s ToleranceSpec) Merge(over ToleranceSpec) ToleranceSpec {
	out := make(ToleranceSpec, len(s)+len(over))
	for m, t := range s {
		out[m] = t
	}
	for m, t := range over {
		out[m] = t
	}
	return out
}

// toleranceFile is the on-disk form of a ToleranceSpec.
type toleranceFile struct {
	// ExtendDefaults layers Metrics over DefaultTolerances instead of
	// replacing them.
	ExtendDefaults bool          `json:"extend_defaults"`
	Metrics        ToleranceSpec `json:"metrics"`
}

// LoadToleranceSpec reads a JSON tolerance file.
func LoadToleranceSpec(path string) (ToleranceSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tolerance spec %s: %w", path, err)
	}
	var f toleranceFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse tolerance spec %s: %w", path, err)
	}
	spec := f.Metrics
	if f.ExtendDefaults {
		spec = DefaultTolerances().Merge(f.Metrics)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("validate tolerance spec %s: %w", path, err)
	}
	return spec, nil
}
// #endregion spec
