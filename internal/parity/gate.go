package parity

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/hrv-parity/internal/hrv"
)

// #region align
// Align converts both records to canonical units (pNN ratio, breathing Hz).
func Align(ref, cand hrv.Record, refUnits, candUnits Units) (hrv.Record, hrv.Record) {
	return refUnits.ToCanonical(ref), candUnits.ToCanonical(cand)
}
// #endregion align

// #region compare
// Compare computes the delta between two values of metric m and gates it
// against tol.
func Compare(m hrv.Metric, ref, cand hrv.Value, tol Tolerance) Comparison {
	c := Comparison{
		Metric:    m,
		Reference: ref,
		Candidate: cand,
		Tolerance: tol,
	}
	r, rok := ref.Float()
	x, cok := cand.Float()

	// 1. Definedness.
	switch {
	case !rok && !cok:
		c.Outcome = Skip
		c.Reason = "undefined in both"
		return c
	case !rok:
		c.Outcome = Fail
		c.Reason = "undefined in reference only"
		return c
	case !cok:
		c.Outcome = Fail
		c.Reason = "undefined in candidate only"
		return c
	}

	// 2. Deltas.
	delta := x - r
	c.Delta = hrv.Defined(delta)
	if r != 0 {
		c.RelDeltaPct = hrv.Defined(100 * delta / r)
	}

	// 3. Gate.
	c.Outcome, c.Reason = Gate(r, x, tol)
	return c
}

// Gate applies a tolerance to a pair of finite values.
func Gate(ref, cand float64, tol Tolerance) (Outcome, string) {
	delta := cand - ref
	switch tol.Kind {
	case Absolute:
		if math.Abs(delta) <= tol.Threshold {
			return Pass, ""
		}
		return Fail, fmt.Sprintf("|delta| %.6g exceeds %.6g", math.Abs(delta), tol.Threshold)
	case Percent:
		if ref == 0 {
			if cand == 0 {
				return Pass, ""
			}
			return Fail, "reference is 0, relative delta undefined"
		}
		rel := math.Abs(100 * delta / ref)
		if rel <= tol.Threshold {
			return Pass, ""
		}
		return Fail, fmt.Sprintf("|rel delta| %.4g%% exceeds %.4g%%", rel, tol.Threshold)
	}
	return Fail, fmt.Sprintf("unknown tolerance kind %q", tol.Kind)
}
// #endregion compare

// #region evaluate
// EvaluateRecord aligns two records and compares every metric of spec.
// It returns the comparisons, whether all non-skipped metrics passed, and a
// short reason.
func EvaluateRecord(ref, cand hrv.Record, spec ToleranceSpec, refUnits, candUnits Units) ([]Comparison, bool, string) {
	ref, cand = Align(ref, cand, refUnits, candUnits)

	var comparisons []Comparison
	var failed []hrv.Metric
	for _, m := range spec.Metrics() {
		c := Compare(m, ref.Get(m), cand.Get(m), spec[m])
		comparisons = append(comparisons, c)
		if c.Outcome == Fail {
			failed = append(failed, m)
		}
	}

	switch len(failed) {
	case 0:
		return comparisons, true, "all metrics within tolerance"
	case 1:
		return comparisons, false, fmt.Sprintf("%s out of tolerance", failed[0])
	}
	return comparisons, false, fmt.Sprintf("%d metrics out of tolerance: %s, ...", len(failed), failed[0])
}

// Regate re-evaluates stored results under spec. The stored records must be
// in canonical units. Results without both records (errored or skipped) are
// carried over unchanged.
func Regate(results []RecordResult, spec ToleranceSpec) []RecordResult {
	out := make([]RecordResult, len(results))
	for i, r := range results {
		out[i] = r
		if r.Reference == nil || r.Candidate == nil {
			continue
		}
		comparisons, ok, reason := EvaluateRecord(*r.Reference, *r.Candidate, spec, Units{}, Units{})
		out[i].Comparisons = comparisons
		out[i].Reason = reason
		out[i].Status = RecordPassed
		if !ok {
			out[i].Status = RecordFailed
		}
	}
	return out
}
// #endregion evaluate

// #region aggregate
// Summarize aggregates record results into dataset statistics and a verdict.
func Summarize(results []RecordResult, metricsPerRecord int, acc Acceptance) Summary {
	s := Summary{
		Records:   len(results),
		PerMetric: make(map[hrv.Metric]*MetricStats),
	}
	for _, r := range results {
		switch r.Status {
		case RecordPassed:
			s.Passed++
		case RecordFailed:
			s.Failed++
		case RecordErrored:
			s.Errored++
		case RecordSkipped:
			s.Skipped++
		}
		for _, c := range r.Comparisons {
			st := s.PerMetric[c.Metric]
			if st == nil {
				st = &MetricStats{}
				s.PerMetric[c.Metric] = st
			}
			switch c.Outcome {
			case Pass:
				s.ComparePassed++
				st.Pass++
			case Fail:
				s.CompareFailed++
				st.Fail++
			case Skip:
				s.CompareSkip++
				st.Skip++
			}
			if d, ok := c.Delta.Float(); ok && math.Abs(d) > st.MaxAbsDelta {
				st.MaxAbsDelta = math.Abs(d)
			}
			if d, ok := c.RelDeltaPct.Float(); ok && math.Abs(d) > st.MaxRelDelta {
				st.MaxRelDelta = math.Abs(d)
			}
		}
	}

	passed := s.ComparePassed
	total := s.ComparePassed + s.CompareFailed + s.Errored*metricsPerRecord
	if total > 0 {
		s.PassRate = 100 * float64(passed) / float64(total)
	}
	s.Verdict = Grade(s.PassRate, total, acc)
	return s
}

// Grade maps a pass rate (percent) to a verdict. A run with nothing compared
// is rejected.
func Grade(passRate float64, compared int, acc Acceptance) Verdict {
	switch {
	case compared == 0:
		return Rejected
	case passRate >= acc.AcceptedPct:
		return Accepted
	case passRate >= acc.PartialPct:
		return Partial
	}
	return Rejected
}
// #endregion aggregate
