package parity

import (
	"time"

	"github.com/danielpatrickdp/hrv-parity/internal/hrv"
)

// #region outcome
// Outcome is the gate result for one metric.
type Outcome string

const (
	Pass Outcome = "PASS"
	Fail Outcome = "FAIL"
	Skip Outcome = "SKIP"
)
// #endregion outcome

// #region tolerance
// ToleranceKind selects how a delta is compared to its threshold.
type ToleranceKind string

const (
	Absolute ToleranceKind = "absolute"
	Percent  ToleranceKind = "percent"
)

// Tolerance bounds |cand - ref| (absolute) or |cand - ref| / |ref| * 100 (percent).
type Tolerance struct {
	Kind      ToleranceKind `json:"kind"`
	Threshold float64       `json:"threshold"`
}

// ToleranceSpec maps each compared metric to its tolerance.
type ToleranceSpec map[hrv.Metric]Tolerance

// Units describes how one side reports pNN and breathing rate.
type Units = hrv.Units
// #endregion tolerance

// #region comparison
// Comparison is the gated difference for one metric of one record.
type Comparison struct {
	Metric      hrv.Metric `json:"metric"`
	Reference   hrv.Value  `json:"reference"`
	Candidate   hrv.Value  `json:"candidate"`
	Delta       hrv.Value  `json:"delta"`
	RelDeltaPct hrv.Value  `json:"rel_delta_pct"`
	Tolerance   Tolerance  `json:"tolerance"`
	Outcome     Outcome    `json:"outcome"`
	Reason      string     `json:"reason,omitempty"`
}
// #endregion comparison

// #region record-result
// RecordStatus is the aggregate outcome of one record.
type RecordStatus string

const (
	RecordPassed  RecordStatus = "passed"
	RecordFailed  RecordStatus = "failed"  // at least one metric out of tolerance
	RecordErrored RecordStatus = "errored" // a pipeline returned an error
	RecordSkipped RecordStatus = "skipped" // both pipelines lacked data
)

// RecordResult is the outcome of validating one record.
type RecordResult struct {
	ID          string        `json:"id"`
	Status      RecordStatus  `json:"status"`
	Reason      string        `json:"reason"`
	ErrorKind   string        `json:"error_kind,omitempty"`
	Comparisons []Comparison  `json:"comparisons,omitempty"`
	Reference   *hrv.Record   `json:"reference,omitempty"`
	Candidate   *hrv.Record   `json:"candidate,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
}
// #endregion record-result

// #region summary
// Verdict grades a whole dataset.
type Verdict string

const (
	Accepted Verdict = "accepted"
	Partial  Verdict = "partial"
	Rejected Verdict = "rejected"
)

// MetricStats aggregates one metric across records.
type MetricStats struct {
	Pass        int     `json:"pass"`
	Fail        int     `json:"fail"`
	Skip        int     `json:"skip"`
	MaxAbsDelta float64 `json:"max_abs_delta"`
	MaxRelDelta float64 `json:"max_rel_delta_pct"`
}

// Summary aggregates a validation run. Skipped records and SKIP comparisons
// are excluded from PassRate; every metric of an errored record counts as a
// failure.
type Summary struct {
	Records       int                         `json:"records"`
	Passed        int                         `json:"passed"`
	Failed        int                         `json:"failed"`
	Errored       int                         `json:"errored"`
	Skipped       int                         `json:"skipped"`
	ComparePassed int                         `json:"compare_passed"`
	CompareFailed int                         `json:"compare_failed"`
	CompareSkip   int                         `json:"compare_skipped"`
	PassRate      float64                     `json:"pass_rate"`
	Verdict       Verdict                     `json:"verdict"`
	PerMetric     map[hrv.Metric]*MetricStats `json:"per_metric"`
}
// #endregion summary

// #region config
// Acceptance holds the pass-rate thresholds (percent) for each verdict.
type Acceptance struct {
	AcceptedPct float64 `json:"accepted_pct"`
	PartialPct  float64 `json:"partial_pct"`
}

// DefaultAcceptance returns 95 % accepted, 85 % partial.
func DefaultAcceptance() Acceptance {
	return Acceptance{AcceptedPct: 95, PartialPct: 85}
}

// Config holds everything a validation run needs.
type Config struct {
	Tolerances     ToleranceSpec
	ReferenceUnits Units
	CandidateUnits Units
	Acceptance     Acceptance
	Workers        int
	RecordTimeout  time.Duration
}

// DefaultConfig returns the default tolerances, canonical units on both
// sides, 4 workers and a 20 s per-record timeout.
func DefaultConfig() Config {
	return Config{
		Tolerances:    DefaultTolerances(),
		Acceptance:    DefaultAcceptance(),
		Workers:       4,
		RecordTimeout: 20 * time.Second,
	}
}
// #endregion config
