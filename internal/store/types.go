package store

import (
	"time"

	"github.com/danielpatrickdp/hrv-parity/internal/parity"
)

// #region run-info
// RunInfo is the header row of a stored validation run.
type RunInfo struct {
	ID         string
	BaselineID string // baseline run at the time this run was saved, if any
	Dataset    string
	Reference  string
	Candidate  string
	StartedAt  time.Time
	FinishedAt time.Time
	Records    int
	PassRate   float64
	Verdict    parity.Verdict
}
// #endregion run-info

// #region run
// Run is a stored validation run with every record and comparison.
type Run struct {
	RunInfo
	Tolerances parity.ToleranceSpec
	Summary    parity.Summary
	Results    []parity.RecordResult
}

// Report rebuilds the parity report the run was saved from.
func (r Run) Report() parity.Report {
	return parity.Report{
		Reference: r.Reference,
		Candidate: r.Candidate,
		StartedAt: r.StartedAt,
		Records:   r.Results,
		Summary:   r.Summary,
	}
}
// #endregion run
