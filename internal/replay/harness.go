// Package replay re-judges recorded pipeline outputs without recomputing
// them: JSON fixtures checked against expected statuses, and stored runs
// re-gated under new tolerances.
package replay

import (
	"fmt"

	"github.com/danielpatrickdp/hrv-parity/internal/parity"
	"github.com/danielpatrickdp/hrv-parity/internal/store"
)

// #region types
// Mismatch is one difference between a replay and its expectations.
type Mismatch struct {
	ID       string // record ID, or "" for the verdict
	Expected string
	Actual   string
	Reason   string
}

func (m Mismatch) String() string {
	if m.ID == "" {
		return fmt.Sprintf("verdict: expected %s, got %s", m.Expected, m.Actual)
	}
	return fmt.Sprintf("%s: expected %s, got %s (%s)", m.ID, m.Expected, m.Actual, m.Reason)
}
// #endregion types

// #region replay
// Replay judges every fixture record in order and summarizes the run.
func Replay(f *Fixture) (parity.Report, error) {
	cfg, err := f.Config.ToParityConfig()
	if err != nil {
		return parity.Report{}, err
	}

	rep := parity.Report{Reference: "replay:reference", Candidate: "replay:candidate"}
	for _, fr := range f.Records {
		// 1. Rebuild outcomes
		ref, refErr := outcome(fr.Reference, fr.ReferenceError, "reference")
		cand, candErr := outcome(fr.Candidate, fr.CandidateError, "candidate")

		// 2. Judge
		rep.Records = append(rep.Records, cfg.Judge(fr.ID, ref, refErr, cand, candErr))
	}

	// 3. Summarize
	rep.Summary = parity.Summarize(rep.Records, len(cfg.Tolerances), cfg.Acceptance)
	return rep, nil
}

// Check compares a replayed report with the fixture's expectations.
func Check(f *Fixture, rep parity.Report) []Mismatch {
	var out []Mismatch
	byID := make(map[string]parity.RecordResult, len(rep.Records))
	for _, r := range rep.Records {
		byID[r.ID] = r
	}
	for _, exp := range f.ExpectedResults {
		r, ok := byID[exp.ID]
		if !ok {
			out = append(out, Mismatch{ID: exp.ID, Expected: string(exp.Status), Actual: "missing"})
			continue
		}
		if r.Status != exp.Status {
			out = append(out, Mismatch{ID: exp.ID, Expected: string(exp.Status), Actual: string(r.Status), Reason: r.Reason})
		}
	}
	if f.ExpectedVerdict != "" && rep.Summary.Verdict != f.ExpectedVerdict {
		out = append(out, Mismatch{Expected: string(f.ExpectedVerdict), Actual: string(rep.Summary.Verdict)})
	}
	return out
}
// #endregion replay

// #region regate
// Change is a record whose status differs after re-gating.
type Change struct {
	ID     string
	Before parity.RecordStatus
	After  parity.RecordStatus
	Reason string
}

// Regate re-judges a stored run under spec and acceptance and lists the
// records whose status changed.
func Regate(run store.Run, spec parity.ToleranceSpec, acc parity.Acceptance) (parity.Report, []Change, error) {
	if err := spec.Validate(); err != nil {
		return parity.Report{}, nil, fmt.Errorf("regate run %s: %w", run.ID, err)
	}
	rep := run.Report()
	rep.Records = parity.Regate(run.Results, spec)
	rep.Summary = parity.Summarize(rep.Records, len(spec), acc)

	var changes []Change
	for i, r := range rep.Records {
		if before := run.Results[i].Status; before != r.Status {
			changes = append(changes, Change{ID: r.ID, Before: before, After: r.Status, Reason: r.Reason})
		}
	}
	return rep, changes, nil
}
// #endregion regate
