package replay

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/hrv-parity/internal/hrv"
	"github.com/danielpatrickdp/hrv-parity/internal/parity"
	"github.com/danielpatrickdp/hrv-parity/internal/store"
)

// #region export
// FromRun turns a stored run into a fixture whose expectations are the run's
// own statuses and verdict. The last records are kept when last > 0.
//
// Stored records are canonical, so both sides use canonical units. An errored
// record only stores its failure, so the side that succeeded is replayed as
// an all-undefined record; it judges to the same status.
func FromRun(run store.Run, acc parity.Acceptance, last int) *Fixture {
	results := run.Results
	if last > 0 && last < len(results) {
		results = results[len(results)-last:]
	}

	f := &Fixture{
		Description: fmt.Sprintf("exported from run %s (%s): %s vs %s", run.ID, run.Dataset, run.Reference, run.Candidate),
		Config: FixtureConfig{
			Tolerances: run.Tolerances,
			Acceptance: &acc,
		},
	}
	for _, r := range results {
		fr := FixtureRecord{ID: r.ID, Reference: r.Reference, Candidate: r.Candidate}
		switch r.Status {
		case parity.RecordSkipped:
			fr.ReferenceError, fr.CandidateError = r.ErrorKind, r.ErrorKind
		case parity.RecordErrored:
			empty := hrv.Record{}
			if strings.HasPrefix(r.Reason, "reference:") {
				fr.ReferenceError = r.ErrorKind
				fr.Candidate = &empty
			} else {
				fr.CandidateError = r.ErrorKind
				fr.Reference = &empty
			}
		}
		f.Records = append(f.Records, fr)
		f.ExpectedResults = append(f.ExpectedResults, FixtureExpectedResult{ID: r.ID, Status: r.Status})
	}
	if last <= 0 || last >= len(run.Results) {
		f.ExpectedVerdict = run.Verdict
	}
	return f
}
// #endregion export
