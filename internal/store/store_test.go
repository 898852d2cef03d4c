package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/hrv-parity/internal/hrv"
	"github.com/danielpatrickdp/hrv-parity/internal/parity"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleReport() parity.Report {
	ref := hrv.Record{BPM: hrv.Defined(70), LF: hrv.Undefined()}
	cand := hrv.Record{BPM: hrv.Defined(80), LF: hrv.Undefined()}
	spec := parity.ToleranceSpec{
		hrv.BPM: {Kind: parity.Absolute, Threshold: 5},
		hrv.LF:  {Kind: parity.Percent, Threshold: 10},
	}
	comps, _, reason := parity.EvaluateRecord(ref, cand, spec, parity.Units{}, parity.Units{})
	records := []parity.RecordResult{
		{ID: "r1", Status: parity.RecordFailed, Reason: reason, Comparisons: comps,
			Reference: &ref, Candidate: &cand, Duration: 3 * time.Millisecond},
		{ID: "r2", Status: parity.RecordErrored, Reason: "candidate: boom", ErrorKind: "external_process"},
	}
	return parity.Report{
		Reference: "reference",
		Candidate: "candidate",
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Records:   records,
		Summary:   parity.Summarize(records, len(spec), parity.DefaultAcceptance()),
	}
}

func TestSaveAndGetRun(t *testing.T) {
	s := tempDB(t)
	rep := sampleReport()
	spec := parity.ToleranceSpec{hrv.BPM: {Kind: parity.Absolute, Threshold: 5}}

	id, err := s.SaveRun("", "smoke", rep, spec)
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	run, err := s.GetRun(id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}

	// 1. Header
	if run.Dataset != "smoke" || run.Verdict != parity.Rejected || run.Records != 2 {
		t.Fatalf("unexpected header %+v", run.RunInfo)
	}
	if !run.StartedAt.Equal(rep.StartedAt) {
		t.Errorf("expected started %s, got %s", rep.StartedAt, run.StartedAt)
	}
	if run.Tolerances[hrv.BPM].Threshold != 5 {
		t.Errorf("tolerances not restored: %+v", run.Tolerances)
	}
	if run.Summary.Errored != 1 || run.Summary.PassRate != rep.Summary.PassRate {
		t.Errorf("summary not restored: %+v", run.Summary)
	}

	// 2. Records in order
	if len(run.Results) != 2 || run.Results[0].ID != "r1" || run.Results[1].ID != "r2" {
		t.Fatalf("unexpected results %+v", run.Results)
	}
	r1 := run.Results[0]
	if r1.Duration != 3*time.Millisecond || r1.Reference == nil || r1.Reference.BPM.Or(0) != 70 {
		t.Errorf("r1 not restored: %+v", r1)
	}
	if run.Results[1].ErrorKind != "external_process" || run.Results[1].Reference != nil {
		t.Errorf("r2 not restored: %+v", run.Results[1])
	}

	// 3. Comparisons, with undefined values as NULL
	if len(r1.Comparisons) != 2 {
		t.Fatalf("expected 2 comparisons, got %d", len(r1.Comparisons))
	}
	for _, c := range r1.Comparisons {
		switch c.Metric {
		case hrv.BPM:
			if c.Outcome != parity.Fail || c.Delta.Or(0) != 10 {
				t.Errorf("bpm comparison: %+v", c)
			}
		case hrv.LF:
			if c.Outcome != parity.Skip || c.Reference.IsDefined() || c.Delta.IsDefined() {
				t.Errorf("lf comparison: %+v", c)
			}
		}
	}
}

func TestBaseline(t *testing.T) {
	s := tempDB(t)
	if _, ok, err := s.Baseline(); err != nil || ok {
		t.Fatalf("expected no baseline, got ok=%v err=%v", ok, err)
	}

	first, err := s.SaveRun("", "smoke", sampleReport(), parity.DefaultTolerances())
	if err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := s.SetBaseline(first); err != nil {
		t.Fatalf("SetBaseline: %v", err)
	}
	second, _ := s.SaveRun("", "smoke", sampleReport(), parity.DefaultTolerances())

	base, ok, err := s.Baseline()
	if err != nil || !ok || base.ID != first {
		t.Fatalf("expected baseline %s, got %+v ok=%v err=%v", first, base, ok, err)
	}
	run, _ := s.GetRun(second)
	if run.BaselineID != first {
		t.Fatalf("expected second run to reference baseline %s, got %q", first, run.BaselineID)
	}

	if err := s.SetBaseline("nonexistent"); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestListRuns(t *testing.T) {
	s := tempDB(t)
	for i := 0; i < 3; i++ {
		if _, err := s.SaveRun("", "smoke", sampleReport(), parity.DefaultTolerances()); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}
	runs, err := s.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].FinishedAt.Before(runs[1].FinishedAt) {
		t.Fatal("expected newest first")
	}
}

func TestOpenMemory(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if _, err := s.SaveRun("", "mem", sampleReport(), parity.DefaultTolerances()); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
}

func TestOpenInvalidPath(t *testing.T) {
	_, err := Open(filepath.Join(string(os.PathSeparator), "nonexistent", "deep", "path", "test.db"))
	if err == nil {
		t.Fatal("expected error for invalid path")
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := tempDB(t)
	if _, err := s.GetRun("missing"); err == nil {
		t.Fatal("expected error for missing run")
	}
}
