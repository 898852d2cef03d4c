package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/hrv-parity/internal/parity"
	"github.com/danielpatrickdp/hrv-parity/internal/replay"
	"github.com/danielpatrickdp/hrv-parity/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to the run history database (DB mode)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	runID := flag.String("run", "", "stored run to re-gate (default: the baseline)")
	tolPath := flag.String("tolerances", "", "tolerance spec to re-gate with (DB mode)")
	acceptedPct := flag.Float64("accepted", parity.DefaultAcceptance().AcceptedPct, "pass rate (%) for an accepted verdict")
	partialPct := flag.Float64("partial", parity.DefaultAcceptance().PartialPct, "pass rate (%) for a partial verdict")
	save := flag.Bool("save", false, "store the re-gated run as a new run (DB mode)")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") ||
		(*dbPath != "" && *tolPath == "") {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json")
		fmt.Fprintln(os.Stderr, "       replay --db path/to/runs.db --tolerances spec.json [--run id] [--save]")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath)
	} else {
		acc := parity.Acceptance{AcceptedPct: *acceptedPct, PartialPct: *partialPct}
		exitCode = runDBMode(*dbPath, *runID, *tolPath, acc, *save)
	}
	os.Exit(exitCode)
}
// #endregion main

// #region fixture-mode

func runFixtureMode(path string) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}
	if f.Description != "" {
		fmt.Printf("Fixture: %s\n\n", f.Description)
	}

	rep, err := replay.Replay(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		return 2
	}
	return printComparison(f, rep, replay.Check(f, rep))
}

// printComparison outputs a comparison table and returns the exit code.
func printComparison(f *replay.Fixture, rep parity.Report, mismatches []replay.Mismatch) int {
	got := make(map[string]parity.RecordStatus, len(rep.Records))
	for _, r := range rep.Records {
		got[r.ID] = r.Status
	}

	fmt.Printf("%-16s| %-10s| %-10s| %s\n", "Record", "Expected", "Replayed", "Match")
	fmt.Printf("%-16s+%-11s+%-11s+%s\n", "----------------", "-----------", "-----------", "------")
	for _, exp := range f.ExpectedResults {
		match := "OK"
		if got[exp.ID] != exp.Status {
			match = "DIVERGE"
		}
		fmt.Printf("%-16s| %-10s| %-10s| %s\n", exp.ID, exp.Status, got[exp.ID], match)
	}

	s := rep.Summary
	fmt.Printf("\nPass rate %.2f%%, verdict %s", s.PassRate, s.Verdict)
	if f.ExpectedVerdict != "" {
		fmt.Printf(" (expected %s)", f.ExpectedVerdict)
	}
	fmt.Println()

	if len(mismatches) > 0 {
		fmt.Printf("\n%d mismatches:\n", len(mismatches))
		for _, m := range mismatches {
			fmt.Printf("  %s\n", m)
		}
		return 1
	}
	return 0
}
// #endregion fixture-mode

// #region db-mode

func runDBMode(dbPath, runID, tolPath string, acc parity.Acceptance, save bool) int {
	spec, err := parity.LoadToleranceSpec(tolPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}

	s, err := store.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer s.Close()

	if runID == "" {
		base, ok, err := s.Baseline()
		if err != nil || !ok {
			fmt.Fprintf(os.Stderr, "no --run given and no baseline set (%v)\n", err)
			return 2
		}
		runID = base.ID
	}
	run, err := s.GetRun(runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}

	rep, changes, err := replay.Regate(run, spec, acc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}

	fmt.Printf("Run %s (%s): %d records\n\n", run.ID, run.Dataset, len(run.Results))
	fmt.Printf("%-16s| %-10s| %-10s| %s\n", "Record", "Before", "After", "Reason")
	fmt.Printf("%-16s+%-11s+%-11s+%s\n", "----------------", "-----------", "-----------", "------")
	for _, c := range changes {
		fmt.Printf("%-16s| %-10s| %-10s| %s\n", c.ID, c.Before, c.After, c.Reason)
	}
	fmt.Printf("\nSummary: %d changed, pass rate %.2f%% -> %.2f%%, verdict %s -> %s\n",
		len(changes), run.Summary.PassRate, rep.Summary.PassRate, run.Summary.Verdict, rep.Summary.Verdict)

	if save {
		id, err := s.SaveRun("", run.Dataset, rep, spec)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 2
		}
		fmt.Printf("Re-gated run saved as %s\n", id)
	}

	if rep.Summary.Verdict != parity.Accepted {
		return 1
	}
	return 0
}
// #endregion db-mode
