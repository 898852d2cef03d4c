package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/danielpatrickdp/hrv-parity/internal/parity"
	"github.com/danielpatrickdp/hrv-parity/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", os.Getenv("HRV_DB"), "path to the run history database (env HRV_DB)")
	last := flag.Int("last", 20, "show N most recent runs")
	runID := flag.String("run", "", "show one run in detail")
	baseline := flag.Bool("baseline", false, "show the baseline run in detail")
	verbose := flag.Bool("verbose", false, "list every comparison in detail mode")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" || (*runID != "" && *baseline) {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path [--last N] [--run id | --baseline] [--verbose] [--json]")
		os.Exit(2)
	}

	s, err := store.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	if *baseline {
		info, ok, err := s.Baseline()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Fprintln(os.Stderr, "no baseline set")
			os.Exit(1)
		}
		*runID = info.ID
	}

	if *runID != "" {
		err = runDetailMode(s, *runID, *verbose, *jsonOut)
	} else {
		err = runListMode(s, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
// #endregion main

// #region list-mode

type listRow struct {
	RunID      string         `json:"run_id"`
	Dataset    string         `json:"dataset"`
	Reference  string         `json:"reference"`
	Candidate  string         `json:"candidate"`
	Records    int            `json:"records"`
	PassRate   float64        `json:"pass_rate"`
	Verdict    parity.Verdict `json:"verdict"`
	FinishedAt string         `json:"finished_at"`
	Baseline   bool           `json:"baseline"`
}

func runListMode(s *store.Store, last int, jsonOut bool) error {
	runs, err := s.ListRuns(last)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "no runs found")
		return nil
	}
	base, _, err := s.Baseline()
	if err != nil {
		return err
	}

	rows := make([]listRow, len(runs))
	for i, r := range runs {
		rows[i] = listRow{
			RunID:      r.ID,
			Dataset:    r.Dataset,
			Reference:  r.Reference,
			Candidate:  r.Candidate,
			Records:    r.Records,
			PassRate:   r.PassRate,
			Verdict:    r.Verdict,
			FinishedAt: r.FinishedAt.Format(time.RFC3339),
			Baseline:   r.ID == base.ID,
		}
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "run\tdataset\treference\tcandidate\trecords\tpass rate\tverdict\tfinished\t")
	for _, r := range rows {
		mark := ""
		if r.Baseline {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\t%d\t%.2f%%\t%s\t%s\t\n",
			r.RunID, mark, r.Dataset, r.Reference, r.Candidate, r.Records, r.PassRate, r.Verdict, r.FinishedAt)
	}
	return tw.Flush()
}
// #endregion list-mode

// #region detail-mode

func runDetailMode(s *store.Store, id string, verbose, jsonOut bool) error {
	run, err := s.GetRun(id)
	if err != nil {
		return err
	}

	if jsonOut {
		return parity.WriteJSON(os.Stdout, run.Report())
	}

	fmt.Printf("run %s  dataset %s  finished %s\n", run.ID, run.Dataset, run.FinishedAt.Format(time.RFC3339))
	if run.BaselineID != "" && run.BaselineID != run.ID {
		if base, err := s.GetRun(run.BaselineID); err == nil {
			fmt.Printf("baseline %s: pass rate %.2f%% (%+.2f), verdict %s\n",
				base.ID, base.PassRate, run.PassRate-base.PassRate, base.Verdict)
		}
	}
	fmt.Println()
	if err := parity.WriteText(os.Stdout, run.Report(), verbose); err != nil {
		return err
	}
	fmt.Println()
	return parity.WriteMetricTable(os.Stdout, run.Summary)
}
// #endregion detail-mode
