package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/hrv-parity/internal/parity"
	"github.com/danielpatrickdp/hrv-parity/internal/replay"
	"github.com/danielpatrickdp/hrv-parity/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to the run history database")
	runID := flag.String("run", "", "run to export (default: the baseline)")
	last := flag.Int("last", 0, "export only the N last records (0 = all)")
	outPath := flag.String("out", "", "output fixture JSON path")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/runs.db --out path/to/fixture.json [--run id] [--last N]")
		os.Exit(2)
	}

	if err := run(*dbPath, *runID, *last, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
// #endregion main

// #region export

func run(dbPath, runID string, last int, outPath string) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer s.Close()

	if runID == "" {
		base, ok, err := s.Baseline()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no --run given and no baseline set")
		}
		runID = base.ID
	}
	r, err := s.GetRun(runID)
	if err != nil {
		return err
	}

	fixture := replay.FromRun(r, parity.DefaultAcceptance(), last)
	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(outPath, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}

	fmt.Printf("Exported %d records from run %s to %s\n", len(fixture.Records), r.ID, outPath)
	return nil
}
// #endregion export
