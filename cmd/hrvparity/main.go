package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/danielpatrickdp/hrv-parity/internal/backend"
	"github.com/danielpatrickdp/hrv-parity/internal/cache"
	"github.com/danielpatrickdp/hrv-parity/internal/dataset"
	"github.com/danielpatrickdp/hrv-parity/internal/parity"
	"github.com/danielpatrickdp/hrv-parity/internal/pipeline"
	"github.com/danielpatrickdp/hrv-parity/internal/publish"
	"github.com/danielpatrickdp/hrv-parity/internal/store"
	"github.com/danielpatrickdp/hrv-parity/internal/telemetry"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #region main

func main() {
	os.Exit(run())
}

// run returns the exit code: 0 accepted, 1 partial or rejected, 2 usage or
// setup failure.
func run() int {
	manifestPath := flag.String("manifest", "", "JSON dataset manifest")
	dir := flag.String("dir", "", "directory of .rr/.ann/.csv/.txt records (alternative to --manifest)")
	fs := flag.Float64("fs", 100, "sample rate in Hz for --dir signal and annotation files")
	refSpec := flag.String("reference", "builtin:reference", "reference pipeline (builtin:NAME, exec:PATH, grpc:ADDR)")
	candSpec := flag.String("candidate", "builtin:candidate", "candidate pipeline (builtin:NAME, exec:PATH, grpc:ADDR)")
	tolPath := flag.String("tolerances", "", "JSON tolerance spec (default built-in tolerances)")
	configPath := flag.String("config", envOr("HRV_PIPELINE_CONFIG", ""), "JSON pipeline config for builtin engines (env HRV_PIPELINE_CONFIG)")
	refPNNPct := flag.Bool("ref-pnn-percent", false, "reference reports pNN20/pNN50 in percent")
	refBreathBPM := flag.Bool("ref-breathing-bpm", false, "reference reports breathing rate in breaths/min")
	candPNNPct := flag.Bool("cand-pnn-percent", false, "candidate reports pNN20/pNN50 in percent")
	candBreathBPM := flag.Bool("cand-breathing-bpm", false, "candidate reports breathing rate in breaths/min")
	acceptedPct := flag.Float64("accepted", parity.DefaultAcceptance().AcceptedPct, "pass rate (%) for an accepted verdict")
	partialPct := flag.Float64("partial", parity.DefaultAcceptance().PartialPct, "pass rate (%) for a partial verdict")
	workers := flag.Int("workers", parity.DefaultConfig().Workers, "records validated concurrently")
	timeout := flag.Duration("timeout", parity.DefaultConfig().RecordTimeout, "per-record timeout for both pipelines")
	jsonOut := flag.Bool("json", false, "write the report as JSON")
	verbose := flag.Bool("verbose", false, "list every comparison, not only failures")
	dbPath := flag.String("db", envOr("HRV_DB", ""), "SQLite run history (env HRV_DB)")
	setBaseline := flag.Bool("set-baseline", false, "mark this run as the baseline (requires --db)")
	redisAddr := flag.String("redis", envOr("HRV_REDIS_ADDR", ""), "Redis address for caching reference records (env HRV_REDIS_ADDR)")
	cacheTTL := flag.Duration("cache-ttl", 24*time.Hour, "lifetime of cached reference records")
	natsURL := flag.String("nats", envOr("HRV_NATS_URL", ""), "NATS server for result events (env HRV_NATS_URL)")
	subject := flag.String("subject", "hrv.parity", "NATS subject prefix")
	metricsFile := flag.String("metrics-file", "", "write Prometheus metrics to this textfile when done")
	flag.Parse()

	if (*manifestPath == "") == (*dir == "") {
		fmt.Fprintln(os.Stderr, "usage: hrvparity (--manifest path | --dir path [--fs hz]) [--reference spec] [--candidate spec] [--tolerances file] [--json] [--db path]")
		return 2
	}
	if *setBaseline && *dbPath == "" {
		fmt.Fprintln(os.Stderr, "--set-baseline requires --db")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Dataset
	name, inputs, err := loadDataset(*manifestPath, *dir, *fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load dataset: %v\n", err)
		return 2
	}

	// 2. Parity config
	cfg := parity.DefaultConfig()
	if *tolPath != "" {
		if cfg.Tolerances, err = parity.LoadToleranceSpec(*tolPath); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 2
		}
	}
	cfg.ReferenceUnits = parity.Units{PNNAsPercent: *refPNNPct, BreathingAsBPM: *refBreathBPM}
	cfg.CandidateUnits = parity.Units{PNNAsPercent: *candPNNPct, BreathingAsBPM: *candBreathBPM}
	cfg.Acceptance = parity.Acceptance{AcceptedPct: *acceptedPct, PartialPct: *partialPct}
	cfg.Workers = *workers
	cfg.RecordTimeout = *timeout

	// 3. Pipelines
	pcfg := pipeline.Default()
	if *configPath != "" {
		if pcfg, err = pipeline.LoadConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 2
		}
	}
	ref, closeRef, err := backend.Open(*refSpec, pcfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reference: %v\n", err)
		return 2
	}
	defer closeRef()
	cand, closeCand, err := backend.Open(*candSpec, pcfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "candidate: %v\n", err)
		return 2
	}
	defer closeCand()

	var refCache *cache.Pipeline
	if *redisAddr != "" {
		client, err := cache.Connect(ctx, *redisAddr, envOr("HRV_REDIS_PASSWORD", ""), 0)
		if err != nil {
			log.Printf("[CACHE] %v", err)
			return 2
		}
		defer client.Close()
		refCache = cache.New(ref, client, *cacheTTL, name, pcfg.Fingerprint())
		ref = refCache
	}

	// 4. Observers
	runID := uuid.New().String()
	collector := telemetry.New(prometheus.NewRegistry())
	observers := []parity.Observer{collector}
	if *natsURL != "" {
		nc, err := publish.Connect(*natsURL)
		if err != nil {
			log.Printf("[PUBLISH] %v", err)
			return 2
		}
		defer nc.Drain()
		observers = append(observers, publish.New(nc, *subject, runID))
	}

	// 5. Validate
	v, err := parity.NewValidator(cfg, ref, cand, observers...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}
	rep, err := v.Run(ctx, inputs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}
	if refCache != nil {
		hits, misses := refCache.Stats()
		log.Printf("[CACHE] reference cache: %d hits, %d misses", hits, misses)
	}

	// 6. Persist
	if *dbPath != "" {
		if err := persist(*dbPath, runID, name, rep, cfg.Tolerances, *setBaseline); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 2
		}
	}
	if *metricsFile != "" {
		if err := collector.WriteTextfile(*metricsFile); err != nil {
			log.Printf("[PARITY] %v", err)
		}
	}

	// 7. Report
	if *jsonOut {
		err = parity.WriteJSON(os.Stdout, rep)
	} else {
		err = parity.WriteText(os.Stdout, rep, *verbose)
		if err == nil && *verbose {
			fmt.Println()
			err = parity.WriteMetricTable(os.Stdout, rep.Summary)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "write report: %v\n", err)
		return 2
	}

	if rep.Summary.Verdict != parity.Accepted {
		return 1
	}
	return 0
}
// #endregion main

// #region helpers

func loadDataset(manifestPath, dir string, fs float64) (string, []pipeline.Input, error) {
	if manifestPath != "" {
		m, err := dataset.LoadManifest(manifestPath)
		if err != nil {
			return "", nil, err
		}
		inputs, err := m.Inputs()
		if err != nil {
			return "", nil, err
		}
		name := m.Name
		if name == "" {
			name = filepath.Base(filepath.Dir(manifestPath))
		}
		return name, inputs, nil
	}
	inputs, err := dataset.Scan(dir, fs)
	if err != nil {
		return "", nil, err
	}
	return filepath.Base(filepath.Clean(dir)), inputs, nil
}

func persist(dbPath, runID, name string, rep parity.Report, tolerances parity.ToleranceSpec, baseline bool) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := s.SaveRun(runID, name, rep, tolerances)
	if err != nil {
		return err
	}
	if baseline {
		if err := s.SetBaseline(id); err != nil {
			return err
		}
	}
	fmt.Fprintf(os.Stderr, "run %s saved to %s\n", id, dbPath)
	return nil
}
// #endregion helpers
