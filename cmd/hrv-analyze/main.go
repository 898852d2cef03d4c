// Command hrv-analyze analyzes one recording and prints its metrics record as
// JSON. Its flags follow the subprocess protocol, so it can serve as an
// exec: pipeline for hrvparity.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danielpatrickdp/hrv-parity/internal/dataset"
	"github.com/danielpatrickdp/hrv-parity/internal/external"
	"github.com/danielpatrickdp/hrv-parity/internal/hrv"
	"github.com/danielpatrickdp/hrv-parity/internal/pipeline"
	"github.com/danielpatrickdp/hrv-parity/internal/synth"
)

// #region main

func main() {
	os.Exit(run())
}

func run() int {
	fs := flag.Float64("fs", 100, "sample rate in Hz")
	rrMode := flag.Bool("rr", false, "input holds RR intervals in ms")
	annMode := flag.Bool("annotations", false, "input holds beat sample indices")
	synthShape := flag.String("synth", "", "analyze a synthetic recording instead of a file (ecg or ppg)")
	synthHR := flag.Float64("synth-hr", synth.DefaultConfig().HeartRateBPM, "synthetic heart rate in BPM")
	synthSec := flag.Float64("synth-seconds", synth.DefaultConfig().Seconds, "synthetic duration in seconds")
	engine := flag.String("engine", "reference", "engine: reference or candidate")
	configPath := flag.String("config", os.Getenv("HRV_PIPELINE_CONFIG"), "JSON pipeline config (env HRV_PIPELINE_CONFIG)")
	segWidth := flag.Float64("segment-width", 0, "analyze in windows of this many seconds (0 = whole recording)")
	segOverlap := flag.Float64("segment-overlap", 0, "fraction of overlap between windows")
	segMin := flag.Float64("segment-min", 20, "drop trailing windows shorter than this many seconds")
	pnnPct := flag.Bool("pnn-percent", false, "report pNN20/pNN50 in percent")
	breathBPM := flag.Bool("breathing-bpm", false, "report breathing rate in breaths/min")
	flag.Parse()

	units := hrv.Units{PNNAsPercent: *pnnPct, BreathingAsBPM: *breathBPM}
	if *synthShape == "" && flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: hrv-analyze [--fs hz] [--rr | --annotations] [--engine name] [--segment-width s] <file>")
		fmt.Fprintln(os.Stderr, "       hrv-analyze --synth ecg|ppg [--fs hz] [--synth-hr bpm] [--synth-seconds s]")
		return 2
	}

	cfg := pipeline.Default()
	if *configPath != "" {
		var err error
		if cfg, err = pipeline.LoadConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 2
		}
	}

	var p pipeline.Pipeline
	switch *engine {
	case "reference":
		p = pipeline.NewReference(cfg)
	case "candidate":
		p = pipeline.NewCandidate(cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown engine %q\n", *engine)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Input
	in, err := loadInput(*synthShape, *synthHR, *synthSec, *fs, *rrMode, *annMode)
	if err != nil {
		return fail(err)
	}

	// 2. Segmentwise
	if *segWidth > 0 {
		if in.Signal == nil {
			fmt.Fprintln(os.Stderr, "--segment-width needs a waveform input")
			return 2
		}
		segs, err := pipeline.AnalyzeSegmentwise(ctx, p, *in.Signal, *segWidth, *segOverlap, *segMin)
		if err != nil {
			return fail(err)
		}
		return writeSegments(segs, units)
	}

	// 3. Whole recording
	res, err := pipeline.Run(ctx, p, in)
	if err != nil {
		return fail(err)
	}
	if err := external.WriteRecord(os.Stdout, units.FromCanonical(res.Record)); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	return 0
}
// #endregion main

// #region helpers

func loadInput(shape string, hr, seconds, fs float64, rrMode, annMode bool) (pipeline.Input, error) {
	if shape != "" {
		cfg := synth.DefaultConfig()
		cfg.Shape = synth.Shape(shape)
		cfg.HeartRateBPM = hr
		cfg.Seconds = seconds
		cfg.SampleRate = fs
		if cfg.Shape != synth.ShapeECG && cfg.Shape != synth.ShapePPG {
			return pipeline.Input{}, fmt.Errorf("unknown synthetic shape %q", shape)
		}
		w, _ := synth.Generate(cfg)
		return pipeline.Input{ID: "synthetic", Signal: &w}, nil
	}

	path := flag.Arg(0)
	in := pipeline.Input{ID: path}
	switch {
	case rrMode:
		rr, err := dataset.LoadRR(path)
		if err != nil {
			return in, err
		}
		in.RR = rr
	case annMode:
		rr, err := dataset.LoadAnnotations(path, fs)
		if err != nil {
			return in, err
		}
		in.RR = rr
	default:
		w, err := dataset.LoadSignal(path, fs)
		if err != nil {
			return in, err
		}
		in.Signal = &w
	}
	return in, nil
}

type segmentOut struct {
	Index    int         `json:"index"`
	StartSec float64     `json:"start_sec"`
	EndSec   float64     `json:"end_sec"`
	Record   *hrv.Record `json:"record,omitempty"`
	Error    string      `json:"error,omitempty"`
}

func writeSegments(segs []pipeline.SegmentResult, units hrv.Units) int {
	out := make([]segmentOut, len(segs))
	for i, s := range segs {
		out[i] = segmentOut{Index: s.Index, StartSec: s.StartSec, EndSec: s.EndSec}
		if s.Err != nil {
			out[i].Error = s.Err.Error()
			continue
		}
		rec := units.FromCanonical(s.Result.Record)
		out[i].Record = &rec
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "encode segments: %v\n", err)
		return 1
	}
	return 0
}

// fail reports err on stdout in protocol form so an exec: caller keeps the
// error kind, and on stderr for humans.
func fail(err error) int {
	fmt.Fprintf(os.Stderr, "hrv-analyze: %v\n", err)
	external.WriteError(os.Stdout, err)
	return 1
}
// #endregion helpers
