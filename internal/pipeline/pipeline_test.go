package pipeline

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/hrv-parity/internal/hrv"
	"github.com/danielpatrickdp/hrv-parity/internal/hrverr"
	"github.com/danielpatrickdp/hrv-parity/internal/synth"
)

// #region helpers
func meanOf(x []float64) float64 {
	var s float64
	for _, v := range x {
		s += v
	}
	return s / float64(len(x))
}
// #endregion helpers

// #region signal-tests
func TestAnalyzeSignal_SyntheticPPG(t *testing.T) {
	w, truth := synth.Generate(synth.DefaultConfig())
	truthBPM := 60000 / meanOf(synth.RRIntervals(truth, w.SampleRate))

	for _, p := range []Pipeline{NewReference(Default()), NewCandidate(Default())} {
		res, err := p.AnalyzeSignal(context.Background(), w)
		if err != nil {
			t.Fatalf("%s: AnalyzeSignal: %v", p.Name(), err)
		}
		n, _ := res.Record.NPeaks.Float()
		if math.Abs(n-float64(len(truth))) > 2 {
			t.Errorf("%s: expected about %d peaks, got %g", p.Name(), len(truth), n)
		}
		if bpm, _ := res.Record.BPM.Float(); math.Abs(bpm-truthBPM) > 1 {
			t.Errorf("%s: expected bpm near %.2f, got %.2f", p.Name(), truthBPM, bpm)
		}
		if br, ok := res.Record.BreathingRate.Float(); !ok || math.Abs(br-0.25) > 0.02 {
			t.Errorf("%s: expected breathing near 0.25 Hz, got %v", p.Name(), res.Record.BreathingRate)
		}
		if len(res.Beats) != int(n) {
			t.Errorf("%s: beats %d != n_peaks %g", p.Name(), len(res.Beats), n)
		}
		if res.RR == nil || res.RR.Stages[0].Stage != "range" {
			t.Errorf("%s: expected cleaning report", p.Name())
		}
	}
}

func TestAnalyzeSignal_EnginesAgree(t *testing.T) {
	w, _ := synth.Generate(synth.DefaultConfig())
	ref, err := NewReference(Default()).AnalyzeSignal(context.Background(), w)
	if err != nil {
		t.Fatalf("reference: %v", err)
	}
	cand, err := NewCandidate(Default()).AnalyzeSignal(context.Background(), w)
	if err != nil {
		t.Fatalf("candidate: %v", err)
	}
	for _, m := range hrv.CoreMetrics {
		a, aok := ref.Record.Get(m).Float()
		b, bok := cand.Record.Get(m).Float()
		if aok != bok {
			t.Errorf("%s: defined mismatch %v vs %v", m, aok, bok)
			continue
		}
		if aok && math.Abs(a-b) > 1e-6*math.Max(1, math.Abs(a)) {
			t.Errorf("%s: %g vs %g", m, a, b)
		}
	}
}

func TestAnalyzeSignal_Deterministic(t *testing.T) {
	cfg := synth.DefaultConfig()
	cfg.Seconds = 60
	w, _ := synth.Generate(cfg)
	e := NewReference(Default())
	a, err := e.AnalyzeSignal(context.Background(), w)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	b, err := e.AnalyzeSignal(context.Background(), w)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	for _, m := range hrv.CoreMetrics {
		x, _ := a.Record.Get(m).Float()
		y, _ := b.Record.Get(m).Float()
		if x != y {
			t.Fatalf("%s differs between runs: %g vs %g", m, x, y)
		}
	}
}

func TestAnalyzeSignal_InvalidBandpass(t *testing.T) {
	w, _ := synth.Generate(synth.DefaultConfig())
	cfg := Default()
	cfg.HighHz = 80 // above Nyquist at 100 Hz
	_, err := NewReference(cfg).AnalyzeSignal(context.Background(), w)
	if !errors.Is(err, hrverr.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}

func TestAnalyzeSignal_Cancelled(t *testing.T) {
	w, _ := synth.Generate(synth.DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCandidate(Default()).AnalyzeSignal(ctx, w)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
// #endregion signal-tests

// #region rr-tests
func TestAnalyzeRR_Textbook(t *testing.T) {
	res, err := NewReference(Default()).AnalyzeRR(context.Background(), []float64{800, 810, 790, 805, 795})
	if err != nil {
		t.Fatalf("AnalyzeRR: %v", err)
	}
	if sdnn, _ := res.Record.SDNN.Float(); math.Abs(sdnn-math.Sqrt(50)) > 1e-9 {
		t.Fatalf("expected sdnn sqrt(50), got %g", sdnn)
	}
	if n, _ := res.Record.NPeaks.Float(); n != 6 {
		t.Fatalf("expected 6 peaks, got %g", n)
	}
	if res.Record.LF.IsDefined() {
		t.Fatal("expected lf undefined for a 4 s series")
	}
}

func TestAnalyzeRR_SingleInterval(t *testing.T) {
	_, err := NewCandidate(Default()).AnalyzeRR(context.Background(), []float64{800})
	if !errors.Is(err, hrverr.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestAnalyzeRR_TooFewAfterCleaning(t *testing.T) {
	_, err := NewReference(Default()).AnalyzeRR(context.Background(), []float64{800, 100, 810, 120, 790, 3000})
	if !errors.Is(err, hrverr.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}
// #endregion rr-tests

// #region segmentwise-tests
func TestAnalyzeSegmentwise(t *testing.T) {
	w, _ := synth.Generate(synth.DefaultConfig())
	segs, err := AnalyzeSegmentwise(context.Background(), NewReference(Default()), w, 60, 0, 20)
	if err != nil {
		t.Fatalf("AnalyzeSegmentwise: %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}
	for _, s := range segs {
		if s.Err != nil {
			t.Errorf("segment %d: %v", s.Index, s.Err)
		}
		if s.EndSec-s.StartSec != 60 {
			t.Errorf("segment %d spans %g s", s.Index, s.EndSec-s.StartSec)
		}
	}
}

func TestAnalyzeSegmentwise_OverlapAndMinSize(t *testing.T) {
	w, _ := synth.Generate(synth.DefaultConfig())
	// Windows start every 30 s; the one at 120 s reaches the end of the trace.
	segs, err := AnalyzeSegmentwise(context.Background(), NewCandidate(Default()), w, 60, 0.5, 20)
	if err != nil {
		t.Fatalf("AnalyzeSegmentwise: %v", err)
	}
	if len(segs) != 5 {
		t.Fatalf("expected 5 segments, got %d", len(segs))
	}
	if segs[4].StartSec != 120 {
		t.Fatalf("expected last window at 120 s, got %g", segs[4].StartSec)
	}
}

func TestAnalyzeSegmentwise_BadWidth(t *testing.T) {
	w, _ := synth.Generate(synth.DefaultConfig())
	if _, err := AnalyzeSegmentwise(context.Background(), NewReference(Default()), w, 0, 0, 0); !errors.Is(err, hrverr.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
}
// #endregion segmentwise-tests

// #region config-tests
func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_ChangesRRAnalysis(t *testing.T) {
	var ms []float64
	for i := 0; i < 12; i++ {
		ms = append(ms, 800, 810, 790, 805, 795)
	}
	ms[30] = 1500

	cfg, err := LoadConfig(writeConfig(t, `{"clean": {"outlier": "iqr", "segment_reject": true}}`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Clean.Outlier != "iqr" || !cfg.Clean.SegmentReject {
		t.Fatalf("clean settings not loaded: %+v", cfg.Clean)
	}
	if cfg.Clean.MinMs != Default().Clean.MinMs || cfg.LowHz != Default().LowHz {
		t.Fatalf("omitted fields should keep defaults: %+v", cfg)
	}

	plain, err := NewReference(Default()).AnalyzeRR(context.Background(), ms)
	if err != nil {
		t.Fatalf("AnalyzeRR default: %v", err)
	}
	cleaned, err := NewReference(cfg).AnalyzeRR(context.Background(), ms)
	if err != nil {
		t.Fatalf("AnalyzeRR loaded: %v", err)
	}
	a, _ := plain.Record.SDNN.Float()
	b, _ := cleaned.Record.SDNN.Float()
	if !(b < a) {
		t.Fatalf("expected iqr rejection to lower sdnn, got %g (default) vs %g (iqr)", a, b)
	}
	if cfg.Fingerprint() == Default().Fingerprint() {
		t.Fatal("expected the loaded config to change the fingerprint")
	}
}

func TestLoadConfig_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown outlier":    `{"clean": {"outlier": "median"}}`,
		"short welch window": `{"freq": {"welch_sec": 0.1}}`,
		"inverted band-pass": `{"low_hz": 8, "high_hz": 5}`,
	}
	for name, body := range cases {
		if _, err := LoadConfig(writeConfig(t, body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadConfig_OutlierNone(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `{"clean": {"outlier": "none"}}`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Clean.Outlier != "" {
		t.Fatalf("expected none to map to the empty method, got %q", cfg.Clean.Outlier)
	}
}
// #endregion config-tests
