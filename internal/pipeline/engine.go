package pipeline

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/hrv-parity/internal/beats"
	"github.com/danielpatrickdp/hrv-parity/internal/hrv"
	"github.com/danielpatrickdp/hrv-parity/internal/rr"
	"github.com/danielpatrickdp/hrv-parity/internal/signal"
)

// #region engine
// Engine is an in-process Pipeline. Reference and candidate engines run the
// same stages over different numeric kernels.
type Engine struct {
	name     string
	config   Config
	kernels  hrv.Kernels
	envelope beats.Envelope
}

// NewReference builds the reference engine.
func NewReference(config Config) *Engine {
	return &Engine{
		name:     "reference",
		config:   config,
		kernels:  hrv.ReferenceKernels(),
		envelope: beats.PrefixSumEnvelope,
	}
}

// NewCandidate builds the candidate engine.
func NewCandidate(config Config) *Engine {
	return &Engine{
		name:     "candidate",
		config:   config,
		kernels:  hrv.CandidateKernels(),
		envelope: beats.SlidingEnvelope,
	}
}

// Name identifies the engine in reports.
func (e *Engine) Name() string { return e.name }

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.config }

// AnalyzeSignal runs the full waveform pipeline.
func (e *Engine) AnalyzeSignal(ctx context.Context, w signal.Waveform) (Result, error) {
	if err := e.config.Validate(); err != nil {
		return Result{}, err
	}
	prepared, err := e.preprocess(ctx, w)
	if err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	peaks, err := beats.NewDetector(e.config.Beats, e.envelope).Detect(prepared)
	if err != nil {
		return Result{}, fmt.Errorf("detect beats: %w", err)
	}
	series, err := rr.FromBeats(peaks, prepared.SampleRate)
	if err != nil {
		return Result{}, fmt.Errorf("extract intervals: %w", err)
	}

	res, err := e.analyzeSeries(ctx, series, len(peaks))
	if err != nil {
		return res, err
	}
	res.Beats = peaks
	return res, nil
}

// AnalyzeRR runs the interval pipeline on a precomputed RR list (ms).
func (e *Engine) AnalyzeRR(ctx context.Context, intervalsMs []float64) (Result, error) {
	if err := e.config.Validate(); err != nil {
		return Result{}, err
	}
	series, err := rr.FromIntervals(intervalsMs)
	if err != nil {
		return Result{}, fmt.Errorf("load intervals: %w", err)
	}
	return e.analyzeSeries(ctx, series, series.Len()+1)
}

func (e *Engine) analyzeSeries(ctx context.Context, series rr.Series, nPeaks int) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	cleaned, err := rr.Clean(series, e.config.Clean)
	if err != nil {
		return Result{RR: &cleaned}, fmt.Errorf("clean intervals: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	rec, err := hrv.Compute(cleaned.Series, e.config.Freq, e.kernels)
	if err != nil {
		return Result{}, err
	}
	rec.NPeaks = hrv.Defined(float64(nPeaks))
	return Result{Record: rec, RR: &cleaned}, nil
}
// #endregion engine

// #region preprocess
func (e *Engine) preprocess(ctx context.Context, w signal.Waveform) (signal.Waveform, error) {
	c := e.config
	type stage struct {
		name    string
		enabled bool
		run     func(signal.Waveform) (signal.Waveform, error)
	}
	stages := []stage{
		{"validate", true, func(w signal.Waveform) (signal.Waveform, error) { return w, w.Validate() }},
		{"interpolate clipping", c.InterpolateClipping, func(w signal.Waveform) (signal.Waveform, error) {
			return signal.InterpolateClipping(w, c.ClippingThreshold)
		}},
		{"hampel", c.HampelCorrect, func(w signal.Waveform) (signal.Waveform, error) {
			return signal.Hampel(w, c.HampelWindow, c.HampelThreshold)
		}},
		{"remove baseline wander", c.RemoveBaselineWander, signal.RemoveBaselineWander},
		{"bandpass", true, func(w signal.Waveform) (signal.Waveform, error) {
			return signal.Bandpass(w, c.LowHz, c.HighHz, c.FilterOrder)
		}},
		{"scale", true, func(w signal.Waveform) (signal.Waveform, error) {
			return signal.Scale(w, signal.DefaultScaleMin, signal.DefaultScaleMax)
		}},
		{"enhance peaks", c.EnhancePeaks, func(w signal.Waveform) (signal.Waveform, error) {
			return signal.EnhancePeaks(w, c.EnhanceIterations)
		}},
	}

	out := w
	for _, s := range stages {
		if !s.enabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return signal.Waveform{}, err
		}
		next, err := s.run(out)
		if err != nil {
			return signal.Waveform{}, fmt.Errorf("preprocess %s: %w", s.name, err)
		}
		out = next
	}
	return out, nil
}
// #endregion preprocess
