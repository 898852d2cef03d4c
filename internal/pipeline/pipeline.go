// Package pipeline wires preprocessing, beat detection, RR cleaning and metric
// estimation into one analysis, and defines the Pipeline capability that the
// parity validator compares implementations through.
package pipeline

import (
	"context"

	"github.com/danielpatrickdp/hrv-parity/internal/hrv"
	"github.com/danielpatrickdp/hrv-parity/internal/rr"
	"github.com/danielpatrickdp/hrv-parity/internal/signal"
)

// #region pipeline
// Pipeline is one implementation of the analysis. In-process engines,
// subprocesses and remote services all satisfy it.
type Pipeline interface {
	Name() string
	AnalyzeSignal(ctx context.Context, w signal.Waveform) (Result, error)
	AnalyzeRR(ctx context.Context, intervalsMs []float64) (Result, error)
}

// Result is the outcome of one analysis. Out-of-process pipelines only fill
// Record.
type Result struct {
	Record hrv.Record  `json:"record"`
	Beats  []int       `json:"beats,omitempty"`
	RR     *rr.Cleaned `json:"rr,omitempty"`
}
// #endregion pipeline

// #region input
// Input is one record of a dataset: either a waveform or an RR list.
type Input struct {
	ID     string
	Signal *signal.Waveform
	RR     []float64 // ms
}

// Run dispatches in to the matching Pipeline method.
func Run(ctx context.Context, p Pipeline, in Input) (Result, error) {
	if in.Signal != nil {
		return p.AnalyzeSignal(ctx, *in.Signal)
	}
	return p.AnalyzeRR(ctx, in.RR)
}
// #endregion input
