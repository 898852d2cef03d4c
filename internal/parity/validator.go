// Package parity runs a reference and a candidate pipeline over the same
// records and grades how closely their metrics agree.
package parity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/danielpatrickdp/hrv-parity/internal/hrv"
	"github.com/danielpatrickdp/hrv-parity/internal/hrverr"
	"github.com/danielpatrickdp/hrv-parity/internal/pipeline"
)

// #region observer
// Observer receives results as they are produced. Implementations must be
// safe for concurrent use.
type Observer interface {
	ObserveRecord(r RecordResult)
	ObserveSummary(s Summary)
}
// #endregion observer

// #region validator
// Validator compares two pipelines record by record.
type Validator struct {
	config    Config
	reference pipeline.Pipeline
	candidate pipeline.Pipeline
	observers []Observer
}

// Report is the output of a validation run.
type Report struct {
	Reference string         `json:"reference"`
	Candidate string         `json:"candidate"`
	StartedAt time.Time      `json:"started_at"`
	Records   []RecordResult `json:"records"`
	Summary   Summary        `json:"summary"`
}

// NewValidator creates a validator. Zero Workers or RecordTimeout fall back
// to the defaults.
func NewValidator(config Config, reference, candidate pipeline.Pipeline, observers ...Observer) (*Validator, error) {
	if err := config.Tolerances.Validate(); err != nil {
		return nil, fmt.Errorf("create validator: %w", err)
	}
	def := DefaultConfig()
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.RecordTimeout <= 0 {
		config.RecordTimeout = def.RecordTimeout
	}
	if config.Acceptance == (Acceptance{}) {
		config.Acceptance = def.Acceptance
	}
	return &Validator{
		config:    config,
		reference: reference,
		candidate: candidate,
		observers: observers,
	}, nil
}

// Run validates every input with a fixed pool of workers. Results keep the
// input order. One failing record never affects another.
func (v *Validator) Run(ctx context.Context, inputs []pipeline.Input) (Report, error) {
	report := Report{
		Reference: v.reference.Name(),
		Candidate: v.candidate.Name(),
		StartedAt: time.Now().UTC(),
		Records:   make([]RecordResult, len(inputs)),
	}
	log.Printf("[PARITY] run start: %d records, %s vs %s, %d workers",
		len(inputs), report.Reference, report.Candidate, v.config.Workers)

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < v.config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				r := v.ValidateRecord(ctx, inputs[i])
				report.Records[i] = r
				for _, o := range v.observers {
					o.ObserveRecord(r)
				}
			}
		}()
	}

dispatch:
	for i := range inputs {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("run validation: %w", err)
	}

	report.Summary = Summarize(report.Records, len(v.config.Tolerances), v.config.Acceptance)
	for _, o := range v.observers {
		o.ObserveSummary(report.Summary)
	}
	log.Printf("[PARITY] run done: passed=%d failed=%d errored=%d skipped=%d pass_rate=%.2f%% verdict=%s",
		report.Summary.Passed, report.Summary.Failed, report.Summary.Errored, report.Summary.Skipped,
		report.Summary.PassRate, report.Summary.Verdict)
	return report, nil
}

// ValidateRecord runs both pipelines on one input and judges the results.
// Each side gets its own per-record timeout, so a slow reference never eats
// into the candidate's budget.
func (v *Validator) ValidateRecord(ctx context.Context, in pipeline.Input) RecordResult {
	start := time.Now()
	refRes, refErr := v.runSide(ctx, v.reference, in)
	candRes, candErr := v.runSide(ctx, v.candidate, in)

	r := v.config.Judge(in.ID, refRes.Record, refErr, candRes.Record, candErr)
	r.Duration = time.Since(start)
	return r
}

// runSide runs one pipeline under RecordTimeout. A panic becomes an error
// for this record only.
func (v *Validator) runSide(ctx context.Context, p pipeline.Pipeline, in pipeline.Input) (res pipeline.Result, err error) {
	rctx, cancel := context.WithTimeout(ctx, v.config.RecordTimeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			res, err = pipeline.Result{}, fmt.Errorf("%s panicked on %s: %v", p.Name(), in.ID, rec)
		}
	}()
	return pipeline.Run(rctx, p, in)
}

// Judge decides one record from both pipelines' outcomes. Short input on
// both sides skips the record, any other error fails it, and otherwise every
// metric is gated. Stored records are in canonical units.
func (c Config) Judge(id string, ref hrv.Record, refErr error, cand hrv.Record, candErr error) RecordResult {
	r := RecordResult{ID: id}

	refShort := errors.Is(refErr, hrverr.ErrInsufficientData)
	candShort := errors.Is(candErr, hrverr.ErrInsufficientData)
	switch {
	case refShort && candShort:
		r.Status = RecordSkipped
		r.Reason = "insufficient data in both pipelines"
		r.ErrorKind = hrverr.KindName(refErr)
		log.Printf("[PARITY] %s skipped: %v", id, refErr)
		return r
	case refErr != nil:
		return errored(r, "reference", refErr)
	case candErr != nil:
		return errored(r, "candidate", candErr)
	}

	ref, cand = Align(ref, cand, c.ReferenceUnits, c.CandidateUnits)
	r.Reference, r.Candidate = &ref, &cand
	comparisons, ok, reason := EvaluateRecord(ref, cand, c.Tolerances, Units{}, Units{})
	r.Comparisons = comparisons
	r.Reason = reason
	r.Status = RecordPassed
	if !ok {
		r.Status = RecordFailed
	}
	return r
}
// #endregion validator

// #region helpers
func errored(r RecordResult, side string, err error) RecordResult {
	r.Status = RecordErrored
	r.ErrorKind = errorKind(err)
	r.Reason = fmt.Sprintf("%s: %v", side, err)
	log.Printf("[PARITY] %s errored (%s): %v", r.ID, side, err)
	return r
}

// errorKind names an error for reports, treating deadline expiry as a timeout.
func errorKind(err error) string {
	if errors.Is(err, context.DeadlineExceeded) && hrverr.KindOf(err) == nil {
		return "timeout"
	}
	return hrverr.KindName(err)
}
// #endregion helpers
