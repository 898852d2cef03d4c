package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/hrv-parity/internal/hrv"
	"github.com/danielpatrickdp/hrv-parity/internal/hrverr"
	"github.com/danielpatrickdp/hrv-parity/internal/parity"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a parity replay fixture: both
// pipelines' recorded outputs per record plus the expected judgement.
type Fixture struct {
	Description     string                  `json:"description"`
	Config          FixtureConfig           `json:"config"`
	Records         []FixtureRecord         `json:"records"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
	ExpectedVerdict parity.Verdict          `json:"expected_verdict"`
}

// FixtureRecord holds what each pipeline produced for one record. An error
// field holds an error kind name ("insufficient_data", "external_process", ...)
// and takes precedence over the record.
type FixtureRecord struct {
	ID             string      `json:"id"`
	Reference      *hrv.Record `json:"reference,omitempty"`
	Candidate      *hrv.Record `json:"candidate,omitempty"`
	ReferenceError string      `json:"reference_error,omitempty"`
	CandidateError string      `json:"candidate_error,omitempty"`
}

// FixtureExpectedResult captures the expected status per record.
type FixtureExpectedResult struct {
	ID     string              `json:"id"`
	Status parity.RecordStatus `json:"status"`
}

// FixtureConfig mirrors parity.Config with JSON tags. Empty fields fall back
// to the defaults.
type FixtureConfig struct {
	ExtendDefaults bool                 `json:"extend_defaults"`
	Tolerances     parity.ToleranceSpec `json:"tolerances,omitempty"`
	ReferenceUnits hrv.Units            `json:"reference_units"`
	CandidateUnits hrv.Units            `json:"candidate_units"`
	Acceptance     *parity.Acceptance   `json:"acceptance,omitempty"`
}
// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToParityConfig converts a FixtureConfig to a validated parity.Config.
func (fc *FixtureConfig) ToParityConfig() (parity.Config, error) {
	cfg := parity.DefaultConfig()
	switch {
	case len(fc.Tolerances) == 0:
	case fc.ExtendDefaults:
		cfg.Tolerances = cfg.Tolerances.Merge(fc.Tolerances)
	default:
		cfg.Tolerances = fc.Tolerances
	}
	if err := cfg.Tolerances.Validate(); err != nil {
		return parity.Config{}, fmt.Errorf("fixture tolerances: %w", err)
	}
	cfg.ReferenceUnits = fc.ReferenceUnits
	cfg.CandidateUnits = fc.CandidateUnits
	if fc.Acceptance != nil {
		cfg.Acceptance = *fc.Acceptance
	}
	return cfg, nil
}

// outcome converts one side of a FixtureRecord back into a pipeline outcome.
func outcome(rec *hrv.Record, kind, side string) (hrv.Record, error) {
	if kind == "timeout" {
		return hrv.Record{}, fmt.Errorf("recorded %s failure: %w", side, context.DeadlineExceeded)
	}
	if kind != "" {
		k := hrverr.ByName(kind)
		if k == nil {
			return hrv.Record{}, fmt.Errorf("recorded %s failure: %s", side, kind)
		}
		return hrv.Record{}, &hrverr.Error{Kind: k, Op: "replay", Msg: "recorded " + side + " failure"}
	}
	if rec == nil {
		return hrv.Record{}, hrverr.ExternalProcess("replay", "no recorded %s output", side)
	}
	return *rec, nil
}
// #endregion fixture-loader
