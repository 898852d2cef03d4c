package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/hrv-parity/internal/beats"
	"github.com/danielpatrickdp/hrv-parity/internal/hrv"
	"github.com/danielpatrickdp/hrv-parity/internal/hrverr"
	"github.com/danielpatrickdp/hrv-parity/internal/rr"
	"github.com/danielpatrickdp/hrv-parity/internal/signal"
)

// #region config
// Config is the complete, immutable analysis configuration. Engines copy it at
// construction; it is never read from globals.
type Config struct {
	LowHz       float64 `json:"low_hz"`
	HighHz      float64 `json:"high_hz"`
	FilterOrder int     `json:"filter_order"`

	InterpolateClipping  bool    `json:"interpolate_clipping"`
	ClippingThreshold    float64 `json:"clipping_threshold"`
	HampelCorrect        bool    `json:"hampel_correct"`
	HampelWindow         int     `json:"hampel_window"`
	HampelThreshold      float64 `json:"hampel_threshold"`
	RemoveBaselineWander bool    `json:"remove_baseline_wander"`
	EnhancePeaks         bool    `json:"enhance_peaks"`
	EnhanceIterations    int     `json:"enhance_iterations"`

	Beats beats.Config   `json:"beats"`
	Clean rr.CleanConfig `json:"clean"`
	Freq  hrv.FreqConfig `json:"freq"`
}

// Default returns the standard configuration: 0.5-5 Hz order-2 band-pass,
// range-only RR cleaning and a 240 s Welch segment.
func Default() Config {
	return Config{
		LowHz:             0.5,
		HighHz:            5,
		FilterOrder:       2,
		ClippingThreshold: signal.DefaultClippingThreshold,
		HampelWindow:      signal.DefaultHampelWindow,
		HampelThreshold:   signal.DefaultHampelThreshold,
		EnhanceIterations: 2,
		Beats:             beats.DefaultConfig(),
		Clean:             rr.DefaultCleanConfig(),
		Freq:              hrv.DefaultFreqConfig(),
	}
}

// Validate checks every stage's settings without touching any data.
func (c Config) Validate() error {
	if !(c.LowHz > 0 && c.LowHz < c.HighHz) {
		return hrverr.InvalidParameter("pipeline.Config", "band-pass [%g, %g] Hz invalid", c.LowHz, c.HighHz)
	}
	if c.FilterOrder < 1 {
		return hrverr.InvalidParameter("pipeline.Config", "filter order %d must be >= 1", c.FilterOrder)
	}
	if c.EnhancePeaks && c.EnhanceIterations < 1 {
		return hrverr.InvalidParameter("pipeline.Config", "enhance iterations %d must be >= 1", c.EnhanceIterations)
	}
	if err := c.Beats.Validate(); err != nil {
		return fmt.Errorf("validate beats config: %w", err)
	}
	if err := c.Clean.Validate(); err != nil {
		return fmt.Errorf("validate clean config: %w", err)
	}
	if err := c.Freq.Validate(); err != nil {
		return fmt.Errorf("validate freq config: %w", err)
	}
	return nil
}
// #endregion config

// #region load
// LoadConfig reads a JSON config file. Fields it omits keep their Default
// values, so a file may set only what it changes.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read pipeline config %s: %w", path, err)
	}
	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse pipeline config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate pipeline config %s: %w", path, err)
	}
	return cfg, nil
}

// Fingerprint is a stable hash of every setting, used to keep cached
// results from crossing configurations.
func (c Config) Fingerprint() string {
	data, _ := json.Marshal(c)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
// #endregion load
