package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/danielpatrickdp/hrv-parity/internal/hrverr"
	"github.com/danielpatrickdp/hrv-parity/internal/pipeline"
	"github.com/danielpatrickdp/hrv-parity/internal/synth"
)

// #region types
// Kind names how an entry's file is interpreted.
type Kind string

const (
	KindSignal      Kind = "signal"
	KindRR          Kind = "rr"
	KindAnnotations Kind = "annotations"
	KindSynthetic   Kind = "synthetic"
)

// Entry is one record of a manifest. Path is relative to the manifest file.
type Entry struct {
	ID         string  `json:"id"`
	Kind       Kind    `json:"kind"`
	Path       string  `json:"path,omitempty"`
	SampleRate float64 `json:"sample_rate,omitempty"`

	// Synthetic entries override these DefaultConfig fields when non-zero.
	Shape        synth.Shape `json:"shape,omitempty"`
	Seconds      float64     `json:"seconds,omitempty"`
	HeartRateBPM float64     `json:"heart_rate_bpm,omitempty"`
	RespHz       float64     `json:"resp_hz,omitempty"`
}

// Manifest lists the records of a dataset.
type Manifest struct {
	Name    string  `json:"name"`
	Records []Entry `json:"records"`

	dir string
}
// #endregion types

// #region load
// LoadManifest reads a JSON manifest.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	m.dir = filepath.Dir(path)
	seen := make(map[string]bool, len(m.Records))
	for i, e := range m.Records {
		if e.ID == "" {
			return Manifest{}, hrverr.InvalidParameter("dataset.LoadManifest", "record %d has no id", i)
		}
		if seen[e.ID] {
			return Manifest{}, hrverr.InvalidParameter("dataset.LoadManifest", "duplicate record id %q", e.ID)
		}
		seen[e.ID] = true
	}
	return m, nil
}

// Inputs loads every entry. The first failing entry aborts the load.
func (m Manifest) Inputs() ([]pipeline.Input, error) {
	out := make([]pipeline.Input, 0, len(m.Records))
	for _, e := range m.Records {
		in, err := e.Load(m.dir)
		if err != nil {
			return nil, fmt.Errorf("load record %s: %w", e.ID, err)
		}
		out = append(out, in)
	}
	return out, nil
}

// Load reads the entry's data, resolving Path against dir.
func (e Entry) Load(dir string) (pipeline.Input, error) {
	in := pipeline.Input{ID: e.ID}
	path := e.Path
	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}

	switch e.Kind {
	case KindSignal, "":
		w, err := LoadSignal(path, e.SampleRate)
		if err != nil {
			return in, err
		}
		in.Signal = &w
	case KindRR:
		ms, err := LoadRR(path)
		if err != nil {
			return in, err
		}
		in.RR = ms
	case KindAnnotations:
		ms, err := LoadAnnotations(path, e.SampleRate)
		if err != nil {
			return in, err
		}
		in.RR = ms
	case KindSynthetic:
		cfg := synth.DefaultConfig()
		if e.Shape != "" {
			cfg.Shape = e.Shape
		}
		if e.SampleRate > 0 {
			cfg.SampleRate = e.SampleRate
		}
		if e.Seconds > 0 {
			cfg.Seconds = e.Seconds
		}
		if e.HeartRateBPM > 0 {
			cfg.HeartRateBPM = e.HeartRateBPM
		}
		if e.RespHz > 0 {
			cfg.RespHz = e.RespHz
		}
		w, _ := synth.Generate(cfg)
		in.Signal = &w
	default:
		return in, hrverr.InvalidParameter("dataset.Entry", "unknown kind %q", e.Kind)
	}
	return in, nil
}
// #endregion load

// #region scan
// Scan builds inputs from every file in dir: *.rr files are RR lists, *.ann
// files are annotations at fs, and *.csv / *.txt files are signals at fs.
// Record IDs are file names without extension, in lexical order.
func Scan(dir string, fs float64) ([]pipeline.Input, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan dataset: %w", err)
	}
	var recs []Entry
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		ext := strings.ToLower(filepath.Ext(name))
		e := Entry{ID: strings.TrimSuffix(name, filepath.Ext(name)), Path: name, SampleRate: fs}
		switch ext {
		case ".rr":
			e.Kind = KindRR
		case ".ann":
			e.Kind = KindAnnotations
		case ".csv", ".txt":
			e.Kind = KindSignal
		default:
			continue
		}
		recs = append(recs, e)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
	m := Manifest{Name: filepath.Base(dir), Records: recs, dir: dir}
	return m.Inputs()
}
// #endregion scan
