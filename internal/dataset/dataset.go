// Package dataset turns files on disk into pipeline inputs: raw signal files,
// RR interval lists, beat annotations and JSON manifests that mix them.
package dataset

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/danielpatrickdp/hrv-parity/internal/hrverr"
	"github.com/danielpatrickdp/hrv-parity/internal/signal"
)

// #region parse
// ParseNumbers reads every number in data. Values may be separated by commas,
// semicolons, tabs, spaces or newlines. Lines starting with '#' are ignored,
// as is a first data line that does not parse (a header).
func ParseNumbers(data string) ([]float64, error) {
	var out []float64
	sc := bufio.NewScanner(strings.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line, rows := 0, 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		rows++
		fields := strings.FieldsFunc(text, func(r rune) bool {
			return r == ',' || r == ';' || r == '\t' || r == ' '
		})
		for _, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				if rows == 1 && len(out) == 0 {
					break
				}
				return nil, hrverr.InvalidParameter("dataset.ParseNumbers", "line %d: %q is not a number", line, f)
			}
			out = append(out, v)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan numbers: %w", err)
	}
	return out, nil
}

func readNumbers(path string) ([]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	vals, err := ParseNumbers(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return vals, nil
}
// #endregion parse

// #region loaders
// LoadSignal reads a delimited numeric file as a waveform sampled at fs.
func LoadSignal(path string, fs float64) (signal.Waveform, error) {
	vals, err := readNumbers(path)
	if err != nil {
		return signal.Waveform{}, err
	}
	w := signal.Waveform{Samples: vals, SampleRate: fs}
	if err := w.Validate(); err != nil {
		return signal.Waveform{}, fmt.Errorf("load signal %s: %w", path, err)
	}
	return w, nil
}

// LoadRR reads RR intervals in milliseconds.
func LoadRR(path string) ([]float64, error) {
	return readNumbers(path)
}

// LoadAnnotations reads beat positions given as sample indices and converts
// them to RR intervals in milliseconds.
func LoadAnnotations(path string, fs float64) ([]float64, error) {
	if fs <= 0 {
		return nil, hrverr.InvalidParameter("dataset.LoadAnnotations", "sample rate %v must be positive", fs)
	}
	idx, err := readNumbers(path)
	if err != nil {
		return nil, err
	}
	return AnnotationsToRR(idx, fs)
}

// AnnotationsToRR converts increasing beat sample indices to intervals in ms.
func AnnotationsToRR(indices []float64, fs float64) ([]float64, error) {
	if len(indices) < 2 {
		return nil, hrverr.InsufficientData("dataset.AnnotationsToRR", "need at least 2 annotations, got %d", len(indices))
	}
	out := make([]float64, 0, len(indices)-1)
	for i := 1; i < len(indices); i++ {
		d := indices[i] - indices[i-1]
		if d <= 0 {
			return nil, hrverr.InvalidParameter("dataset.AnnotationsToRR", "annotation %d (%v) does not follow %v", i, indices[i], indices[i-1])
		}
		out = append(out, 1000*d/fs)
	}
	return out, nil
}
// #endregion loaders
