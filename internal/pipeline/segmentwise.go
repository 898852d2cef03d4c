package pipeline

import (
	"context"
	"math"

	"github.com/danielpatrickdp/hrv-parity/internal/hrverr"
	"github.com/danielpatrickdp/hrv-parity/internal/signal"
)

// #region segmentwise
// SegmentResult is the analysis of one window of a longer recording.
type SegmentResult struct {
	Index    int     `json:"index"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Result   Result  `json:"result"`
	Err      error   `json:"-"`
}

// AnalyzeSegmentwise splits w into windows of widthSec seconds overlapping by
// the given fraction and analyzes each with p. Windows shorter than minSec at
// the end of the recording are dropped. A failing window is recorded in its
// SegmentResult and does not stop the others.
func AnalyzeSegmentwise(ctx context.Context, p Pipeline, w signal.Waveform, widthSec, overlap, minSec float64) ([]SegmentResult, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if !(widthSec > 0) || overlap < 0 || overlap >= 1 || minSec < 0 {
		return nil, hrverr.InvalidParameter("pipeline.AnalyzeSegmentwise",
			"width %g s, overlap %g, min %g s out of range", widthSec, overlap, minSec)
	}
	width := int(math.Round(widthSec * w.SampleRate))
	step := int(math.Round(widthSec * (1 - overlap) * w.SampleRate))
	if width < 1 || step < 1 {
		return nil, hrverr.InvalidParameter("pipeline.AnalyzeSegmentwise", "window shorter than one sample")
	}

	var out []SegmentResult
	n := w.Len()
	for start := 0; start < n; start += step {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		end := min(start+width, n)
		if float64(end-start)/w.SampleRate < minSec {
			break
		}
		seg := signal.New(w.Samples[start:end], w.SampleRate)
		res, err := p.AnalyzeSignal(ctx, seg)
		out = append(out, SegmentResult{
			Index:    len(out),
			StartSec: float64(start) / w.SampleRate,
			EndSec:   float64(end) / w.SampleRate,
			Result:   res,
			Err:      err,
		})
		if end == n {
			break
		}
	}
	return out, nil
}
// #endregion segmentwise
