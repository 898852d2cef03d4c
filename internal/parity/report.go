package parity

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/danielpatrickdp/hrv-parity/internal/hrv"
)

// #region report
// WriteText renders a per-record comparison table followed by the summary.
// When verbose is false only failing comparisons are listed.
func WriteText(w io.Writer, rep Report, verbose bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "reference: %s\tcandidate: %s\n\n", rep.Reference, rep.Candidate)

	for _, r := range rep.Records {
		fmt.Fprintf(tw, "[%s] %s\t%s\n", r.Status, r.ID, r.Reason)
		if len(r.Comparisons) == 0 {
			continue
		}
		fmt.Fprintln(tw, "  metric\treference\tcandidate\tdelta\trel%\ttolerance\toutcome")
		for _, c := range r.Comparisons {
			if !verbose && c.Outcome != Fail {
				continue
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				c.Metric, c.Reference, c.Candidate, c.Delta, c.RelDeltaPct, formatTolerance(c.Tolerance), c.Outcome)
		}
	}

	s := rep.Summary
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "records\t%d\n", s.Records)
	fmt.Fprintf(tw, "passed\t%d\n", s.Passed)
	fmt.Fprintf(tw, "tolerance failures\t%d\n", s.Failed)
	fmt.Fprintf(tw, "errors\t%d\n", s.Errored)
	fmt.Fprintf(tw, "skipped\t%d\n", s.Skipped)
	fmt.Fprintf(tw, "comparisons\tpass=%d fail=%d skip=%d\n", s.ComparePassed, s.CompareFailed, s.CompareSkip)
	fmt.Fprintf(tw, "pass rate\t%.2f%%\n", s.PassRate)
	fmt.Fprintf(tw, "verdict\t%s\n", s.Verdict)
	return tw.Flush()
}

// WriteMetricTable renders per-metric statistics in report order.
func WriteMetricTable(w io.Writer, s Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "metric\tpass\tfail\tskip\tmax |delta|\tmax |rel%|")
	for _, m := range append(append([]hrv.Metric{}, hrv.CoreMetrics...), hrv.ExtraMetrics...) {
		st, ok := s.PerMetric[m]
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.6g\t%.4g\n", m, st.Pass, st.Fail, st.Skip, st.MaxAbsDelta, st.MaxRelDelta)
	}
	return tw.Flush()
}

// WriteJSON encodes the full report.
func WriteJSON(w io.Writer, rep Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

func formatTolerance(t Tolerance) string {
	if t.Kind == Percent {
		return fmt.Sprintf("±%g%%", t.Threshold)
	}
	return fmt.Sprintf("±%g", t.Threshold)
}
// #endregion report
