package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/danielpatrickdp/hrv-parity/internal/hrv"
	"github.com/danielpatrickdp/hrv-parity/internal/parity"
)

func TestCollector_Records(t *testing.T) {
	c := New(nil)
	c.ObserveRecord(parity.RecordResult{
		Status:   parity.RecordFailed,
		Duration: 20 * time.Millisecond,
		Comparisons: []parity.Comparison{
			{Metric: hrv.BPM, Outcome: parity.Fail},
			{Metric: hrv.SDNN, Outcome: parity.Pass},
		},
	})
	c.ObserveRecord(parity.RecordResult{Status: parity.RecordSkipped})

	if got := testutil.ToFloat64(c.records.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed records: expected 1, got %g", got)
	}
	if got := testutil.ToFloat64(c.records.WithLabelValues("skipped")); got != 1 {
		t.Errorf("skipped records: expected 1, got %g", got)
	}
	if got := testutil.ToFloat64(c.comparisons.WithLabelValues("bpm", "FAIL")); got != 1 {
		t.Errorf("bpm FAIL: expected 1, got %g", got)
	}
	if n := testutil.CollectAndCount(c.comparisons); n != 2 {
		t.Errorf("expected 2 comparison series, got %d", n)
	}
}

func TestCollector_Summary(t *testing.T) {
	c := New(nil)
	c.ObserveSummary(parity.Summary{
		PassRate:  90,
		Verdict:   parity.Partial,
		PerMetric: map[hrv.Metric]*parity.MetricStats{hrv.BPM: {MaxAbsDelta: 3.5}},
	})
	if got := testutil.ToFloat64(c.passRate); got != 90 {
		t.Errorf("pass rate: expected 90, got %g", got)
	}
	if got := testutil.ToFloat64(c.verdict.WithLabelValues("partial")); got != 1 {
		t.Errorf("partial verdict gauge: expected 1, got %g", got)
	}
	if got := testutil.ToFloat64(c.verdict.WithLabelValues("accepted")); got != 0 {
		t.Errorf("accepted verdict gauge: expected 0, got %g", got)
	}
	if got := testutil.ToFloat64(c.maxDelta.WithLabelValues("bpm")); got != 3.5 {
		t.Errorf("bpm max delta: expected 3.5, got %g", got)
	}
}

func TestCollector_WriteTextfile(t *testing.T) {
	c := New(nil)
	c.ObserveSummary(parity.Summary{PassRate: 97.5, Verdict: parity.Accepted})
	path := filepath.Join(t.TempDir(), "parity.prom")
	if err := c.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hrv_parity_pass_rate_percent 97.5") {
		t.Errorf("textfile missing pass rate:\n%s", data)
	}
}

func TestUnaryServerInterceptor(t *testing.T) {
	c := New(nil)
	intercept := c.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/hrv.v1.Analyzer/Analyze"}

	intercept(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return nil, nil
	})
	intercept(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.FailedPrecondition, "short")
	})

	if n := testutil.CollectAndCount(c.rpcDuration); n != 2 {
		t.Fatalf("expected OK and FailedPrecondition series, got %d", n)
	}
}
