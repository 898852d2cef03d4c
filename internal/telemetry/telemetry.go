// Package telemetry exports validation progress and analysis latency as
// Prometheus metrics.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/danielpatrickdp/hrv-parity/internal/parity"
)

// #region collector
// Collector implements parity.Observer.
type Collector struct {
	registry *prometheus.Registry

	records     *prometheus.CounterVec
	comparisons *prometheus.CounterVec
	recordTime  prometheus.Histogram
	passRate    prometheus.Gauge
	verdict     *prometheus.GaugeVec
	maxDelta    *prometheus.GaugeVec

	rpcDuration *prometheus.HistogramVec
}

var _ parity.Observer = (*Collector)(nil)

// New registers the collectors on reg, or on a fresh registry when reg is nil.
func New(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Collector{
		registry: reg,
		records: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hrv_parity_records_total",
				Help: "Validated records by status",
			},
			[]string{"status"},
		),
		comparisons: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hrv_parity_comparisons_total",
				Help: "Metric comparisons by metric and outcome",
			},
			[]string{"metric", "outcome"},
		),
		recordTime: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hrv_parity_record_duration_seconds",
				Help:    "Wall time to analyze and compare one record",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 20},
			},
		),
		passRate: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "hrv_parity_pass_rate_percent",
				Help: "Comparison pass rate of the last completed run",
			},
		),
		verdict: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hrv_parity_verdict",
				Help: "1 for the verdict of the last completed run, 0 otherwise",
			},
			[]string{"verdict"},
		),
		maxDelta: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hrv_parity_max_abs_delta",
				Help: "Largest |candidate - reference| per metric in the last run",
			},
			[]string{"metric"},
		),
		rpcDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hrv_analyzer_rpc_duration_seconds",
				Help:    "Analyzer RPC latency by method and status code",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "code"},
		),
	}
}

// Registry returns the registry the collectors live on.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// ObserveRecord counts the record and its comparisons.
func (c *Collector) ObserveRecord(r parity.RecordResult) {
	c.records.WithLabelValues(string(r.Status)).Inc()
	c.recordTime.Observe(r.Duration.Seconds())
	for _, cmp := range r.Comparisons {
		c.comparisons.WithLabelValues(string(cmp.Metric), string(cmp.Outcome)).Inc()
	}
}

// ObserveSummary publishes run-level gauges.
func (c *Collector) ObserveSummary(s parity.Summary) {
	c.passRate.Set(s.PassRate)
	for _, v := range []parity.Verdict{parity.Accepted, parity.Partial, parity.Rejected} {
		val := 0.0
		if v == s.Verdict {
			val = 1
		}
		c.verdict.WithLabelValues(string(v)).Set(val)
	}
	for m, st := range s.PerMetric {
		c.maxDelta.WithLabelValues(string(m)).Set(st.MaxAbsDelta)
	}
}
// #endregion collector

// #region export
// WriteTextfile writes the registry in the node_exporter textfile format.
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Handler serves the registry over HTTP.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// UnaryServerInterceptor records Analyzer RPC latency.
func (c *Collector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		c.rpcDuration.WithLabelValues(info.FullMethod, status.Code(err).String()).Observe(time.Since(start).Seconds())
		return resp, err
	}
}
// #endregion export
