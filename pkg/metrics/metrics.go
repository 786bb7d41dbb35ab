// Package metrics tracks a conversion job with Prometheus collectors.
//
// Every job owns its own registry, so several jobs can run in one process
// without sharing counters:
//
//	m := metrics.New(prometheus.NewRegistry())
//	m.RowsWritten.Add(float64(b.NumRows))
//
//	timer := metrics.NewTimer(metrics.StageWrite)
//	err := w.Append(b)
//	m.ObserveStage(timer)
//
// The registry can be exposed over HTTP with Serve.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "parq"

// Stage labels for StageLatency.
const (
	StageEnumerate = "enumerate"
	StageRead      = "read"
	StageCoerce    = "coerce"
	StageReconcile = "reconcile"
	StageWrite     = "write"
	StageFinalize  = "finalize"
	StagePublish   = "publish"
)

// File outcome labels for FilesProcessed.
const (
	FileConverted = "converted"
	FileEmpty     = "empty"
	FileSkipped   = "skipped"
)

// Metrics holds the collectors of one job.
type Metrics struct {
	Registry *prometheus.Registry

	FilesSeen      prometheus.Counter
	FilesProcessed *prometheus.CounterVec // outcome
	RowsRead       prometheus.Counter
	RowsWritten    prometheus.Counter
	MalformedRows  prometheus.Counter
	BatchesWritten prometheus.Counter
	BytesRead      prometheus.Counter
	ValuesNulled   *prometheus.CounterVec // stage
	StageLatency   *prometheus.HistogramVec
	Throughput     prometheus.Gauge
	PeakRSS        prometheus.Gauge
}

// New registers the job collectors on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		FilesSeen: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "files_seen_total",
			Help:      "Candidate input files found by the enumerator",
		}),
		FilesProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "files_processed_total",
			Help:      "Input files by outcome",
		}, []string{"outcome"}),
		RowsRead: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rows_read_total",
			Help:      "Rows parsed from input files",
		}),
		RowsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rows_written_total",
			Help:      "Rows appended to output files",
		}),
		MalformedRows: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "malformed_rows_total",
			Help:      "Rows skipped by the malformed row policy",
		}),
		BatchesWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "batches_written_total",
			Help:      "Row batches appended to output files",
		}),
		BytesRead: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "input_bytes_read_total",
			Help:      "Compressed input bytes consumed",
		}),
		ValuesNulled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "values_nulled_total",
			Help:      "Values replaced by null during coercion or reconciliation",
		}, []string{"stage"}),
		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "stage_latency_seconds",
			Help:      "Time spent per stage and batch",
			Buckets:   []float64{1e-5, 1e-4, 1e-3, 1e-2, 0.1, 1, 10},
		}, []string{"stage"}),
		Throughput: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "throughput_rows_per_second",
			Help:      "Rows written per second over the last file",
		}),
		PeakRSS: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "peak_rss_bytes",
			Help:      "Highest resident set size sampled during the job",
		}),
	}
}

// ObserveStage records the time elapsed since t started under t's stage name.
func (m *Metrics) ObserveStage(t *Timer) time.Duration {
	d := t.Stop()
	m.StageLatency.WithLabelValues(t.name).Observe(d.Seconds())
	return d
}

// Timer measures one stage.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Stop returns the elapsed duration since creation. It can be called repeatedly.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker turns row counts into a rows-per-second gauge.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64
	lastReset time.Time
	gauge     prometheus.Gauge
}

// NewThroughputTracker reports into gauge.
func NewThroughputTracker(gauge prometheus.Gauge) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		gauge:     gauge,
	}
}

// Increment adds n rows.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset computes rows per second since the last reset, publishes it to
// the gauge and starts a new window.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}
	throughput := float64(t.count) / elapsed

	t.count = 0
	t.lastReset = time.Now()
	if t.gauge != nil {
		t.gauge.Set(throughput)
	}
	return throughput
}
