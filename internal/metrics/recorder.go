// Package metrics counts pipeline outcomes and exports them as a Prometheus
// textfile after each run.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "yt_auto_saver"

// Recorder methods are safe to call on a nil receiver.
type Recorder struct {
	registry *prometheus.Registry

	triaged       *prometheus.CounterVec
	entries       *prometheus.CounterVec
	attempts      *prometheus.CounterVec
	downloadTime  *prometheus.HistogramVec
	placedBytes   prometheus.Counter
	scratchClears prometheus.Counter
	lastRun       prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}
	r.triaged = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "triaged_items_total",
		Help:      "Items seen in shallow listings by triage decision.",
	}, []string{"decision"})
	r.entries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "entries_total",
		Help:      "Entries finished by outcome.",
	}, []string{"outcome"})
	r.attempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "download_attempts_total",
		Help:      "Engine download attempts by profile and result.",
	}, []string{"profile", "result"})
	r.downloadTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "download_duration_seconds",
		Help:      "Wall time of successful downloads per profile.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"profile"})
	r.placedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "placed_bytes_total",
		Help:      "Bytes moved into the destination directory.",
	})
	r.scratchClears = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scratch_clears_total",
		Help:      "Scratch directory clears after failed attempts.",
	})
	r.lastRun = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the last run finished.",
	})
	r.registry.MustRegister(r.triaged, r.entries, r.attempts, r.downloadTime, r.placedBytes, r.scratchClears, r.lastRun)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) Triaged(decision string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.triaged.WithLabelValues(decision).Add(float64(n))
}

func (r *Recorder) Entry(outcome string) {
	if r == nil {
		return
	}
	r.entries.WithLabelValues(outcome).Inc()
}

func (r *Recorder) Attempt(profile, result string) {
	if r == nil {
		return
	}
	r.attempts.WithLabelValues(profile, result).Inc()
}

func (r *Recorder) Downloaded(profile string, took time.Duration, bytes int64) {
	if r == nil {
		return
	}
	r.downloadTime.WithLabelValues(profile).Observe(took.Seconds())
	if bytes > 0 {
		r.placedBytes.Add(float64(bytes))
	}
}

func (r *Recorder) ScratchCleared() {
	if r == nil {
		return
	}
	r.scratchClears.Inc()
}

// WriteTextfile stamps the run end time and writes every metric to path in
// the node_exporter textfile format.
func (r *Recorder) WriteTextfile(path string, now time.Time) error {
	if r == nil || path == "" {
		return nil
	}
	r.lastRun.Set(float64(now.Unix()))
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile %s: %w", path, err)
	}
	return nil
}
