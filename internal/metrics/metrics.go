// Package metrics defines the Prometheus instruments for resolution,
// downloads and artifact cleanup. A nil *Metrics records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "tubefetch"

	ModeMetadata = "metadata"
	ModeDownload = "download"
)

// Metrics groups every instrument so tests can use a private registry.
type Metrics struct {
	CacheLookups      *prometheus.CounterVec
	ExtractorAttempts *prometheus.CounterVec
	FetchDuration     *prometheus.HistogramVec
	Downloads         *prometheus.CounterVec
	DownloadBytes     *prometheus.CounterVec
	SweptFiles        *prometheus.CounterVec
	Deliveries        *prometheus.CounterVec
}

// New registers the instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Metadata cache lookups by result",
			},
			[]string{"result"},
		),
		ExtractorAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "extractor",
				Name:      "attempts_total",
				Help:      "Extractor invocations by mode, strategy and outcome",
			},
			[]string{"mode", "strategy", "outcome"},
		),
		FetchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "extractor",
				Name:      "fetch_duration_seconds",
				Help:      "Wall time of a full strategy walk",
				Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 180, 600},
			},
			[]string{"mode"},
		),
		Downloads: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "download",
				Name:      "total",
				Help:      "Download requests by kind and final status",
			},
			[]string{"kind", "status"},
		),
		DownloadBytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "download",
				Name:      "bytes_total",
				Help:      "Bytes of verified artifacts",
			},
			[]string{"kind"},
		),
		SweptFiles: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "artifact",
				Name:      "swept_files_total",
				Help:      "Files handled by the age sweep",
			},
			[]string{"result"},
		),
		Deliveries: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "artifact",
				Name:      "deliveries_total",
				Help:      "Artifact deliveries by status",
			},
			[]string{"status"},
		),
	}
}

// RecordCacheLookup records a metadata cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// RecordAttempt records one extractor invocation.
func (m *Metrics) RecordAttempt(mode, strategy, outcome string) {
	if m == nil {
		return
	}
	m.ExtractorAttempts.WithLabelValues(mode, strategy, outcome).Inc()
}

// RecordFetch records how long a strategy walk took.
func (m *Metrics) RecordFetch(mode string, durationSec float64) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(mode).Observe(durationSec)
}

// RecordDownload records a finished download request.
func (m *Metrics) RecordDownload(kind, status string, bytes int64) {
	if m == nil {
		return
	}
	m.Downloads.WithLabelValues(kind, status).Inc()
	if status == "success" {
		m.DownloadBytes.WithLabelValues(kind).Add(float64(bytes))
	}
}

// RecordSweep records sweep results.
func (m *Metrics) RecordSweep(removed, failed int) {
	if m == nil {
		return
	}
	m.SweptFiles.WithLabelValues("removed").Add(float64(removed))
	m.SweptFiles.WithLabelValues("failed").Add(float64(failed))
}

// RecordDelivery records a finished (or aborted) delivery.
func (m *Metrics) RecordDelivery(status string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(status).Inc()
}
