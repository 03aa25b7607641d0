// Package metrics records per-run counters for searches and downloads and
// can dump them in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"path/filepath"
	"time"

	"go-stockmedia-download/internal/helpers"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stockmedia"

// Recorder owns a private registry so several runs in one process never
// collide. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	searchesTotal    *prometheus.CounterVec
	assetsFound      *prometheus.CounterVec
	searchDuration   *prometheus.HistogramVec
	downloadsTotal   *prometheus.CounterVec
	downloadBytes    *prometheus.CounterVec
	downloadDuration *prometheus.HistogramVec
	inFlight         prometheus.Gauge
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		searchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Adapter searches by source and status.",
		}, []string{"source", "status"}),
		assetsFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assets_found_total",
			Help:      "Assets returned by each source.",
		}, []string{"source"}),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Adapter search latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		downloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Download attempts by source, kind and status.",
		}, []string{"source", "kind", "status"}),
		downloadBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_bytes_total",
			Help:      "Bytes written for successful downloads.",
		}, []string{"source", "kind"}),
		downloadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Download latency.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"kind"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "downloads_in_flight",
			Help:      "Downloads currently streaming.",
		}),
	}
	r.registry.MustRegister(
		r.searchesTotal,
		r.assetsFound,
		r.searchDuration,
		r.downloadsTotal,
		r.downloadBytes,
		r.downloadDuration,
		r.inFlight,
	)
	return r
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveSearch records one adapter call. A panicked adapter passes failed=true.
func (r *Recorder) ObserveSearch(source string, found int, elapsed time.Duration, failed bool) {
	if r == nil {
		return
	}
	status := "ok"
	if failed {
		status = "panic"
	} else if found == 0 {
		status = "empty"
	}
	r.searchesTotal.WithLabelValues(source, status).Inc()
	r.assetsFound.WithLabelValues(source).Add(float64(found))
	r.searchDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

// DownloadStarted and DownloadFinished bracket one download.
func (r *Recorder) DownloadStarted() {
	if r == nil {
		return
	}
	r.inFlight.Inc()
}

func (r *Recorder) DownloadFinished(source, kind string, ok bool, bytes int64, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.inFlight.Dec()
	status := "failed"
	if ok {
		status = "ok"
		r.downloadBytes.WithLabelValues(source, kind).Add(float64(bytes))
	}
	r.downloadsTotal.WithLabelValues(source, kind, status).Inc()
	r.downloadDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// WriteTextfile gathers the registry into path, creating parent directories.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if dir := filepath.Dir(path); !helpers.CheckAndMakeDir(dir) {
		return fmt.Errorf("failed to create metrics directory %s", dir)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	return nil
}
