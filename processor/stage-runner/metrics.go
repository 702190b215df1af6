package stagerunner

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics holds the Prometheus instruments for the stage runner.
type metrics struct {
	registry *prometheus.Registry

	documentsProcessed *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
	documentDuration   prometheus.Histogram
	inFlight           prometheus.Gauge
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &metrics{
		registry: registry,
		documentsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "policypipe",
			Subsystem: "stage_runner",
			Name:      "documents_processed_total",
			Help:      "Documents processed, by outcome.",
		}, []string{"outcome"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "policypipe",
			Subsystem: "stage_runner",
			Name:      "stage_duration_seconds",
			Help:      "Wall time per pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"stage"}),
		documentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "policypipe",
			Subsystem: "stage_runner",
			Name:      "document_duration_seconds",
			Help:      "End-to-end wall time per document run.",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 10),
		}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "policypipe",
			Subsystem: "stage_runner",
			Name:      "documents_in_flight",
			Help:      "Documents currently being processed.",
		}),
	}
}

// serve starts the metrics HTTP endpoint and returns a shutdown function.
func (m *metrics) serve(addr string, logger *slog.Logger) func() {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "addr", addr, "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
