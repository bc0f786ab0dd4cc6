// Package metrics exposes run progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Segment outcomes.
const (
	SegmentOK            = "ok"
	SegmentFailed        = "failed"
	SegmentSilent        = "silent"
	SegmentNotDispatched = "not_dispatched"
)

// Metrics holds the collectors of one process. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	tasks          *prometheus.CounterVec
	segments       *prometheus.CounterVec
	engineInFlight prometheus.Gauge
	engineSeconds  prometheus.Histogram
	taskSeconds    prometheus.Histogram
	runs           prometheus.Counter
}

// New registers the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		tasks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gpnscribe_tasks_total",
			Help: "Transcription tasks by terminal state",
		}, []string{"state"}),
		segments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gpnscribe_segments_total",
			Help: "Segment jobs by outcome",
		}, []string{"outcome"}),
		engineInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "gpnscribe_segments_in_flight",
			Help: "Segment jobs currently executing",
		}),
		engineSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gpnscribe_segment_duration_seconds",
			Help:    "Wall time of one segment job",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		taskSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gpnscribe_task_duration_seconds",
			Help:    "Wall time of one file",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}),
		runs: f.NewCounter(prometheus.CounterOpts{
			Name: "gpnscribe_runs_total",
			Help: "Inventory passes started",
		}),
	}
}

func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.runs.Inc()
}

func (m *Metrics) TaskFinished(state string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(state).Inc()
	m.taskSeconds.Observe(elapsed.Seconds())
}

func (m *Metrics) SegmentStarted() {
	if m == nil {
		return
	}
	m.engineInFlight.Inc()
}

func (m *Metrics) SegmentFinished(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.engineInFlight.Dec()
	m.segments.WithLabelValues(outcome).Inc()
	m.engineSeconds.Observe(elapsed.Seconds())
}

// SegmentsNotDispatched counts jobs dropped by cancellation.
func (m *Metrics) SegmentsNotDispatched(n int) {
	if m == nil || n == 0 {
		return
	}
	m.segments.WithLabelValues(SegmentNotDispatched).Add(float64(n))
}

// TasksCounter returns the counter for one task state. On a nil *Metrics it
// returns an unregistered counter.
func (m *Metrics) TasksCounter(state string) prometheus.Counter {
	if m == nil {
		return detached()
	}
	return m.tasks.WithLabelValues(state)
}

// SegmentsCounter returns the counter for one segment outcome. On a nil
// *Metrics it returns an unregistered counter.
func (m *Metrics) SegmentsCounter(outcome string) prometheus.Counter {
	if m == nil {
		return detached()
	}
	return m.segments.WithLabelValues(outcome)
}

func detached() prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: "gpnscribe_detached_total", Help: "Not exported"})
}

// Serve exposes /metrics on addr until ctx is done. A nil *Metrics serves
// nothing and returns immediately.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *logrus.Logger) error {
	if m == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
	logger.Infof("metrics listening on http://%s/metrics", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
