// Package metrics exposes Prometheus instrumentation for harness runs.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Namespace = "difftest"

// Stage names used as the "stage" label.
const (
	StageGenerate = "generate"
	StageCompile  = "compile"
	StageRun      = "run"
)

// Metrics records test, attempt and stage timing metrics on a registry.
type Metrics struct {
	tests    *prometheus.CounterVec
	attempts *prometheus.CounterVec
	retries  prometheus.Counter
	stages   *prometheus.HistogramVec
}

// New registers the harness metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		tests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "tests_total",
			Help:      "Finalised tests by outcome",
		}, []string{"outcome"}),
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "attempts_total",
			Help:      "Pipeline attempts by result",
		}, []string{"result"}),
		retries: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "retries_total",
			Help:      "Attempts discarded because a test program timed out",
		}),
		stages: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "stage_seconds",
			Help:      "Time spent per pipeline stage",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"stage"}),
	}
}

// RecordTest counts a finalised test.
func (m *Metrics) RecordTest(outcome string) {
	m.tests.WithLabelValues(outcome).Inc()
}

// RecordAttempt counts one pipeline attempt.
func (m *Metrics) RecordAttempt(result string) {
	m.attempts.WithLabelValues(result).Inc()
}

// RecordRetry counts a timed-out attempt.
func (m *Metrics) RecordRetry() {
	m.retries.Inc()
}

// ObserveStage records the duration of a pipeline stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stages.WithLabelValues(stage).Observe(d.Seconds())
}

// Serve exposes the registry on addr until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
