// Package metrics records triage and agent service metrics with Prometheus.
// The program is a one-shot CLI, so metrics live in a private registry and are
// exported to a node-exporter textfile instead of being scraped.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the triage metrics. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	pollAttempts    prometheus.Counter
	runsTotal       *prometheus.CounterVec
	runDuration     prometheus.Histogram
	cleanupFailures *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
}

// New creates a Recorder backed by its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_api_requests_total",
				Help: "Agent service requests by operation and status",
			},
			[]string{"op", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "triage_api_request_duration_seconds",
				Help:    "Duration of agent service requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		pollAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "triage_poll_attempts_total",
			Help: "Run status polls issued",
		}),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_runs_total",
				Help: "Finished triage runs by outcome",
			},
			[]string{"outcome"},
		),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "triage_run_duration_seconds",
			Help:    "Time from run creation until it stopped being pending",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}),
		cleanupFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_cleanup_failures_total",
				Help: "Remote resources that could not be deleted, by kind",
			},
			[]string{"kind"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "triage_tokens_total",
				Help: "Tokens consumed by triage runs",
			},
			[]string{"type"},
		),
	}
}

// ObserveRequest records one agent service call.
func (r *Recorder) ObserveRequest(op, status string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.requestsTotal.WithLabelValues(op, status).Inc()
	r.requestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// IncPollAttempt counts one GetRun poll.
func (r *Recorder) IncPollAttempt() {
	if r == nil {
		return
	}
	r.pollAttempts.Inc()
}

// ObserveRun records how a run ended and how long it took.
func (r *Recorder) ObserveRun(outcome string, elapsed time.Duration, promptTokens, completionTokens int) {
	if r == nil {
		return
	}
	r.runsTotal.WithLabelValues(outcome).Inc()
	r.runDuration.Observe(elapsed.Seconds())
	r.tokensTotal.WithLabelValues("prompt").Add(float64(promptTokens))
	r.tokensTotal.WithLabelValues("completion").Add(float64(completionTokens))
}

// IncCleanupFailure counts a resource left behind.
func (r *Recorder) IncCleanupFailure(kind string) {
	if r == nil {
		return
	}
	r.cleanupFailures.WithLabelValues(kind).Inc()
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes all metrics in text exposition format to path,
// atomically, for a node-exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
