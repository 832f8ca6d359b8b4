package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sync holds the collectors for one run. Each instance owns its registry so
// concurrent runs (and tests) never share counters.
type Sync struct {
	Registry *prometheus.Registry

	Attempts        *prometheus.CounterVec
	AttemptDuration *prometheus.HistogramVec
	Repositories    *prometheus.CounterVec
	Backoffs        prometheus.Counter
	CredentialWait  prometheus.Histogram
	LastRunStart    prometheus.Gauge
	LastRunEnd      prometheus.Gauge
}

func NewSync() *Sync {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Sync{
		Registry: reg,
		Attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reposync_attempts_total",
				Help: "Total number of sync attempts by operation and outcome",
			},
			[]string{"operation", "outcome", "kind"},
		),
		AttemptDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reposync_attempt_duration_seconds",
				Help:    "Sync attempt duration in seconds",
				Buckets: []float64{0.1, 0.2, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"operation"},
		),
		Repositories: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reposync_repositories_total",
				Help: "Repositories processed by final status",
			},
			[]string{"status"},
		),
		Backoffs: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "reposync_backoffs_total",
				Help: "Number of times a repository waited before retrying",
			},
		),
		CredentialWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reposync_credential_resolve_seconds",
				Help:    "Time spent resolving credentials per repository",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5},
			},
		),
		LastRunStart: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "reposync_last_run_start_timestamp",
				Help: "Unix timestamp of when the last run started",
			},
		),
		LastRunEnd: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "reposync_last_run_end_timestamp",
				Help: "Unix timestamp of when the last run ended",
			},
		),
	}
}

func (s *Sync) ObserveAttempt(operation, outcome, kind string, d time.Duration) {
	if s == nil {
		return
	}
	s.Attempts.WithLabelValues(operation, outcome, kind).Inc()
	s.AttemptDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (s *Sync) ObserveRepository(status string) {
	if s == nil {
		return
	}
	s.Repositories.WithLabelValues(status).Inc()
}

func (s *Sync) ObserveBackoff() {
	if s == nil {
		return
	}
	s.Backoffs.Inc()
}

func (s *Sync) ObserveCredential(d time.Duration) {
	if s == nil {
		return
	}
	s.CredentialWait.Observe(d.Seconds())
}

func (s *Sync) RunStarted(at time.Time) {
	if s == nil {
		return
	}
	s.LastRunStart.Set(float64(at.Unix()))
}

func (s *Sync) RunFinished(at time.Time) {
	if s == nil {
		return
	}
	s.LastRunEnd.Set(float64(at.Unix()))
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (s *Sync) WriteTextfile(path string) error {
	if s == nil {
		return fmt.Errorf("metrics: nil collector set")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, s.Registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
