package jobmetrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	occurrences *prometheus.CounterVec
	drift       *prometheus.GaugeVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddOccurrences counts recurring schedule runs by outcome.
func (m *Metrics) AddOccurrences(success, failed int) {
	if m == nil {
		return
	}
	if success > 0 {
		m.occurrences.WithLabelValues("success").Add(float64(success))
	}
	if failed > 0 {
		m.occurrences.WithLabelValues("error").Add(float64(failed))
	}
}

// SetBalanceDrift records how many accounts of a tenant drifted from the ledger.
func (m *Metrics) SetBalanceDrift(tenantID int64, accounts int) {
	if m == nil {
		return
	}
	m.drift.WithLabelValues(strconv.FormatInt(tenantID, 10)).Set(float64(accounts))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	occurrences := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_recurring_occurrences_total",
		Help: "Recurring journal occurrences processed, by outcome.",
	}, []string{"outcome"})
	drift := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "odyssey_ledger_balance_drift_accounts",
		Help: "Accounts whose cached balance differs from posted lines, per tenant.",
	}, []string{"tenant"})
	registerer.MustRegister(runs, failures, duration, occurrences, drift)
	return &Metrics{runs: runs, failures: failures, duration: duration, occurrences: occurrences, drift: drift}
}
