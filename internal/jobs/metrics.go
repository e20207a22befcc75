package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs and the
// maintenance procedures run from the ctl binary.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	fetched  *prometheus.CounterVec
	backfill *prometheus.CounterVec
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

// ObserveImageFetch counts an image acquisition attempt by outcome
// ("stored", "failed", "skipped").
func (m *Metrics) ObserveImageFetch(outcome string) {
	if m == nil || outcome == "" {
		return
	}
	m.fetched.WithLabelValues(outcome).Inc()
}

// AddBackfillRows records rows touched by a default board backfill step.
func (m *Metrics) AddBackfillRows(direction, step string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.backfill.WithLabelValues(direction, step).Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pinboard_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pinboard_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pinboard_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	fetched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pinboard_image_fetches_total",
		Help: "Image acquisitions grouped by outcome.",
	}, []string{"outcome"})
	backfill := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pinboard_backfill_rows_total",
		Help: "Rows touched by the default board backfill grouped by direction and step.",
	}, []string{"direction", "step"})
	registerer.MustRegister(runs, failures, duration, fetched, backfill)
	return &Metrics{runs: runs, failures: failures, duration: duration, fetched: fetched, backfill: backfill}
}
