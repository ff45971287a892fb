package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reelforge/internal/logger"
)

// Collector gathers pipeline and credential-pool metrics for Prometheus.
type Collector struct {
	jobsEnqueued  prometheus.Counter
	jobsCompleted prometheus.Counter
	jobsFailed    prometheus.Counter
	jobDuration   prometheus.Histogram

	fetchAttempts *prometheus.CounterVec

	credentialsAvailable prometheus.Gauge
	credentialsBlocked   prometheus.Gauge

	log *logger.Logger
}

func NewCollector() *Collector {
	return &Collector{
		jobsEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reelforge_jobs_enqueued_total",
			Help: "Total number of video jobs enqueued.",
		}),
		jobsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reelforge_jobs_completed_total",
			Help: "Total number of video jobs that reached Completed.",
		}),
		jobsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reelforge_jobs_failed_total",
			Help: "Total number of video jobs that reached Failed.",
		}),
		jobDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "reelforge_job_duration_seconds",
			Help:    "End-to-end pipeline duration per job.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		fetchAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "reelforge_fetch_attempts_total",
			Help: "Credential-backed fetch attempts by outcome.",
		}, []string{"outcome"}),
		credentialsAvailable: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "reelforge_credentials_available",
			Help: "Credentials currently selectable by the pool.",
		}),
		credentialsBlocked: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "reelforge_credentials_blocked",
			Help: "Credentials currently quarantined by the pool.",
		}),
		log: logger.New("Metrics"),
	}
}

func (c *Collector) RecordEnqueue()  { c.jobsEnqueued.Inc() }
func (c *Collector) RecordComplete() { c.jobsCompleted.Inc() }
func (c *Collector) RecordFailure()  { c.jobsFailed.Inc() }

func (c *Collector) ObserveJobDuration(d time.Duration) {
	c.jobDuration.Observe(d.Seconds())
}

// CredentialReleased satisfies credential.Observer.
func (c *Collector) CredentialReleased(name string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	c.fetchAttempts.WithLabelValues(outcome).Inc()
}

// PoolState satisfies credential.Observer.
func (c *Collector) PoolState(available, blocked int) {
	c.credentialsAvailable.Set(float64(available))
	c.credentialsBlocked.Set(float64(blocked))
}

// Serve exposes /metrics on its own listener so scrapes never contend with
// the API server.
func (c *Collector) Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			c.log.LogErrorf("metrics listener stopped: %v", err)
		}
	}()
	c.log.LogInfof("metrics exposed at %s/metrics", addr)
}
