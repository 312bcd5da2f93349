package monitoring

import (
	"net/http"
	"time"

	"github.com/blocklens/blocklens/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type jobPromMetrics struct {
	submittedCount *prometheus.CounterVec
	inflight       prometheus.Gauge
	duration       prometheus.Histogram
}

var metrics = newJobPromMetrics()

func newJobPromMetrics() *jobPromMetrics {
	return &jobPromMetrics{
		submittedCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blocklens_jobs_total",
				Help: "Verification jobs by terminal outcome",
			},
			[]string{"outcome"},
		),
		inflight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "blocklens_jobs_inflight",
				Help: "Verification jobs currently running",
			},
		),
		duration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "blocklens_job_duration_seconds",
				Help:    "Wall clock duration of one verification run",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
			},
		),
	}
}

func JobStarted() {
	metrics.inflight.Inc()
}

// JobFinished records a terminal marker. The outcome label collapses the
// marker detail: ok, error (any exit code or signal) or spawn_error.
func JobFinished(status string, elapsed time.Duration) {
	metrics.inflight.Dec()
	metrics.duration.Observe(elapsed.Seconds())
	metrics.submittedCount.WithLabelValues(outcome(status)).Inc()
}

func outcome(status string) string {
	switch status {
	case model.StatusOK:
		return "ok"
	case model.StatusError:
		return "spawn_error"
	default:
		return "error"
	}
}

// Handler serves the default registry, mounted by the web server.
func Handler() http.Handler {
	return promhttp.Handler()
}
