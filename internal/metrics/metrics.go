package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Publishing
	publishOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postflow_publish_outcomes_total",
			Help: "Per-target publish outcomes by platform, status and error kind.",
		},
		[]string{"platform", "status", "error_kind"},
	)
	publishAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "postflow_publish_attempt_duration_seconds",
			Help:    "Duration of a single adapter publish call.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"platform", "result"},
	)
	postsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postflow_posts_finished_total",
			Help: "Posts that reached a terminal status.",
		},
		[]string{"status"},
	)

	// Credentials
	credentialRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postflow_credential_refreshes_total",
			Help: "Credential refresh attempts by platform, trigger and result.",
		},
		[]string{"platform", "trigger", "result"},
	)

	// Queue
	deadLetters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postflow_dead_letters_total",
			Help: "Work items that exhausted their retry budget.",
		},
		[]string{"kind"},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			publishOutcomes,
			publishAttempts,
			postsFinished,
			credentialRefreshes,
			deadLetters,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func IncPublishOutcome(platform, status, errorKind string) {
	publishOutcomes.WithLabelValues(platform, status, errorKind).Inc()
}

func ObservePublishAttempt(platform, result string, d time.Duration) {
	publishAttempts.WithLabelValues(platform, result).Observe(d.Seconds())
}

func IncPostFinished(status string) { postsFinished.WithLabelValues(status).Inc() }

func IncCredentialRefresh(platform, trigger, result string) {
	credentialRefreshes.WithLabelValues(platform, trigger, result).Inc()
}

func IncDeadLetter(kind string) { deadLetters.WithLabelValues(kind).Inc() }
