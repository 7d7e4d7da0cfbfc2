package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retreat",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status class.",
		},
		[]string{"route", "code"},
	)

	reservationConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retreat",
			Name:      "reservation_conflicts_total",
			Help:      "Reservation attempts rejected because the slot was taken.",
		},
		[]string{"kind"},
	)

	formSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retreat",
			Name:      "form_submissions_total",
			Help:      "Accepted form submissions by kind.",
		},
		[]string{"kind"},
	)

	idempotentReplays = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "retreat",
			Name:      "idempotent_replays_total",
			Help:      "Requests answered from the idempotency store.",
		},
	)

	syncTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "retreat",
			Name:      "sync_tasks_total",
			Help:      "Sheets sync tasks by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, reservationConflicts, formSubmissions, idempotentReplays, syncTasks)
	})
}

// IncHTTP increments the counter for a route and status code class ("2xx").
func IncHTTP(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}

func IncConflict(kind string) {
	reservationConflicts.WithLabelValues(kind).Inc()
}

func IncForm(kind string) {
	formSubmissions.WithLabelValues(kind).Inc()
}

func IncReplay() {
	idempotentReplays.Inc()
}

// IncSync records a worker outcome: success, retry or failed.
func IncSync(outcome string) {
	syncTasks.WithLabelValues(outcome).Inc()
}
