// Package observability exposes the pipeline's Prometheus metrics. Each
// processing unit registers the same Metrics set and serves it on /metrics;
// scheduled jobs push their outcome counters before exiting.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the domain counters for the event pipeline.
type Metrics struct {
	registry *prometheus.Registry

	EventsIngested    prometheus.Counter
	EventsRejected    *prometheus.CounterVec
	EventsScored      prometheus.Counter
	AlertsSent        prometheus.Counter
	AlertSendErrors   prometheus.Counter
	ClassifyFailures  prometheus.Counter
	DeadLetters       prometheus.Counter
	JobRuns           *prometheus.CounterVec
	JobFailures       *prometheus.CounterVec
	QueueRedeliveries prometheus.Counter
}

// NewMetrics builds a Metrics set on its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		EventsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "emotion_events_ingested_total",
			Help: "Valid webhook events accepted and enqueued.",
		}),
		EventsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "emotion_events_rejected_total",
			Help: "Webhook calls rejected or ignored, by reason.",
		}, []string{"reason"}),
		EventsScored: factory.NewCounter(prometheus.CounterOpts{
			Name: "emotion_events_scored_total",
			Help: "Events classified and persisted.",
		}),
		AlertsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "emotion_alerts_sent_total",
			Help: "Immediate warnings posted to the alert channel.",
		}),
		AlertSendErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "emotion_alert_send_errors_total",
			Help: "Alert posts that failed; the record write proceeds regardless.",
		}),
		ClassifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "emotion_classify_failures_total",
			Help: "Classifier invocations that returned an error.",
		}),
		DeadLetters: factory.NewCounter(prometheus.CounterOpts{
			Name: "emotion_dead_letters_total",
			Help: "Messages routed to the dead-letter path after exhausting retries.",
		}),
		JobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "emotion_job_runs_total",
			Help: "Scheduled job executions, by job.",
		}, []string{"job"}),
		JobFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "emotion_job_failures_total",
			Help: "Scheduled job executions that failed, by job.",
		}, []string{"job"}),
		QueueRedeliveries: factory.NewCounter(prometheus.CounterOpts{
			Name: "emotion_queue_redeliveries_total",
			Help: "Messages delivered more than once.",
		}),
	}
}

// Handler returns the /metrics HTTP handler for this metrics set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Push delivers the counters to a Pushgateway under the given job name.
// The scheduled jobs exit before any scraper could reach them, so they push
// their run/failure counters on the way out.
func (m *Metrics) Push(gatewayURL, job string) error {
	return push.New(gatewayURL, job).Gatherer(m.registry).Push()
}

// Serve exposes /metrics on its own listener; used by the worker, which has
// no gin engine of its own.
func (m *Metrics) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
