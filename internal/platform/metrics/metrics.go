// Package metrics holds the prometheus collectors for the alert engine and
// the HTTP surface.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Evaluation outcomes.
const (
	OutcomeSkippedNoData       = "skipped_no_data"
	OutcomeSkippedInsufficient = "skipped_insufficient"
	OutcomeEvaluated           = "evaluated"
	OutcomeFailed              = "failed"
)

// Alert mutation actions.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

type Metrics struct {
	Evaluations        *prometheus.CounterVec
	AlertMutations     *prometheus.CounterVec
	AlertsAutoRead     prometheus.Counter
	EvaluationDuration prometheus.Histogram
	SweepPatients      *prometheus.CounterVec
	SubmissionsPurged  prometheus.Counter

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPPanics          *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers every collector on reg. Pass prometheus.NewRegistry() in
// tests so repeated construction does not panic on duplicate registration.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "score_evaluations_total",
			Help: "Alert evaluations by outcome",
		}, []string{"outcome"}),
		AlertMutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "score_alert_mutations_total",
			Help: "Alert rows created, updated or deleted by the evaluator",
		}, []string{"kind", "action"}),
		AlertsAutoRead: f.NewCounter(prometheus.CounterOpts{
			Name: "score_alerts_auto_read_total",
			Help: "Stale unread alerts acknowledged when a newer day was evaluated",
		}),
		EvaluationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "score_evaluation_duration_seconds",
			Help:    "Duration of one evaluation transaction",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		SweepPatients: f.NewCounterVec(prometheus.CounterOpts{
			Name: "score_sweep_patients_total",
			Help: "Patients visited by reconciliation sweeps",
		}, []string{"result"}),
		SubmissionsPurged: f.NewCounter(prometheus.CounterOpts{
			Name: "score_submissions_purged_total",
			Help: "Soft-deleted submissions removed after the retention window",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "path"}),
		HTTPPanics: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_panics_total",
			Help: "Handler panics recovered, by route",
		}, []string{"method", "path"}),
		gatherer: reg,
	}
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Nop returns collectors bound to a private registry, for callers that do
// not export metrics.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
