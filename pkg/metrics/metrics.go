package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the domain metrics of the API and the worker
type Metrics struct {
	// Consultation metrics
	ConsultationOperations *prometheus.CounterVec
	StatusChanges          *prometheus.CounterVec

	// Auth metrics
	AuthAttempts *prometheus.CounterVec

	// Event metrics
	EventsPublished *prometheus.CounterVec
	EventsHandled   *prometheus.CounterVec
	EventLatency    *prometheus.HistogramVec
}

// New registers the metrics with reg under namespace
func New(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ConsultationOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consultation_operations_total",
			Help:      "Total number of consultation operations",
		}, []string{"operation", "status"}),
		StatusChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consultation_status_changes_total",
			Help:      "Total number of consultation status changes by target status",
		}, []string{"status"}),

		AuthAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Total number of authentication attempts",
		}, []string{"operation", "status"}),

		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of published consultation events",
		}, []string{"event_type", "status"}),
		EventsHandled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_handled_total",
			Help:      "Total number of consultation events handled by the worker",
		}, []string{"event_type", "status"}),
		EventLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_processing_latency_seconds",
			Help:      "Time between event creation and processing",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"event_type"}),
	}
}

// NewNop returns metrics registered with a private registry
func NewNop() *Metrics {
	return New(prometheus.NewRegistry(), "nop")
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveConsultation counts one consultation operation
func (m *Metrics) ObserveConsultation(operation string, err error) {
	if m == nil {
		return
	}
	m.ConsultationOperations.WithLabelValues(operation, outcome(err)).Inc()
}

// ObserveAuth counts one register, login or refresh attempt
func (m *Metrics) ObserveAuth(operation string, err error) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(operation, outcome(err)).Inc()
}

// ObservePublish counts one event publication
func (m *Metrics) ObservePublish(eventType string, err error) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType, outcome(err)).Inc()
}
