// Package metrics exposes saga counters through a Prometheus registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hanko-field/returns/internal/services"
)

const namespace = "returns"

// Saga records lifecycle, carrier, refund, and points outcomes.
type Saga struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	carrier     *prometheus.CounterVec
	refunds     *prometheus.CounterVec
	points      *prometheus.CounterVec
}

var _ services.SagaMetrics = (*Saga)(nil)

// NewSaga registers the saga counters plus the Go runtime and process collectors on a fresh
// registry.
func NewSaga() *Saga {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return newSaga(registry)
}

func newSaga(registry *prometheus.Registry) *Saga {
	s := &Saga{
		registry: registry,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Return lifecycle transitions by event and result.",
		}, []string{"event", "result"}),
		carrier: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "carrier_calls_total",
			Help:      "Carrier API calls by operation and result.",
		}, []string{"operation", "result"}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Refund attempts by result.",
		}, []string{"result"}),
		points: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_adjustments_total",
			Help:      "Loyalty points adjustments by result.",
		}, []string{"result"}),
	}
	registry.MustRegister(s.transitions, s.carrier, s.refunds, s.points)
	return s
}

// ObserveTransition implements services.SagaMetrics.
func (s *Saga) ObserveTransition(event, result string) {
	s.transitions.WithLabelValues(event, result).Inc()
}

// ObserveCarrierCall implements services.SagaMetrics.
func (s *Saga) ObserveCarrierCall(operation, result string) {
	s.carrier.WithLabelValues(operation, result).Inc()
}

// ObserveRefund implements services.SagaMetrics.
func (s *Saga) ObserveRefund(result string) {
	s.refunds.WithLabelValues(result).Inc()
}

// ObservePointsAdjustment implements services.SagaMetrics.
func (s *Saga) ObservePointsAdjustment(result string) {
	s.points.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (s *Saga) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}
