// Package metrics holds the Prometheus collectors for the gateway.
//
// All methods are safe on a nil *Metrics so components can run without
// instrumentation in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "keycast"

// Delivery results used as the "result" label.
const (
	ResultDelivered = "delivered"
	ResultFailed    = "failed"
	ResultSkipped   = "skipped"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	broadcastsTotal   *prometheus.CounterVec
	deliveriesTotal   *prometheus.CounterVec
	broadcastDuration prometheus.Histogram
	connections       prometheus.Gauge
	inputEventsTotal  *prometheus.CounterVec
	inputDropped      prometheus.Counter
}

// New registers the gateway collectors on a fresh registry, together with
// the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the gateway collectors on reg and exposes
// gatherer through Handler.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: gatherer,

		broadcastsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Total number of broadcasts by message origin",
		}, []string{"origin"}),

		deliveriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Per-connection delivery attempts by result",
		}, []string{"result"}),

		broadcastDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "broadcast_duration_seconds",
			Help:      "Time spent fanning one message out to all connections",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}),

		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of registered client connections",
		}),

		inputEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "input",
			Name:      "events_total",
			Help:      "Debounced press events emitted per input line",
		}, []string{"line"}),

		inputDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "input",
			Name:      "events_dropped_total",
			Help:      "Press events dropped because the forwarder fell behind",
		}),
	}
}

// ObserveBroadcast records the outcome of one broadcast call.
func (m *Metrics) ObserveBroadcast(origin string, delivered, failed, skipped int, d time.Duration) {
	if m == nil {
		return
	}
	m.broadcastsTotal.WithLabelValues(origin).Inc()
	m.deliveriesTotal.WithLabelValues(ResultDelivered).Add(float64(delivered))
	m.deliveriesTotal.WithLabelValues(ResultFailed).Add(float64(failed))
	m.deliveriesTotal.WithLabelValues(ResultSkipped).Add(float64(skipped))
	m.broadcastDuration.Observe(d.Seconds())
}

func (m *Metrics) SetConnections(n int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(n))
}

func (m *Metrics) InputEvent(line string) {
	if m == nil {
		return
	}
	m.inputEventsTotal.WithLabelValues(line).Inc()
}

func (m *Metrics) InputDropped() {
	if m == nil {
		return
	}
	m.inputDropped.Inc()
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
