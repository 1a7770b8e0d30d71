// Package metrics provides Prometheus metrics for the messaging service
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Append paths
const (
	PathCreated  = "created"
	PathExisting = "existing"
	PathReplayed = "replayed"
)

// Live delivery results
const (
	DeliveryDelivered = "delivered"
	DeliveryOffline   = "offline"
	DeliveryDropped   = "dropped"
)

// Metrics holds all Prometheus metrics for the service. A nil *Metrics is valid and records nothing.
type Metrics struct {
	MessagesAppended     *prometheus.CounterVec
	ConversationsCreated prometheus.Counter
	LiveDeliveries       *prometheus.CounterVec
	OnlineIdentities     prometheus.Gauge
	ConnectedSessions    prometheus.Gauge

	HttpRequestDuration    *prometheus.HistogramVec
	StoreOperationDuration *prometheus.HistogramVec
}

// NewMetrics creates all collectors and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{}

	m.MessagesAppended = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pathshala_messages_appended_total",
			Help: "Total number of messages durably appended",
		},
		[]string{"path"},
	)

	m.ConversationsCreated = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "pathshala_conversations_created_total",
			Help: "Total number of conversations created",
		},
	)

	m.LiveDeliveries = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pathshala_live_deliveries_total",
			Help: "Best-effort live message pushes by result",
		},
		[]string{"result"},
	)

	m.OnlineIdentities = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "pathshala_online_identities",
			Help: "Identities with a registered live session",
		},
	)

	m.ConnectedSessions = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "pathshala_connected_sessions",
			Help: "Open live channel sessions",
		},
	)

	m.HttpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pathshala_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	m.StoreOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pathshala_store_operation_duration_seconds",
			Help:    "Duration of document store operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	return m
}

func (m *Metrics) RecordAppend(path string) {
	if m == nil {
		return
	}
	m.MessagesAppended.WithLabelValues(path).Inc()
}

func (m *Metrics) RecordConversationCreated() {
	if m == nil {
		return
	}
	m.ConversationsCreated.Inc()
}

func (m *Metrics) RecordDelivery(result string) {
	if m == nil {
		return
	}
	m.LiveDeliveries.WithLabelValues(result).Inc()
}

func (m *Metrics) SetPresence(sessions, identities int) {
	if m == nil {
		return
	}
	m.ConnectedSessions.Set(float64(sessions))
	m.OnlineIdentities.Set(float64(identities))
}

func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HttpRequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}

// ObserveStore records the time since start for a store operation
func (m *Metrics) ObserveStore(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.StoreOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
