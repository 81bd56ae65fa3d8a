package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	chatConnections    prometheus.Gauge
	chatEventsTotal    *prometheus.CounterVec
	chatMessagesTotal  *prometheus.CounterVec
	chatCallsTotal     *prometheus.CounterVec
	chatDroppedFrames  *prometheus.CounterVec
	chatBusEventsTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors of the gateway.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total number of REST requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chat_http_latency_seconds",
			Help:    "Latency distribution for REST requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_http_errors_total",
			Help: "Total number of REST error responses.",
		}, []string{"method", "route", "status"})

		chatConnections = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_connections_active",
			Help: "Number of websocket connections currently registered on this node.",
		})

		chatEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_events_total",
			Help: "Inbound websocket events by name and outcome.",
		}, []string{"event", "outcome"})

		chatMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_total",
			Help: "Message mutations applied by the pipeline.",
		}, []string{"action"})

		chatCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_calls_total",
			Help: "Call state transitions recorded.",
		}, []string{"status"})

		chatDroppedFrames = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_dropped_frames_total",
			Help: "Outbound frames dropped because a client could not keep up.",
		}, []string{"event"})

		chatBusEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_bus_events_total",
			Help: "Events exchanged with other gateway nodes.",
		}, []string{"transport", "direction"})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			httpErrorsTotal,
			chatConnections,
			chatEventsTotal,
			chatMessagesTotal,
			chatCallsTotal,
			chatDroppedFrames,
			chatBusEventsTotal,
		)
	})
}

// HTTPRequests exposes the counter for REST requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for REST requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the counter for REST error responses.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// ChatConnections exposes the gauge of live websocket connections.
func ChatConnections() prometheus.Gauge {
	RegisterMetrics()
	return chatConnections
}

// ChatEvents exposes the inbound event counter.
func ChatEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return chatEventsTotal
}

// ChatMessages exposes the message mutation counter.
func ChatMessages() *prometheus.CounterVec {
	RegisterMetrics()
	return chatMessagesTotal
}

// ChatCalls exposes the call transition counter.
func ChatCalls() *prometheus.CounterVec {
	RegisterMetrics()
	return chatCallsTotal
}

// ChatDroppedFrames exposes the slow consumer drop counter.
func ChatDroppedFrames() *prometheus.CounterVec {
	RegisterMetrics()
	return chatDroppedFrames
}

// ChatBusEvents exposes the cross-node event counter.
func ChatBusEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return chatBusEventsTotal
}
