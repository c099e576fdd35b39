package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ptyhost"

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive   prometheus.Gauge
	SessionsCreated  prometheus.Counter
	SessionsRejected *prometheus.CounterVec
	SpawnFailures    prometheus.Counter
	OutputBytes      prometheus.Counter
	SessionExits     *prometheus.CounterVec

	// Transport metrics
	TransportState      *prometheus.GaugeVec
	TransportQueueDepth prometheus.Gauge
	TransportCalls      *prometheus.CounterVec
	TransportDuration   *prometheus.HistogramVec
	TransportReconnects prometheus.Counter
	TransportDropped    *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	registry  prometheus.Gatherer
	startTime time.Time
}

// NewMetrics registers the metrics with reg. A nil reg uses a fresh
// registry that also carries the Go and process collectors.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live PTY sessions",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Total number of sessions created",
		}),
		SessionsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_rejected_total",
				Help:      "Session creations rejected, by reason",
			},
			[]string{"reason"},
		),
		SpawnFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spawn_failures_total",
			Help:      "Shell processes that failed to start",
		}),
		OutputBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_output_bytes_total",
			Help:      "Bytes read from session output streams",
		}),
		SessionExits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_exits_total",
				Help:      "Session exits, by how the shell ended",
			},
			[]string{"how"},
		),

		TransportState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "transport_state",
				Help:      "1 for the transport's current connection state",
			},
			[]string{"state"},
		),
		TransportQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transport_queue_depth",
			Help:      "Calls waiting for a connection",
		}),
		TransportCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transport_calls_total",
				Help:      "Transport calls, by target and status",
			},
			[]string{"target", "status"},
		),
		TransportDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transport_call_duration_seconds",
				Help:      "Transport call latency including queueing",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"target"},
		),
		TransportReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_reconnect_attempts_total",
			Help:      "Reconnection attempts",
		}),
		TransportDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transport_dropped_total",
				Help:      "Queued calls dropped, by reason",
			},
			[]string{"reason"},
		),

		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Number of active WebSocket connections",
		}),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ws_messages_total",
				Help:      "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Host uptime in seconds",
	}, func() float64 {
		return time.Since(m.startTime).Seconds()
	})

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SetSessionsActive sets the number of live sessions
func (m *Metrics) SetSessionsActive(count int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(count))
}

// IncSessionsCreated counts a successful session creation
func (m *Metrics) IncSessionsCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
}

// IncSessionsRejected counts a refused creation
func (m *Metrics) IncSessionsRejected(reason string) {
	if m == nil {
		return
	}
	m.SessionsRejected.WithLabelValues(reason).Inc()
}

// IncSpawnFailures counts a shell that failed to start
func (m *Metrics) IncSpawnFailures() {
	if m == nil {
		return
	}
	m.SpawnFailures.Inc()
}

// AddOutputBytes counts session output
func (m *Metrics) AddOutputBytes(n int) {
	if m == nil {
		return
	}
	m.OutputBytes.Add(float64(n))
}

// IncSessionExits counts a session exit
func (m *Metrics) IncSessionExits(how string) {
	if m == nil {
		return
	}
	m.SessionExits.WithLabelValues(how).Inc()
}

// SetTransportState marks state as current and clears the others
func (m *Metrics) SetTransportState(state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.TransportState.WithLabelValues(s).Set(v)
	}
}

// SetTransportQueueDepth sets the pending call count
func (m *Metrics) SetTransportQueueDepth(n int) {
	if m == nil {
		return
	}
	m.TransportQueueDepth.Set(float64(n))
}

// RecordTransportCall records a finished call
func (m *Metrics) RecordTransportCall(target, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.TransportCalls.WithLabelValues(target, status).Inc()
	m.TransportDuration.WithLabelValues(target).Observe(duration.Seconds())
}

// IncTransportReconnects counts a reconnection attempt
func (m *Metrics) IncTransportReconnects() {
	if m == nil {
		return
	}
	m.TransportReconnects.Inc()
}

// IncTransportDropped counts a dropped queued call
func (m *Metrics) IncTransportDropped(reason string) {
	if m == nil {
		return
	}
	m.TransportDropped.WithLabelValues(reason).Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}
