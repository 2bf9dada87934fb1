// Package metrics provides Prometheus metrics for the host bridge.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "hostbridge"
)

// Metrics contains all Prometheus metrics for the bridge.
type Metrics struct {
	// Connection metrics
	ConnectionsActive   prometheus.Gauge
	ConnectionsAccepted prometheus.Counter
	AuthFailures        prometheus.Counter

	// Wire metrics
	MessagesReceived *prometheus.CounterVec
	MessagesSent     *prometheus.CounterVec
	ProtocolFaults   prometheus.Counter

	// Executor metrics
	CommandsStarted prometheus.Counter
	CommandsActive  prometheus.Gauge
	CommandDuration prometheus.Histogram

	// File operation metrics
	FileReads  *prometheus.CounterVec
	FileWrites *prometheus.CounterVec

	// Client-side correlation metrics
	RequestsPending prometheus.Gauge
	RequestTimeouts prometheus.Counter
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the default metrics instance.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of currently open bridge connections",
		}),
		ConnectionsAccepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Total bridge connections accepted",
		}),
		AuthFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Total failed authentication handshakes",
		}),

		MessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total inbound messages by kind",
		}, []string{"kind"}),
		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Total outbound messages by kind",
		}, []string{"kind"}),
		ProtocolFaults: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_faults_total",
			Help:      "Total malformed or unknown frames dropped",
		}),

		CommandsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_started_total",
			Help:      "Total shell commands spawned",
		}),
		CommandsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "commands_active",
			Help:      "Number of currently running shell commands",
		}),
		CommandDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Shell command execution duration",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),

		FileReads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_reads_total",
			Help:      "Total file read requests by result",
		}, []string{"result"}),
		FileWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_writes_total",
			Help:      "Total file write requests by result",
		}, []string{"result"}),

		RequestsPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_pending",
			Help:      "Number of requests awaiting a terminal message",
		}),
		RequestTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_timeouts_total",
			Help:      "Total requests resolved by a timeout instead of a terminal message",
		}),
	}
}

// Result label values for file operation counters.
const (
	ResultOK    = "ok"
	ResultError = "error"
)
