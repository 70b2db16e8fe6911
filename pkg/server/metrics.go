package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/uidl/pkg/push"
	"github.com/vango-dev/uidl/pkg/rpc"
	"github.com/vango-dev/uidl/pkg/session"
)

// Metrics holds the Prometheus metrics of a server. It implements the
// recorders of the uidl, rpc and push packages.
//
// Metrics collected:
//   - uidl_responses_total: responses written, by resynchronize
//   - uidl_response_bytes: histogram of response sizes
//   - uidl_response_duration_seconds: histogram of assembly time
//   - uidl_rpc_invocations_total: invocations by outcome
//   - uidl_resyncs_total: resynchronizations by reason
//   - uidl_push_connections: open push connections by transport
//   - uidl_push_messages_total: push messages by direction and transport
//   - uidl_push_notifications_total: critical notifications by kind
//   - uidl_sessions_active: live sessions
type Metrics struct {
	responses        *prometheus.CounterVec
	responseBytes    prometheus.Histogram
	responseDuration prometheus.Histogram
	invocations      *prometheus.CounterVec
	resyncs          *prometheus.CounterVec
	pushConnections  *prometheus.GaugeVec
	pushMessages     *prometheus.CounterVec
	notifications    *prometheus.CounterVec
}

// NewMetrics registers the server metrics with registry. sessions backs
// the active sessions gauge and may be nil.
func NewMetrics(registry prometheus.Registerer, namespace string, sessions *session.Manager) *Metrics {
	factory := promauto.With(registry)
	m := &Metrics{
		responses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Total number of UIDL responses written",
		}, []string{"resynchronize"}),

		responseBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_bytes",
			Help:      "Size of UIDL responses in bytes",
			Buckets:   prometheus.ExponentialBuckets(128, 4, 8), // 128B to 2MB
		}),

		responseDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_duration_seconds",
			Help:      "UIDL response assembly duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		invocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_invocations_total",
			Help:      "Total number of client invocations by outcome",
		}, []string{"outcome"}),

		resyncs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resyncs_total",
			Help:      "Total number of forced resynchronizations by reason",
		}, []string{"reason"}),

		pushConnections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "push_connections",
			Help:      "Number of open push connections",
		}, []string{"transport"}),

		pushMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_messages_total",
			Help:      "Total number of push messages",
		}, []string{"direction", "transport"}),

		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_notifications_total",
			Help:      "Total number of critical notifications sent",
		}, []string{"kind"}),
	}

	if sessions != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live sessions",
		}, func() float64 { return float64(sessions.Count()) })
	}
	return m
}

// ResponseWritten implements uidl.Recorder.
func (m *Metrics) ResponseWritten(d time.Duration, bytes int, resynchronize bool) {
	label := "false"
	if resynchronize {
		label = "true"
	}
	m.responses.WithLabelValues(label).Inc()
	m.responseBytes.Observe(float64(bytes))
	m.responseDuration.Observe(d.Seconds())
}

// InvocationHandled implements rpc.Recorder.
func (m *Metrics) InvocationHandled(o rpc.Outcome) {
	m.invocations.WithLabelValues(string(o)).Inc()
}

// Resynchronized implements rpc.Recorder.
func (m *Metrics) Resynchronized(reason string) {
	m.resyncs.WithLabelValues(reason).Inc()
}

// ConnectionOpened implements push.Recorder.
func (m *Metrics) ConnectionOpened(t push.Transport) {
	m.pushConnections.WithLabelValues(string(t)).Inc()
}

// ConnectionClosed implements push.Recorder.
func (m *Metrics) ConnectionClosed(t push.Transport) {
	m.pushConnections.WithLabelValues(string(t)).Dec()
}

// MessageReceived implements push.Recorder.
func (m *Metrics) MessageReceived(t push.Transport) {
	m.pushMessages.WithLabelValues("in", string(t)).Inc()
}

// MessageSent implements push.Recorder.
func (m *Metrics) MessageSent(t push.Transport) {
	m.pushMessages.WithLabelValues("out", string(t)).Inc()
}

// NotificationSent implements push.Recorder.
func (m *Metrics) NotificationSent(kind string) {
	m.notifications.WithLabelValues(kind).Inc()
}
