package relay

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/atvkit/atvkit/internal/eventbus"
)

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// Metrics holds the relay's Prometheus instrumentation: how many calls
// each capability routes to which protocol, and how often push updates
// are delivered versus suppressed as duplicates.
type Metrics struct {
	RelayedCalls   *prometheus.CounterVec
	RelayErrors    *prometheus.CounterVec
	PushUpdates    *prometheus.CounterVec
	PushDuplicates *prometheus.CounterVec
	Reconnects     *prometheus.CounterVec
}

// GetMetrics returns the process-global relay metrics registry,
// creating it on first use.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = newMetrics()
	})
	return metrics
}

func newMetrics() *Metrics {
	m := &Metrics{}

	m.RelayedCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atvkit_relay_calls_total",
		Help: "Total calls resolved and relayed to a protocol implementation",
	}, []string{"capability", "protocol"})

	m.RelayErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atvkit_relay_errors_total",
		Help: "Total relayed calls that returned an error",
	}, []string{"capability", "protocol"})

	m.PushUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atvkit_relay_push_updates_total",
		Help: "Total push-update events re-emitted by the facade",
	}, []string{"event_type", "source"})

	m.PushDuplicates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atvkit_relay_push_duplicates_total",
		Help: "Total playstatus_update events suppressed as hash duplicates",
	}, []string{"source"})

	m.Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atvkit_relay_reconnects_total",
		Help: "Total reconnect attempts after a transport loss",
	}, []string{"source"})

	return m
}

// RecordCall records one relayed call's outcome.
func (m *Metrics) RecordCall(cap Capability, proto Protocol, err error) {
	m.RelayedCalls.WithLabelValues(string(cap), string(proto)).Inc()
	if err != nil {
		m.RelayErrors.WithLabelValues(string(cap), string(proto)).Inc()
	}
}

// RecordReconnect records one reconnect attempt against source after a
// transport loss.
func (m *Metrics) RecordReconnect(source string) {
	m.Reconnects.WithLabelValues(source).Inc()
}

// eventbusHooks adapts Metrics to eventbus.Hooks so StateProducer.Emit's
// own dedup path can drive PushUpdates/PushDuplicates without eventbus
// depending on Prometheus.
type eventbusHooks struct{ metrics *Metrics }

func (h eventbusHooks) PushDelivered(eventType eventbus.EventType, source string) {
	h.metrics.PushUpdates.WithLabelValues(string(eventType), source).Inc()
}

func (h eventbusHooks) PushDuplicate(source string) {
	h.metrics.PushDuplicates.WithLabelValues(source).Inc()
}

var _ eventbus.Hooks = eventbusHooks{}
