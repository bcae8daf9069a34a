package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports the supervisor counters. A nil *Metrics records
// nothing.
type Metrics struct {
	ConnectAttempts prometheus.Counter
	ConnectFailures prometheus.Counter
	Disconnects     prometheus.Counter
	State           prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConnectAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "wifista",
			Subsystem: "supervisor",
			Name:      "connect_attempts_total",
			Help:      "Connect requests issued to the radio.",
		}),
		ConnectFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "wifista",
			Subsystem: "supervisor",
			Name:      "connect_failures_total",
			Help:      "Connect requests which failed and were retried.",
		}),
		Disconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "wifista",
			Subsystem: "supervisor",
			Name:      "disconnects_total",
			Help:      "Disconnects observed while associated.",
		}),
		State: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "wifista",
			Subsystem: "supervisor",
			Name:      "state",
			Help:      "Current supervisor state (0 Idle, 1 AwaitingStart, 2 AwaitingConnectResult, 3 ConnectedWaitingForDrop, 4 BackoffBeforeRetry).",
		}),
	}
}

func (m *Metrics) connectAttempted() {
	if m != nil {
		m.ConnectAttempts.Inc()
	}
}

func (m *Metrics) connectFailed() {
	if m != nil {
		m.ConnectFailures.Inc()
	}
}

func (m *Metrics) disconnected() {
	if m != nil {
		m.Disconnects.Inc()
	}
}

func (m *Metrics) setState(s State) {
	if m != nil {
		m.State.Set(float64(s))
	}
}
