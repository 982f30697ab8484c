// Package metrics holds the Prometheus collectors for the ingestion path.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fleettrack"

// Drop reasons recorded by FrameDropped.
const (
	ReasonMalformed      = "malformed"
	ReasonOverflow       = "overflow"
	ReasonDecode         = "decode"
	ReasonIdentity       = "identity"
	ReasonUnknownCommand = "unknown_command"
	ReasonRejected       = "rejected"
)

// Metrics groups every collector exported by the service.
type Metrics struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	framesDecoded     *prometheus.CounterVec // command
	framesDropped     *prometheus.CounterVec // reason
	acksWritten       *prometheus.CounterVec // command
	ackErrors         prometheus.Counter
	events            *prometheus.CounterVec // channel
	publishErrors     *prometheus.CounterVec // sink
	wsClients         prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg disables
// metrics and returns nil.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "connections_active",
			Help:      "Number of tracker connections currently open.",
		}),
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tcp",
			Name:      "connections_total",
			Help:      "Total number of tracker connections accepted.",
		}),
		framesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "frames_decoded_total",
			Help:      "Frames successfully decoded, by command.",
		}, []string{"command"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "frames_dropped_total",
			Help:      "Frames or buffers discarded, by reason.",
		}, []string{"reason"}),
		acksWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "acks_written_total",
			Help:      "Acknowledgements written back to trackers, by command.",
		}, []string{"command"}),
		ackErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "ack_errors_total",
			Help:      "Acknowledgements that could not be written.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "events_published_total",
			Help:      "Events handed to the fan-out, by channel.",
		}, []string{"channel"}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "publish_errors_total",
			Help:      "Failed publishes, by sink.",
		}, []string{"sink"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "websocket_clients",
			Help:      "Number of connected WebSocket subscribers.",
		}),
	}

	collectors := []prometheus.Collector{
		m.connectionsActive,
		m.connectionsTotal,
		m.framesDecoded,
		m.framesDropped,
		m.acksWritten,
		m.ackErrors,
		m.events,
		m.publishErrors,
		m.wsClients,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connectionsActive.Inc()
	m.connectionsTotal.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
}

func (m *Metrics) FrameDecoded(command string) {
	if m == nil {
		return
	}
	m.framesDecoded.WithLabelValues(command).Inc()
}

func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(reason).Inc()
}

// AckWritten records an acknowledgement outcome.
func (m *Metrics) AckWritten(command string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ackErrors.Inc()
		return
	}
	m.acksWritten.WithLabelValues(command).Inc()
}

func (m *Metrics) EventPublished(channel string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(channel).Inc()
}

func (m *Metrics) PublishFailed(sink string) {
	if m == nil {
		return
	}
	m.publishErrors.WithLabelValues(sink).Inc()
}

// SetWebSocketClients reports the current subscriber count.
func (m *Metrics) SetWebSocketClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}
