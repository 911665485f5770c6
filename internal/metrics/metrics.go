// Package metrics defines the Prometheus collectors the collector core
// and its transport layer publish, grounded in the same
// counter/histogram naming style used by other IPFIX decoders in the
// ecosystem.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics is one process's set of collector metrics. Each Dispatcher and
// listener worker shares the same instance; every field is safe for
// concurrent use since it wraps a prometheus collector.
type Metrics struct {
	PacketsTotal       prometheus.Counter
	PacketErrors       prometheus.Counter
	FlowsetErrors      prometheus.Counter
	SequenceMismatches prometheus.Counter
	RecordsTotal       prometheus.Counter
	DroppedRecords     prometheus.Counter

	TemplatesActive prometheus.Gauge
	ExportersActive prometheus.Gauge

	UDPPacketsTotal prometheus.Counter
	UDPErrorsTotal  prometheus.Counter
	UDPPacketBytes  prometheus.Counter

	DecodeDuration prometheus.Histogram

	// ProtocolRecordsTotal counts transcoded records by IP protocol
	// number, labeled the way nfdump's protocol breakdown reports do.
	ProtocolRecordsTotal *prometheus.CounterVec
}

// protocolLabel maps an IP protocol number to the label
// ProtocolRecordsTotal reports it under, falling back to "other" for
// anything not broken out individually.
func protocolLabel(proto uint8) string {
	switch proto {
	case 1:
		return "icmp"
	case 6:
		return "tcp"
	case 17:
		return "udp"
	case 58:
		return "icmpv6"
	default:
		return "other"
	}
}

// New builds a fresh Metrics set with every collector registered under
// the "ipfixcore" namespace.
func New() *Metrics {
	return &Metrics{
		PacketsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ipfixcore",
			Name:      "packets_total",
			Help:      "Total number of IPFIX messages successfully dispatched.",
		}),
		PacketErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ipfixcore",
			Name:      "packet_errors_total",
			Help:      "Total number of IPFIX messages rejected for a malformed header.",
		}),
		FlowsetErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ipfixcore",
			Name:      "flowset_errors_total",
			Help:      "Total number of flowsets rejected as malformed.",
		}),
		SequenceMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ipfixcore",
			Name:      "sequence_mismatches_total",
			Help:      "Total number of packets observed out of the expected sequence order.",
		}),
		RecordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ipfixcore",
			Name:      "records_total",
			Help:      "Total number of Common Records written to the sink.",
		}),
		DroppedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ipfixcore",
			Name:      "dropped_records_total",
			Help:      "Total number of data records dropped as truncated, plus datagrams dropped on a full worker queue.",
		}),
		TemplatesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ipfixcore",
			Name:      "templates_active",
			Help:      "Number of data templates currently held across all exporters.",
		}),
		ExportersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ipfixcore",
			Name:      "exporters_active",
			Help:      "Number of distinct exporters currently tracked.",
		}),
		UDPPacketsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ipfixcore",
			Subsystem: "udp_listener",
			Name:      "packets_total",
			Help:      "Total number of UDP datagrams received.",
		}),
		UDPErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ipfixcore",
			Subsystem: "udp_listener",
			Name:      "errors_total",
			Help:      "Total number of UDP read errors.",
		}),
		UDPPacketBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ipfixcore",
			Subsystem: "udp_listener",
			Name:      "packet_bytes_total",
			Help:      "Total number of bytes read by the UDP listener.",
		}),
		DecodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ipfixcore",
			Name:      "decode_duration_microseconds",
			Help:      "Duration of HandlePacket calls in microseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 25000},
		}),
		ProtocolRecordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ipfixcore",
			Name:      "protocol_records_total",
			Help:      "Total number of Common Records written to the sink, broken out by IP protocol.",
		}, []string{"protocol"}),
	}
}

// ObserveProtocol increments the per-protocol record counter for the
// Common Record's protocol field.
func (m *Metrics) ObserveProtocol(proto uint8) {
	m.ProtocolRecordsTotal.WithLabelValues(protocolLabel(proto)).Inc()
}

// Register adds every collector in m to reg.
func (m *Metrics) Register(reg *prometheus.Registry) {
	reg.MustRegister(
		m.PacketsTotal, m.PacketErrors, m.FlowsetErrors, m.SequenceMismatches,
		m.RecordsTotal, m.DroppedRecords, m.TemplatesActive, m.ExportersActive,
		m.UDPPacketsTotal, m.UDPErrorsTotal, m.UDPPacketBytes, m.DecodeDuration,
		m.ProtocolRecordsTotal,
	)
}
