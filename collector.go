package gamenet

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gamenet"

func desc(subsystem, name, help string, labels prometheus.Labels) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, nil, labels)
}

type metric struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func() float64
}

// collector reports a fixed set of metrics read from a snapshot at scrape time.
type collector struct {
	metrics []metric
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.value())
	}
}

// NewServerCollector exposes the snapshot of s. labels are attached to every metric.
func NewServerCollector(s *Server, labels prometheus.Labels) prometheus.Collector {
	const sub = "server"
	snap := s.Snapshot
	counter := func(name, help string, v func(ServerSnapshot) uint64) metric {
		return metric{desc(sub, name, help, labels), prometheus.CounterValue, func() float64 { return float64(v(snap())) }}
	}
	gauge := func(name, help string, v func(ServerSnapshot) float64) metric {
		return metric{desc(sub, name, help, labels), prometheus.GaugeValue, func() float64 { return v(snap()) }}
	}

	return &collector{metrics: []metric{
		gauge("running", "1 if the server is bound to its address.", func(s ServerSnapshot) float64 {
			if s.Running {
				return 1
			}
			return 0
		}),
		gauge("max_clients", "Number of client slots.", func(s ServerSnapshot) float64 { return float64(s.MaxClients) }),
		gauge("connected_clients", "Number of connected clients.", func(s ServerSnapshot) float64 { return float64(s.ConnectedClients) }),
		gauge("pending_handshakes", "Number of handshakes in progress.", func(s ServerSnapshot) float64 { return float64(s.PendingHandshakes) }),
		gauge("rtt_seconds", "Round trip time averaged over the connected clients.", func(s ServerSnapshot) float64 { return s.RTT }),
		gauge("packet_loss_ratio", "Packet loss averaged over the connected clients.", func(s ServerSnapshot) float64 { return s.PacketLoss }),
		gauge("reliable_resent_fragments", "Resent fragments of the connected clients.", func(s ServerSnapshot) float64 { return float64(s.Transport.FragmentsResent) }),

		counter("packets_sent_total", "Datagrams sent.", func(s ServerSnapshot) uint64 { return s.Stats.PacketsSent }),
		counter("packets_received_total", "Datagrams received.", func(s ServerSnapshot) uint64 { return s.Stats.PacketsReceived }),
		counter("packets_dropped_total", "Datagrams dropped as invalid or unexpected.", func(s ServerSnapshot) uint64 { return s.Stats.PacketsDropped }),
		counter("bytes_sent_total", "Bytes sent.", func(s ServerSnapshot) uint64 { return s.Stats.BytesSent }),
		counter("bytes_received_total", "Bytes received.", func(s ServerSnapshot) uint64 { return s.Stats.BytesReceived }),
		counter("connections_accepted_total", "Handshakes that completed.", func(s ServerSnapshot) uint64 { return s.Stats.ConnectionsAccepted }),
		counter("connections_denied_total", "Connect tokens denied because the server was full.", func(s ServerSnapshot) uint64 { return s.Stats.ConnectionsDenied }),
		counter("connection_timeouts_total", "Clients disconnected for staying silent.", func(s ServerSnapshot) uint64 { return s.Stats.ConnectionTimeouts }),
		counter("handshake_timeouts_total", "Handshakes that timed out.", func(s ServerSnapshot) uint64 { return s.Stats.HandshakeTimeouts }),
		counter("events_dropped_total", "Events dropped because the queue was full.", func(s ServerSnapshot) uint64 { return s.Stats.EventsDropped }),
		counter("inbound_over_budget_bytes_total", "Received bytes above the inbound byte rate.", func(s ServerSnapshot) uint64 { return s.Stats.InboundOverBudget }),
		counter("outbound_over_budget_bytes_total", "Sent bytes above the outbound byte rate.", func(s ServerSnapshot) uint64 { return s.Stats.OutboundOverBudget }),
	}}
}

// NewClientCollector exposes the snapshot of c. labels are attached to every metric.
func NewClientCollector(c *Client, labels prometheus.Labels) prometheus.Collector {
	const sub = "client"
	snap := c.Snapshot
	counter := func(name, help string, v func(ClientSnapshot) uint64) metric {
		return metric{desc(sub, name, help, labels), prometheus.CounterValue, func() float64 { return float64(v(snap())) }}
	}
	gauge := func(name, help string, v func(ClientSnapshot) float64) metric {
		return metric{desc(sub, name, help, labels), prometheus.GaugeValue, func() float64 { return v(snap()) }}
	}

	return &collector{metrics: []metric{
		gauge("state", "Connection state, see handshake.ClientState.", func(s ClientSnapshot) float64 { return float64(s.State) }),
		gauge("rtt_seconds", "Smoothed round trip time.", func(s ClientSnapshot) float64 { return s.RTT }),
		gauge("packet_loss_ratio", "Smoothed packet loss.", func(s ClientSnapshot) float64 { return s.PacketLoss }),
		gauge("outgoing_bandwidth_bytes_per_second", "Smoothed outgoing bandwidth.", func(s ClientSnapshot) float64 { return s.OutgoingBandwidth }),
		gauge("incoming_bandwidth_bytes_per_second", "Smoothed incoming bandwidth.", func(s ClientSnapshot) float64 { return s.IncomingBandwidth }),

		counter("packets_sent_total", "Datagrams sent.", func(s ClientSnapshot) uint64 { return s.Stats.PacketsSent }),
		counter("packets_received_total", "Datagrams received.", func(s ClientSnapshot) uint64 { return s.Stats.PacketsReceived }),
		counter("packets_dropped_total", "Datagrams dropped as invalid or unexpected.", func(s ClientSnapshot) uint64 { return s.Stats.PacketsDropped }),
		counter("bytes_sent_total", "Bytes sent.", func(s ClientSnapshot) uint64 { return s.Stats.BytesSent }),
		counter("bytes_received_total", "Bytes received.", func(s ClientSnapshot) uint64 { return s.Stats.BytesReceived }),
	}}
}
