// Package metrics registers the prometheus collectors the RTMP stack updates.
// Collectors live on the default registry; embedding programs decide whether
// and where to expose them (promhttp or scraping the registry directly).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveConnections tracks currently accepted RTMP connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rtmpcast",
		Name:      "active_connections",
		Help:      "Number of currently open RTMP connections.",
	})

	// ConnectionsTotal counts accepted connections, partitioned by outcome of
	// the admission gate ("accepted", "limit_global", "limit_ip", "limit_rate").
	ConnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtmpcast",
		Name:      "connections_total",
		Help:      "Total RTMP connection attempts by admission outcome.",
	}, []string{"outcome"})

	// ActivePublishers tracks streams with a registered publisher.
	ActivePublishers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rtmpcast",
		Name:      "active_publishers",
		Help:      "Number of streams with an active publisher.",
	})

	// ActiveSubscribers tracks attached play sessions across all streams.
	ActiveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rtmpcast",
		Name:      "active_subscribers",
		Help:      "Number of attached subscribers across all streams.",
	})

	// PacketsIngested counts media/data packets accepted from publishers,
	// partitioned by kind ("audio", "video", "data").
	PacketsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rtmpcast",
		Name:      "packets_ingested_total",
		Help:      "Packets ingested from publishers by kind.",
	}, []string{"kind"})

	// BytesIngested counts payload bytes accepted from publishers.
	BytesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rtmpcast",
		Name:      "bytes_ingested_total",
		Help:      "Payload bytes ingested from publishers.",
	})

	// PacketsForwarded counts packets enqueued to subscriber channels.
	PacketsForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rtmpcast",
		Name:      "packets_forwarded_total",
		Help:      "Packets fanned out to subscriber queues.",
	})

	// SubscribersDropped counts subscribers removed because their bounded
	// channel overflowed (slow-consumer policy).
	SubscribersDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rtmpcast",
		Name:      "subscribers_dropped_total",
		Help:      "Subscribers removed after their send queue overflowed.",
	})

	// QueueDepth reports the inbound priority queue depth per connection at
	// sampling time. Connections observe it; it is a gauge summed over peers.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rtmpcast",
		Name:      "message_queue_depth",
		Help:      "Aggregate depth of inbound message queues.",
	})
)
