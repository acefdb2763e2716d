package metrics

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "recipes"

// Metrics contains metrics exposed by the recipes node.
type Metrics struct {
	// Gossip payloads published, by envelope kind.
	Published metrics.Counter
	// Gossip payloads received from peers, by envelope kind.
	Received metrics.Counter
	// Payloads or responses dropped, by reason.
	Dropped metrics.Counter
	// Payloads on the topic that did not decode.
	DecodeFailures metrics.Counter
	// Peers currently in the discovery peer view.
	Peers metrics.Gauge
	// Open transport sessions.
	Connections metrics.Gauge
	// Recipes in the local catalog.
	CatalogSize metrics.Gauge
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Collectors go to the default registry, so call it once per process.
func PrometheusMetrics(namespace string) *Metrics {
	return &Metrics{
		Published: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "published_total",
			Help:      "Gossip payloads published on the recipes topic.",
		}, []string{"kind"}),
		Received: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "received_total",
			Help:      "Gossip payloads received on the recipes topic.",
		}, []string{"kind"}),
		Dropped: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "dropped_total",
			Help:      "Payloads ignored or dropped, by reason.",
		}, []string{"reason"}),
		DecodeFailures: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "decode_failures_total",
			Help:      "Payloads on the recipes topic that failed to decode.",
		}, []string{}),
		Peers: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "peers",
			Help:      "Peers currently discovered on the local link.",
		}, []string{}),
		Connections: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "connections",
			Help:      "Open transport sessions.",
		}, []string{}),
		CatalogSize: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "catalog_size",
			Help:      "Recipes in the local catalog.",
		}, []string{}),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Published:      discard.NewCounter(),
		Received:       discard.NewCounter(),
		Dropped:        discard.NewCounter(),
		DecodeFailures: discard.NewCounter(),
		Peers:          discard.NewGauge(),
		Connections:    discard.NewGauge(),
		CatalogSize:    discard.NewGauge(),
	}
}
