package node

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "chorus"

// Metrics are the prometheus collectors of a node. Each node registers them
// on its own registry, so several nodes can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	LastConsensusRound    prometheus.Gauge
	Rounds                prometheus.Gauge
	UndeterminedEvents    prometheus.Gauge
	ConsensusEvents       prometheus.Gauge
	ConsensusTransactions prometheus.Gauge
	TransactionPool       prometheus.Gauge
	SyncRequests          prometheus.Counter
	SyncErrors            prometheus.Counter
	RejectedEvents        prometheus.Counter
	FetchedEvents         prometheus.Counter
}

// NewMetrics creates the collectors and registers them on a new registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "hashgraph",
			Name:      name,
			Help:      help,
		})
	}

	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "gossip",
			Name:      name,
			Help:      help,
		})
	}

	return &Metrics{
		registry:              reg,
		LastConsensusRound:    gauge("last_consensus_round", "Index of the last round whose events were ordered, -1 if none."),
		Rounds:                gauge("rounds", "Number of rounds created so far."),
		UndeterminedEvents:    gauge("undetermined_events", "Events inserted but not yet in the consensus order."),
		ConsensusEvents:       gauge("consensus_events", "Events in the consensus order."),
		ConsensusTransactions: gauge("consensus_transactions", "Transactions in the consensus order."),
		TransactionPool:       gauge("transaction_pool", "Submitted transactions waiting for a self-event."),
		SyncRequests:          counter("sync_requests_total", "Pulls initiated by this node."),
		SyncErrors:            counter("sync_errors_total", "Pulls that failed."),
		RejectedEvents:        counter("rejected_events_total", "Events received from peers and refused."),
		FetchedEvents:         counter("fetched_events_total", "Events received from peers, rejected ones included."),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
