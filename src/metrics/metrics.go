// Package metrics exposes the pipeline counters of a node as Prometheus
// collectors. Each node owns its registry, so that several nodes can run in
// one process.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "irohabg"

// Metrics implements the Metrics interfaces of the ordering, yac,
// synchronizer and pcs packages.
type Metrics struct {
	registry *prometheus.Registry

	proposals     prometheus.Counter
	proposalTxs   prometheus.Histogram
	votes         *prometheus.CounterVec
	rounds        *prometheus.CounterVec
	blocks        prometheus.Counter
	height        prometheus.Gauge
	catchUps      *prometheus.CounterVec
	droppedEvents *prometheus.CounterVec
	broadcasts    *prometheus.CounterVec
}

// New creates the collectors and registers them in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		proposals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals_total",
			Help:      "Proposals cut by the ordering service",
		}),
		proposalTxs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "proposal_transactions",
			Help:      "Transactions per proposal",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_total",
			Help:      "Votes received from other peers",
		}, []string{"status"}),
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Consensus rounds by outcome",
		}, []string{"outcome"}),
		blocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_applied_total",
			Help:      "Blocks applied to the ledger",
		}),
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_height",
			Help:      "Height of the last committed block",
		}),
		catchUps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catch_ups_total",
			Help:      "Catch-up attempts by result",
		}, []string{"result"}),
		droppedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_events_total",
			Help:      "Events dropped because a subscriber queue was full",
		}, []string{"stream"}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Broadcasts by message type and result, failed if a peer was unreachable",
		}, []string{"msg", "result"}),
	}

	m.registry.MustRegister(
		m.proposals,
		m.proposalTxs,
		m.votes,
		m.rounds,
		m.blocks,
		m.height,
		m.catchUps,
		m.droppedEvents,
		m.broadcasts,
	)

	return m
}

// ProposalCut implements ordering.Metrics.
func (m *Metrics) ProposalCut(txs int) {
	m.proposals.Inc()
	m.proposalTxs.Observe(float64(txs))
}

// VoteReceived implements yac.Metrics.
func (m *Metrics) VoteReceived(accepted bool) {
	status := "accepted"
	if !accepted {
		status = "dropped"
	}
	m.votes.WithLabelValues(status).Inc()
}

// RoundDecided implements yac.Metrics.
func (m *Metrics) RoundDecided(outcome string) {
	m.rounds.WithLabelValues(outcome).Inc()
}

// BlocksApplied implements synchronizer.Metrics.
func (m *Metrics) BlocksApplied(n int, height uint64) {
	m.blocks.Add(float64(n))
	m.height.Set(float64(height))
}

// CatchUp implements synchronizer.Metrics.
func (m *Metrics) CatchUp(blocks int, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.catchUps.WithLabelValues(result).Inc()
}

// EventDropped implements pcs.Metrics.
func (m *Metrics) EventDropped(stream string) {
	m.droppedEvents.WithLabelValues(stream).Inc()
}

// Broadcast counts one fan-out of msg. err is the first send that failed.
func (m *Metrics) Broadcast(msg string, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.broadcasts.WithLabelValues(msg, result).Inc()
}

// Registry ...
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
