package core

// metrics.go – Prometheus gauges and counters for the replication engine,
// scraped through the bridge's /metrics endpoint.

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chainHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aurachain_chain_height",
		Help: "Height of the last committed block.",
	})
	blocksCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aurachain_blocks_committed_total",
		Help: "Blocks finalized into the persistent store.",
	})
	txnsCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "aurachain_txns_committed_total",
		Help: "Transactions confirmed through committed blocks.",
	})
	waitingQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aurachain_waiting_queue_length",
		Help: "Blocks provisionally accepted but not yet committed.",
	})
	poolOrderSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "aurachain_pool_order_size",
		Help: "Transactions currently proposable from the order index.",
	})
)

// ObservePool refreshes the pool gauge; the bridge calls it after
// insertions.
func ObservePool(pool *TransactionPool) {
	poolOrderSize.Set(float64(pool.LengthOrderPool()))
}
