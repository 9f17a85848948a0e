// Package metrics defines the prometheus collectors exported by chainview.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chainview"

// Fetch failure kinds.
const (
	FailureHeight      = "height"
	FailureBlock       = "block"
	FailureTransaction = "transaction"
	FailureReceipt     = "receipt"
	FailureBalance     = "balance"
)

// Pass modes.
const (
	ModeLive = "live"
	ModeDemo = "demo"
)

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ReconcilePasses       *prometheus.CounterVec
	FetchFailures         *prometheus.CounterVec
	BlocksMerged          prometheus.Counter
	TransactionsConfirmed prometheus.Counter
	ChainHeight           prometheus.Gauge
	PendingTransactions   prometheus.Gauge

	PowAttempts prometheus.Counter
	PowBlocks   *prometheus.CounterVec
	PosBlocks   *prometheus.CounterVec
	Rejected    *prometheus.CounterVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ReconcilePasses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_passes_total",
			Help:      "Reconciliation passes by mode.",
		}, []string{"mode"}),
		FetchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Chain client calls that failed and were skipped.",
		}, []string{"kind"}),
		BlocksMerged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_merged_total",
			Help:      "Blocks newly retained by the chain view.",
		}),
		TransactionsConfirmed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_confirmed_total",
			Help:      "Transactions moved from pending to confirmed.",
		}),
		ChainHeight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chain_height",
			Help:      "Latest block height reported by the chain client.",
		}),
		PendingTransactions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_transactions",
			Help:      "Transactions currently pending in the chain view.",
		}),
		PowAttempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pow_hash_attempts_total",
			Help:      "Digests drawn by the proof-of-work simulator.",
		}),
		PowBlocks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pow_blocks_total",
			Help:      "Blocks mined by the proof-of-work simulator.",
		}, []string{"solved"}),
		PosBlocks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pos_blocks_total",
			Help:      "Blocks created by the proof-of-stake simulator.",
		}, []string{"validator"}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_actions_total",
			Help:      "User actions rejected before any state change.",
		}, []string{"action", "reason"}),
	}
}

func (m *Metrics) ObservePass(mode string) {
	if m == nil {
		return
	}
	m.ReconcilePasses.WithLabelValues(mode).Inc()
}

func (m *Metrics) ObserveFailure(kind string) {
	if m == nil {
		return
	}
	m.FetchFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveMerged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BlocksMerged.Add(float64(n))
}

func (m *Metrics) ObserveConfirmed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.TransactionsConfirmed.Add(float64(n))
}

func (m *Metrics) SetHeight(h uint64) {
	if m == nil {
		return
	}
	m.ChainHeight.Set(float64(h))
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.PendingTransactions.Set(float64(n))
}

func (m *Metrics) ObserveMined(attempts int, solved bool) {
	if m == nil {
		return
	}
	m.PowAttempts.Add(float64(attempts))
	label := "false"
	if solved {
		label = "true"
	}
	m.PowBlocks.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveValidated(validator string) {
	if m == nil {
		return
	}
	m.PosBlocks.WithLabelValues(validator).Inc()
}

func (m *Metrics) ObserveRejected(action, reason string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(action, reason).Inc()
}
