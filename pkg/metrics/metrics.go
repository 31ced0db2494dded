package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrdersCreated counts orders accepted by the order engine, by side
var OrdersCreated = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "peerex_orders_created_total",
		Help: "Total number of orders created by the order engine",
	},
	[]string{"side"},
)

// TradeTransitions counts trade state transitions (created, paid, released, cancelled)
var TradeTransitions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "peerex_trade_transitions_total",
		Help: "Total number of trade state transitions",
	},
	[]string{"transition"},
)

// LedgerTransactions counts balanced ledger transactions recorded, by type
var LedgerTransactions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "peerex_ledger_transactions_total",
		Help: "Total number of double-entry ledger transactions recorded",
	},
	[]string{"type"},
)

// InsufficientFunds counts operations rejected for lack of available balance
var InsufficientFunds = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "peerex_insufficient_funds_total",
		Help: "Total number of operations rejected with insufficient funds",
	},
)

func init() {
	prometheus.MustRegister(OrdersCreated, TradeTransitions, LedgerTransactions, InsufficientFunds)
}
