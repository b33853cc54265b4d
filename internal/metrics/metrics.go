package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// OrdersPlaced counts accepted orders by type (bid, ask, market_buy,
// market_sell).
var OrdersPlaced = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "clob",
		Subsystem: "book",
		Name:      "orders_placed_total",
		Help:      "Total number of accepted orders",
	},
	[]string{"type"},
)

// OrdersRejected counts rejected order submissions by reason.
var OrdersRejected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "clob",
		Subsystem: "book",
		Name:      "orders_rejected_total",
		Help:      "Total number of rejected order submissions",
	},
	[]string{"reason"},
)

// OrdersCancelled counts successful cancellations.
var OrdersCancelled = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "clob",
		Subsystem: "book",
		Name:      "orders_cancelled_total",
		Help:      "Total number of cancelled orders",
	},
)

// TradesExecuted counts fills.
var TradesExecuted = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "clob",
		Subsystem: "book",
		Name:      "trades_executed_total",
		Help:      "Total number of fills",
	},
)

// VolumeTraded accumulates filled base-asset volume.
var VolumeTraded = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "clob",
		Subsystem: "book",
		Name:      "volume_traded_total",
		Help:      "Cumulative base asset volume filled",
	},
)

// BookDepth tracks resting price levels per side.
var BookDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "clob",
		Subsystem: "book",
		Name:      "depth_levels",
		Help:      "Number of resting price levels per side",
	},
	[]string{"side"},
)

// MarketPrice tracks the last traded price.
var MarketPrice = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "clob",
		Subsystem: "book",
		Name:      "market_price",
		Help:      "Last traded price in quote units",
	},
)
