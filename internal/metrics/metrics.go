// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BlocksScanned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recharge_blocks_scanned_total",
			Help: "Total number of ledger blocks fully processed",
		},
	)

	BlockFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recharge_block_fetch_errors_total",
			Help: "Total number of failed tip or block fetches",
		},
		[]string{"call"},
	)

	BlockProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recharge_block_processing_duration_seconds",
			Help:    "Duration of fetching and settling one block",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10},
		},
	)

	ScanCursor = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "recharge_scan_cursor",
			Help: "Highest fully processed block per currency",
		},
		[]string{"currency"},
	)

	TransfersMatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recharge_transfers_matched_total",
			Help: "Total number of decoded transfers that matched a pending order",
		},
		[]string{"currency"},
	)

	UnmatchedDeposits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recharge_unmatched_deposits_total",
			Help: "Total number of wallet deposits with no pending order",
		},
		[]string{"currency"},
	)

	Settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recharge_settlements_total",
			Help: "Total number of settlement attempts",
		},
		[]string{"currency", "result"},
	)

	OrdersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recharge_orders_created_total",
			Help: "Total number of orders created",
		},
		[]string{"currency", "type"},
	)

	OrdersCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recharge_orders_cancelled_total",
			Help: "Total number of orders cancelled by their owner",
		},
	)

	OrdersExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recharge_orders_expired_total",
			Help: "Total number of orders expired by the sweep",
		},
	)

	AllocationExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recharge_allocation_exhausted_total",
			Help: "Total number of allocations that found no free decorated amount",
		},
		[]string{"currency"},
	)

	RateRefreshFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recharge_rate_refresh_failures_total",
			Help: "Total number of failed price feed refreshes",
		},
		[]string{"currency"},
	)

	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recharge_notification_failures_total",
			Help: "Total number of failed settlement notifications",
		},
		[]string{"sink"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recharge_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)
)
