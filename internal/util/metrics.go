package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SalesCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sales_completed_total",
		Help: "Total number of finalized checkouts",
	})

	SalesCancelledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sales_cancelled_total",
		Help: "Total number of cancelled checkouts",
	}, []string{"reason"})

	SaleLinesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sale_lines_total",
		Help: "Total number of persisted sale lines",
	}, []string{"status"})

	CheckoutFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_failures_total",
		Help: "Total number of failed checkout steps",
	}, []string{"reason"})

	CartOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_operations_total",
		Help: "Total number of cart operations",
	}, []string{"op", "result"})

	StockHoldLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_hold_latency_seconds",
		Help:    "Latency of stock hold operations at checkout",
		Buckets: prometheus.DefBuckets,
	})

	HoldsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "holds_expired_total",
		Help: "Total number of invoiced checkouts released by hold expiry",
	})

	StockMirrorErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_mirror_errors_total",
		Help: "Total number of failed Redis stock mirror updates",
	}, []string{"op"})

	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Total number of published sale events",
	}, []string{"type", "result"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "checkout_sessions_active",
		Help: "Number of open checkout sessions",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
