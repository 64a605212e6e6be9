package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WalletOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bingo_wallet_operations_total",
		Help: "Wallet operations by transaction type and result",
	}, []string{"type", "result"})

	// WalletFailures counts wallet calls that exhausted their retries on the
	// stake or payout path and need an operator.
	WalletFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bingo_wallet_failures_total",
		Help: "Wallet calls that failed after retries",
	}, []string{"operation"})

	Games = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bingo_games_total",
		Help: "Finished games by outcome",
	}, []string{"outcome"})

	NumbersDrawn = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bingo_numbers_drawn_total",
		Help: "Numbers drawn across all games",
	})

	ConfirmedPlayers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bingo_confirmed_players",
		Help: "Confirmed participants in the current game",
	})

	Claims = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bingo_claims_total",
		Help: "Bingo claims by result",
	}, []string{"result"})

	CheckpointFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bingo_checkpoint_failures_total",
		Help: "Engine snapshots that could not be saved",
	})

	WSConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bingo_websocket_connections",
		Help: "Open player websocket connections",
	})

	WSEventsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bingo_websocket_events_sent_total",
		Help: "Websocket events queued for delivery",
	})

	WSEventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bingo_websocket_events_dropped_total",
		Help: "Websocket events dropped because a send buffer was full",
	})

	HTTPRequests = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bingo_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	Panics = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bingo_http_panics_total",
		Help: "Handler panics recovered by middleware",
	})

	CashierRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bingo_cashier_requests_total",
		Help: "Deposit and withdrawal requests by kind and resulting status",
	}, []string{"kind", "status"})
)

func init() {
	prometheus.MustRegister(
		WalletOperations,
		WalletFailures,
		Games,
		NumbersDrawn,
		ConfirmedPlayers,
		Claims,
		CheckpointFailures,
		WSConnections,
		WSEventsSent,
		WSEventsDropped,
		CashierRequests,
		HTTPRequests,
		Panics,
	)
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
