package service

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the money-movement counters exported on /metrics.
type Metrics struct {
	Deposits        *prometheus.CounterVec
	DepositsSettled *prometheus.CounterVec
	Withdrawals     *prometheus.CounterVec
	Exchanges       *prometheus.CounterVec
	Callbacks       *prometheus.CounterVec
	RateFetches     *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec
	Notifications   *prometheus.CounterVec
}

// NewMetrics creates and registers the service metrics.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		Deposits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pixwallet_deposits_created_total",
				Help: "PIX charges created, by instruction source.",
			},
			[]string{"source"},
		),
		DepositsSettled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pixwallet_deposits_settled_total",
				Help: "Deposits moved out of PENDING, by path.",
			},
			[]string{"path"},
		),
		Withdrawals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pixwallet_withdrawals_total",
				Help: "Withdrawals by final status.",
			},
			[]string{"status"},
		),
		Exchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pixwallet_exchanges_total",
				Help: "Exchange attempts by currency pair and result.",
			},
			[]string{"pair", "result"},
		),
		Callbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pixwallet_provider_callbacks_total",
				Help: "Provider callbacks by outcome.",
			},
			[]string{"outcome"},
		),
		RateFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pixwallet_rate_lookups_total",
				Help: "Rate oracle lookups by cache status.",
			},
			[]string{"status"},
		),
		ProviderLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pixwallet_provider_call_duration_seconds",
				Help:    "PIX provider call duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "result"},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pixwallet_notifications_total",
				Help: "Wallet events pushed, by event type.",
			},
			[]string{"event"},
		),
	}

	registry.MustRegister(
		m.Deposits, m.DepositsSettled, m.Withdrawals, m.Exchanges,
		m.Callbacks, m.RateFetches, m.ProviderLatency, m.Notifications,
	)
	return m
}

// NewNopMetrics returns metrics registered on a private registry.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
