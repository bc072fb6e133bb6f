package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"roulette/internal/game"
)

const namespace = "roulette"

// Metrics holds the collectors for spins and open sessions on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	spins   *prometheus.CounterVec
	wagered prometheus.Counter
	paid    prometheus.Counter
	bets    prometheus.Histogram
}

// New registers the collectors. sessions and clients are sampled on scrape.
func New(sessions, clients func() int) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry: reg,
		spins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spins_total",
			Help:      "Resolved spins by result and pocket colour.",
		}, []string{"result", "color"}),
		wagered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wagered_total",
			Help:      "Sum of stakes committed by resolved spins.",
		}),
		paid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "paid_total",
			Help:      "Sum of payouts credited.",
		}),
		bets: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bet_amount",
			Help:      "Distribution of stake sizes.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
	reg.MustRegister(m.spins, m.wagered, m.paid, m.bets)

	if sessions != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_sessions",
			Help:      "Sessions currently open.",
		}, func() float64 { return float64(sessions()) }))
	}
	if clients != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected websocket clients.",
		}, func() float64 { return float64(clients()) }))
	}
	return m
}

func (m *Metrics) Name() string { return "prometheus" }

func (m *Metrics) RecordSpin(_ context.Context, rec game.SpinRecord) error {
	result := "loss"
	if rec.Won() {
		result = "win"
	}
	m.spins.WithLabelValues(result, game.PocketColor(rec.Number)).Inc()
	m.wagered.Add(float64(rec.Bet))
	m.paid.Add(float64(rec.Payout))
	m.bets.Observe(float64(rec.Bet))
	return nil
}
