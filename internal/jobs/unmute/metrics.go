package unmute

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sweepsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "roulette_unmute_sweeps_total",
	Help: "Number of unmute sweeps run",
})

var sweepsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "roulette_unmute_sweeps_skipped_total",
	Help: "Number of unmute sweeps skipped by the overlap guard",
})

var timeoutsReversedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "roulette_timeouts_reversed_total",
	Help: "Number of expired timeouts reversed and removed from the ledger",
})

var platformFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "roulette_unmute_platform_failures_total",
	Help: "Number of failed role removals during unmute sweeps",
})

var ledgerAnomaliesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "roulette_unmute_ledger_anomalies_total",
	Help: "Number of ledger removals that found no entry or an unexpected count",
})
