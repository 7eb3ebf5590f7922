package timeouts

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var triggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "roulette_triggers_total",
	Help: "Number of inbound messages seen by the roulette, by outcome",
}, []string{"outcome"})

var timeoutsAppliedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "roulette_timeouts_applied_total",
	Help: "Number of native timeouts applied",
})

var protectedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "roulette_protected_total",
	Help: "Number of rolls that landed on a protected member",
})

var unsupportedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "roulette_unsupported_duration_total",
	Help: "Number of rolls longer than the native timeout ceiling",
})

var platformFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "roulette_platform_failures_total",
	Help: "Number of failed platform calls while applying timeouts",
}, []string{"op"})

var ledgerAnomaliesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "roulette_ledger_anomalies_total",
	Help: "Number of ledger writes that changed an unexpected number of entries",
})
