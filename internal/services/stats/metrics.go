package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var webhookSentTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "roulette_stats_webhook_sent_total",
	Help: "Number of stats webhook deliveries that succeeded",
})

var webhookFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "roulette_stats_webhook_failures_total",
	Help: "Number of stats webhook deliveries that failed",
})
