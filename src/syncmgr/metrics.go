package syncmgr

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	drainsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "olympia_sync_drains_total",
		Help: "Drains of the offline queue by final status.",
	}, []string{"status"})
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "olympia_sync_attempts_total",
		Help: "Replayed offline attempts by outcome.",
	}, []string{"outcome"})
)
