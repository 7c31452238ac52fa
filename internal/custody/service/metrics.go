package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "custody_transitions_total",
		Help: "Custody transitions attempted, by kind and outcome.",
	}, []string{"kind", "outcome"})

	commitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "custody_commit_duration_seconds",
		Help:    "Time spent committing a transition to the ledger store.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
)

func outcomeOf(err error, code string) string {
	switch {
	case err == nil:
		return "ok"
	case code != "":
		return code
	default:
		return "error"
	}
}
