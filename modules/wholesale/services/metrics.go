package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	jobsTotal       *prometheus.CounterVec
	rowsTotal       *prometheus.CounterVec
	referencesTotal *prometheus.CounterVec

	jobDuration *prometheus.HistogramVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		jobsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wholesale",
			Name:      "jobs_total",
			Help:      "Total number of finished wholesale import jobs.",
		}, []string{"action", "result"}),
		rowsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wholesale",
			Name:      "rows_total",
			Help:      "Total number of imported or rejected model rows.",
		}, []string{"model", "result"}),
		referencesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wholesale",
			Name:      "references_created_total",
			Help:      "Total number of relation targets created from by-name references.",
		}, []string{"model"}),
		jobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wholesale",
			Name:      "job_duration_seconds",
			Help:      "Wall time of wholesale import jobs.",
			Buckets: []float64{
				0.01, 0.05,
				0.1, 0.5,
				1, 2, 5, 10,
				30, 60, 120, 300,
			},
		}, []string{"action"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
