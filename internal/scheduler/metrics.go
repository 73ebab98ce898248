package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waitcast_scheduler_ticks_completed_total",
		Help: "Total number of ticks that ran to completion.",
	})
	ticksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waitcast_scheduler_ticks_failed_total",
		Help: "Total number of ticks aborted before any model ran.",
	})
	ticksSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waitcast_scheduler_ticks_skipped_total",
		Help: "Total number of tick firings skipped by the overlap gate.",
	})
	modelRunsSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waitcast_scheduler_model_runs_succeeded_total",
		Help: "Total number of model invocations whose prediction was persisted.",
	})
	modelRunsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waitcast_scheduler_model_runs_failed_total",
		Help: "Total number of model invocations that failed at any stage.",
	})
	predictionsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "waitcast_scheduler_predictions_stored_total",
		Help: "Total number of predictions written to the store.",
	})
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "waitcast_scheduler_tick_duration_seconds",
		Help:    "Duration of a full tick across all models.",
		Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
	})
)
