package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pyorchestrator_runs_total",
			Help: "Total number of project runs by terminal status.",
		},
		[]string{"project_id", "status"},
	)

	RunDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pyorchestrator_run_duration_seconds",
			Help:    "Duration of project runs in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"project_id", "status"},
	)

	RunsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pyorchestrator_runs_active",
			Help: "Number of runs currently executing.",
		},
	)

	RunQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pyorchestrator_run_queue_depth",
			Help: "Number of dispatched runs waiting for a worker.",
		},
	)

	EnvironmentPrepareDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pyorchestrator_environment_prepare_duration_seconds",
			Help:    "Duration of environment preparation in seconds.",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"environment", "status"},
	)

	SourceSyncsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pyorchestrator_source_syncs_total",
			Help: "Total number of remote source syncs by action and status.",
		},
		[]string{"action", "status"},
	)

	ScheduleFiresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pyorchestrator_schedule_fires_total",
			Help: "Total number of schedule fires.",
		},
		[]string{"schedule_id"},
	)

	ScheduledJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pyorchestrator_scheduled_jobs",
			Help: "Number of jobs registered with the scheduler.",
		},
	)
)

// Register registers all custom pyorchestrator metrics with the default Prometheus registry.
func Register() {
	prometheus.MustRegister(
		RunsTotal,
		RunDurationSeconds,
		RunsActive,
		RunQueueDepth,
		EnvironmentPrepareDurationSeconds,
		SourceSyncsTotal,
		ScheduleFiresTotal,
		ScheduledJobs,
	)
}
