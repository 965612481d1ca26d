// Package metrics exposes the coordinator's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidfleet_jobs_created_total",
		Help: "Total number of jobs enqueued",
	})

	JobsAssigned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidfleet_jobs_assigned_total",
		Help: "Total number of jobs assigned to workers",
	})

	JobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidfleet_jobs_completed_total",
		Help: "Total number of jobs reported completed",
	})

	JobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidfleet_jobs_failed_total",
		Help: "Total number of jobs reported failed",
	})

	JobsReleased = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidfleet_jobs_released_total",
		Help: "Total number of orphaned jobs returned to the pending pool",
	})

	Heartbeats = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidfleet_worker_heartbeats_total",
		Help: "Total number of worker heartbeats received",
	})

	WorkersOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidfleet_workers_online",
		Help: "Number of workers currently considered online",
	})

	CredentialsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidfleet_credentials_issued_total",
		Help: "Total number of platform credentials brokered, by platform",
	}, []string{"platform"})

	CredentialsDenied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidfleet_credentials_denied_total",
		Help: "Total number of credential requests refused",
	})
)
