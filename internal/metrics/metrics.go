package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HostsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "provisioner_hosts_total",
		Help: "Number of validated hosts in the current run.",
	})
	ResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provisioner_results_total",
		Help: "Total number of per-host provisioning results by status.",
	}, []string{"status"})
	TransportRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "provisioner_transport_retries_total",
		Help: "Total number of remote command attempts that were retried.",
	})
	TasksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "provisioner_tasks_in_flight",
		Help: "Number of provisioning tasks currently running.",
	})
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "provisioner_run_duration_seconds",
		Help:    "Wall-clock duration of full provisioning runs.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
	TaskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "provisioner_task_duration_seconds",
		Help:    "Duration of individual host provisioning tasks.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
)
