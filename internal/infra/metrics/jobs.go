package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobRunsTotal) }

var jobRunsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "job_runs_total",
		Help: "Background job runs, labeled by job and status.",
	},
	[]string{"job", "status"}, // job: sweep|rebuild_cache, status: ok|failed|skipped
)

func IncJobRun(job, status string) {
	jobRunsTotal.WithLabelValues(norm(job), norm(status)).Inc()
}
