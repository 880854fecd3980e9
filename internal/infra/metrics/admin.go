package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(adminCommandTotal) }

var adminCommandTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "admin_command_total",
		Help: "Tracks attempts to use staff endpoints.",
	},
	[]string{"command", "status"}, // status: 'authorized', 'unauthorized'
)

func IncAdminCommand(command, status string) {
	adminCommandTotal.WithLabelValues(norm(command), norm(status)).Inc()
}
