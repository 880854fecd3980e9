package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(loginsTotal, deviceRejectionsTotal) }

var (
	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by result.",
		},
		[]string{"result"}, // ok|bad_credentials|too_many_devices|throttled
	)

	deviceRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "device_rejections_total",
			Help: "Requests rejected by the device guard.",
		},
		[]string{"reason"}, // missing|mismatch
	)
)

func IncLogin(result string) {
	loginsTotal.WithLabelValues(norm(result)).Inc()
}

func IncDeviceRejection(reason string) {
	deviceRejectionsTotal.WithLabelValues(norm(reason)).Inc()
}
