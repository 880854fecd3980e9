package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(aiQuotaDecisionsTotal, aiCallsTotal) }

var (
	aiQuotaDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_quota_decisions_total",
			Help: "AI quota checks by plan and decision.",
		},
		[]string{"plan", "decision"}, // decision: allowed|denied
	)

	aiCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_calls_total",
			Help: "Metered calls into the answer pipeline by outcome.",
		},
		[]string{"success"},
	)
)

func IncQuotaDecision(plan string, allowed bool) {
	d := "denied"
	if allowed {
		d = "allowed"
	}
	aiQuotaDecisionsTotal.WithLabelValues(norm(plan), d).Inc()
}

func IncAICall(success bool) {
	s := "false"
	if success {
		s = "true"
	}
	aiCallsTotal.WithLabelValues(s).Inc()
}
