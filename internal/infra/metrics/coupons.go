package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(couponChecksTotal) }

var couponChecksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "coupon_checks_total",
		Help: "Coupon validations and redemptions by outcome.",
	},
	[]string{"op", "result"}, // op: validate|redeem, result: ok|not_found|inactive|window|cap|used
)

func IncCoupon(op, result string) {
	couponChecksTotal.WithLabelValues(norm(op), norm(result)).Inc()
}
