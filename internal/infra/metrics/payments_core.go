package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

func init() {
	register(
		paymentsTotal,
		paymentsRevenueTotal,
	)
}

var (
	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payments by status (pending/paid/failed/cancelled).",
		},
		[]string{"status"},
	)

	paymentsRevenueTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "The total final price of payments confirmed as paid.",
		},
	)
)

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func AddPaymentRevenue(amount decimal.Decimal) {
	f, _ := amount.Float64()
	paymentsRevenueTotal.Add(f)
}
