package metrics

import (
	"edu-access-core/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		subscriptionsExpiredTotal,
		subscriptionTransitionsTotal,
		subscriptionsLive,
		userCachesClearedTotal,
	)
}

var (
	subscriptionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_expired_total",
			Help: "Total number of grants expired by the sweep.",
		},
	)

	subscriptionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_transitions_total",
			Help: "Grant status changes by target status and cause.",
		},
		[]string{"to", "cause"}, // cause: trial, purchase, payment, supersede, sweep
	)

	subscriptionsLive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_live",
			Help: "Current number of live grants by plan code.",
		},
		[]string{"plan"},
	)

	userCachesClearedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "user_subscription_caches_cleared_total",
			Help: "Total number of user cache rows reset after their last grant lapsed.",
		},
	)
)

func IncSubscriptionsExpired(count int64) {
	subscriptionsExpiredTotal.Add(float64(count))
}

func IncTransition(to model.SubscriptionStatus, cause string) {
	subscriptionTransitionsTotal.WithLabelValues(string(to), norm(cause)).Inc()
}

func IncCachesCleared(count int64) {
	userCachesClearedTotal.Add(float64(count))
}

func SetLiveByPlan(counts map[string]int) {
	subscriptionsLive.Reset()
	for plan, n := range counts {
		subscriptionsLive.WithLabelValues(norm(plan)).Set(float64(n))
	}
}
