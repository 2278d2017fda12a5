package bank

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bank_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bank_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	signInTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bank_signin_total",
			Help: "Sign in attempts by outcome",
		},
		[]string{"outcome"},
	)

	sessionRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bank_session_rejections_total",
			Help: "Requests rejected by the session middleware",
		},
		[]string{"reason"},
	)

	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bank_user_transitions_total",
			Help: "Account lifecycle transitions",
		},
		[]string{"from", "to"},
	)

	relayDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bank_relay_deliveries_total",
			Help: "Notifications and messages written by the relay",
		},
		[]string{"kind"},
	)

	relayFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bank_relay_failures_total",
			Help: "Notifications and messages the relay failed to write",
		},
		[]string{"kind"},
	)
)

const (
	relayKindNotification = "notification"
	relayKindMessage      = "message"
)

func statusLabel(code int) string {
	return strconv.Itoa(code)
}
