package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bottle_tokens_issued_total",
		Help: "QR tokens issued, by source.",
	}, []string{"source"})

	TokenValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bottle_token_validations_total",
		Help: "Token consumption attempts, by result.",
	}, []string{"result"})

	PointsCredited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bottle_points_credited_total",
		Help: "Points credited to users, by reason.",
	}, []string{"reason"})

	Redemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bottle_redemptions_total",
		Help: "Reward redemption attempts, by result.",
	}, []string{"result"})

	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bottle_redemption_status_transitions_total",
		Help: "Redemption status changes, by target status.",
	}, []string{"status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bottle_http_request_duration_seconds",
		Help:    "HTTP request latency, by route pattern and status code.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
