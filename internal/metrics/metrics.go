package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counters
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenthire_job_transitions_total",
			Help: "State machine events by outcome",
		},
		[]string{"event", "result"}, // result: applied, rejected, error
	)

	WebhookAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenthire_webhook_attempts_total",
			Help: "Individual webhook POST attempts by classification",
		},
		[]string{"outcome"}, // success, abort, retry
	)

	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenthire_webhook_deliveries_total",
			Help: "Completed webhook deliveries",
		},
		[]string{"success"},
	)

	DispatchOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenthire_dispatch_outcomes_total",
			Help: "Background dispatch outcomes fed back into the state machine",
		},
		[]string{"kind"},
	)

	TrustRecomputesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenthire_trust_recomputes_total",
			Help: "Trust tier recomputations by resulting tier",
		},
		[]string{"tier"},
	)

	ChallengesIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agenthire_wallet_challenges_issued_total",
			Help: "Wallet sign-in challenges issued",
		},
	)

	WorkerMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenthire_worker_messages_total",
			Help: "Queued dispatch messages handled by the worker",
		},
		[]string{"result"}, // ack, requeue, drop
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agenthire_http_requests_total",
			Help: "HTTP requests served by route and status code",
		},
		[]string{"method", "route", "status"},
	)

	// Histograms
	WebhookDeliveryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agenthire_webhook_delivery_duration_seconds",
			Help:    "Wall time of a full webhook delivery including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	PaymentVerificationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agenthire_payment_verification_duration_seconds",
			Help:    "Latency of the external payment verifier",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
