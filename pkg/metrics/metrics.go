package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure|error).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloggers_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// Registrations counts registration workflow outcomes
	// (success|duplicate|rolled_back|inconsistent|error).
	Registrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloggers_registrations_total",
			Help: "Total number of registration attempts by outcome",
		},
		[]string{"result"},
	)

	// ConfirmationDispatches counts confirmation code deliveries by kind (send|resend) and result.
	ConfirmationDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloggers_confirmation_dispatches_total",
			Help: "Total number of confirmation code dispatches",
		},
		[]string{"kind", "result"},
	)

	// CompensationFailures counts registrations whose rollback delete failed.
	CompensationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bloggers_registration_compensation_failures_total",
			Help: "Registrations left inconsistent because the compensating delete failed",
		},
	)

	// PurgedAccounts counts unconfirmed accounts removed by maintenance.
	PurgedAccounts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bloggers_unconfirmed_accounts_purged_total",
			Help: "Unconfirmed accounts removed after their code expired",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bloggers_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
