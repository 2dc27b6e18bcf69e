package stepper

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_sessions_started_total",
		Help: "Checkout sessions created or resumed",
	})

	sessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_sessions_closed_total",
		Help: "Checkout sessions closed, by outcome",
	}, []string{"outcome"})

	stepsTerminal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_steps_total",
		Help: "Checkout steps reaching a terminal state, by status",
	}, []string{"status"})

	verificationPolls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkout_verification_polls_total",
		Help: "Purchase-record polls issued while verifying ambiguous outcomes",
	})
)

// Session close outcomes.
const (
	outcomeCompleted = "completed"
	outcomePartial   = "partial"
	outcomeCancelled = "cancelled"
)
