package stepper

import "time"

// Options holds the orchestrator's timing and bound parameters. All values
// are injected so deployments (and tests) can tune them.
type Options struct {
	// SettleDelay is the pause before a pending step starts automatically,
	// giving the client a beat to render the transition.
	SettleDelay time.Duration

	// SessionTimeout is the hard limit on one open checkout attempt.
	SessionTimeout time.Duration

	// InactivityTimeout fails the attempt when no activity signal arrives
	// for this long. Whichever of the two timeouts fires first wins.
	InactivityTimeout time.Duration

	// CloseDelay is the pause between the last step completing and the
	// session closing, so the success state can render.
	CloseDelay time.Duration

	// VerifyAttempts bounds the purchase-record polls for an ambiguous
	// outcome.
	VerifyAttempts int

	// VerifyDelay is the fixed pause between verification polls.
	VerifyDelay time.Duration

	// MaxRetries caps explicit retries per step.
	MaxRetries int

	// SessionMaxAge discards persisted sessions older than this on restore.
	SessionMaxAge time.Duration

	// Currency for checkout sessions.
	Currency string
}

// DefaultOptions returns the production parameters.
func DefaultOptions() Options {
	return Options{
		SettleDelay:       800 * time.Millisecond,
		SessionTimeout:    5 * time.Minute,
		InactivityTimeout: 2 * time.Minute,
		CloseDelay:        1500 * time.Millisecond,
		VerifyAttempts:    5,
		VerifyDelay:       2 * time.Second,
		MaxRetries:        3,
		SessionMaxAge:     24 * time.Hour,
		Currency:          "USD",
	}
}
