package stepper

// Signal types accepted from the checkout page. The page posts these back
// over HTTP when the hosted checkout resolves; "closed" means the window
// went away without any payment outcome, and "activity" is a liveness ping
// that defers the inactivity timeout.
const (
	SignalSuccess  = "success"
	SignalCancel   = "cancel"
	SignalError    = "error"
	SignalClosed   = "closed"
	SignalActivity = "activity"
)

// Signal is an asynchronous outcome message for one checkout step. PlanID
// is the correlation token: the step's cart item id as issued in the
// checkout reference, with the store product id accepted as a fallback.
type Signal struct {
	Type   string `json:"type" validate:"required,oneof=success cancel error closed activity"`
	PlanID string `json:"plan_id" validate:"required"`
	Error  string `json:"error,omitempty"`
}
