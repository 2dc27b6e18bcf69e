package domain

import "time"

// Step status constants. A step moves pending -> in_progress and then to a
// terminal completed or failed; verifying is reachable only from
// in_progress when the checkout window closed without an outcome signal.
const (
	StepPending    = "pending"
	StepInProgress = "in_progress"
	StepVerifying  = "verifying"
	StepCompleted  = "completed"
	StepFailed     = "failed"
)

// StepState tracks one cart item's individual checkout attempt.
type StepState struct {
	ItemID       string         `json:"item_id"`
	PlanID       string         `json:"plan_id"` // store product id
	PlanName     string         `json:"plan_name"`
	PlanPrice    float64        `json:"plan_price"`
	IsGift       bool           `json:"is_gift"`
	GiftTo       *GiftRecipient `json:"gift_to,omitempty"`
	Subscription bool           `json:"subscription"`
	Status       string         `json:"status"`
	CheckoutURL  string         `json:"checkout_url,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	RetryCount   int            `json:"retry_count"`
}

// IsTerminal reports whether the step reached a final state.
func (s *StepState) IsTerminal() bool {
	return s.Status == StepCompleted || s.Status == StepFailed
}

// StepperSession is the persisted state of one multi-item checkout run.
// The orchestrator is its sole writer; every transition replaces the whole
// serialized session so a reload resumes from the last applied transition.
type StepperSession struct {
	SessionID        string      `json:"session_id"` // log correlation only
	SteamID          string      `json:"steam_id"`
	SelectedItemIDs  []string    `json:"selected_item_ids"`
	Steps            []StepState `json:"steps"`
	CurrentStepIndex int         `json:"current_step_index"`
	StartedAt        time.Time   `json:"started_at"`
}

// Matches reports whether the session was created for exactly the given
// item-id set, compared order-independently.
func (s *StepperSession) Matches(itemIDs []string) bool {
	if len(s.SelectedItemIDs) != len(itemIDs) {
		return false
	}
	set := make(map[string]int, len(s.SelectedItemIDs))
	for _, id := range s.SelectedItemIDs {
		set[id]++
	}
	for _, id := range itemIDs {
		set[id]--
		if set[id] < 0 {
			return false
		}
	}
	return true
}

// IsExpired reports whether the session is older than maxAge.
func (s *StepperSession) IsExpired(maxAge time.Duration) bool {
	return time.Since(s.StartedAt) > maxAge
}

// CurrentStep returns the step at the current index, or nil when the index
// is out of range.
func (s *StepperSession) CurrentStep() *StepState {
	if s.CurrentStepIndex < 0 || s.CurrentStepIndex >= len(s.Steps) {
		return nil
	}
	return &s.Steps[s.CurrentStepIndex]
}

// NextPendingIndex returns the index of the first pending step at or after
// from, or -1 when none remains.
func (s *StepperSession) NextPendingIndex(from int) int {
	if from < 0 {
		from = 0
	}
	for i := from; i < len(s.Steps); i++ {
		if s.Steps[i].Status == StepPending {
			return i
		}
	}
	return -1
}

// AllCompleted reports whether every step finished successfully.
func (s *StepperSession) AllCompleted() bool {
	for i := range s.Steps {
		if s.Steps[i].Status != StepCompleted {
			return false
		}
	}
	return len(s.Steps) > 0
}

// AllTerminal reports whether every step reached a final state.
func (s *StepperSession) AllTerminal() bool {
	for i := range s.Steps {
		if !s.Steps[i].IsTerminal() {
			return false
		}
	}
	return true
}

// CompletedItemIDs returns the item ids of completed steps, in step order.
func (s *StepperSession) CompletedItemIDs() []string {
	ids := make([]string, 0, len(s.Steps))
	for i := range s.Steps {
		if s.Steps[i].Status == StepCompleted {
			ids = append(ids, s.Steps[i].ItemID)
		}
	}
	return ids
}

// StepByToken returns the index of the step matching a signal correlation
// token. Tokens carry the step's cart item id; the store product id is
// accepted as a fallback for signals produced by older checkout pages.
func (s *StepperSession) StepByToken(token string) int {
	for i := range s.Steps {
		if s.Steps[i].ItemID == token {
			return i
		}
	}
	for i := range s.Steps {
		if s.Steps[i].PlanID == token {
			return i
		}
	}
	return -1
}
