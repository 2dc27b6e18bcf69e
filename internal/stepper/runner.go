package stepper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/tamoortahir09/atlas-store/internal/domain"
	"github.com/tamoortahir09/atlas-store/internal/paynow"
	apperrors "github.com/tamoortahir09/atlas-store/pkg/errors"
)

// Step failure messages. Each failure mode gets a distinct, human-readable
// message so the client can render the actual cause next to the step.
const (
	msgCancelled       = "cancelled by user"
	msgSkipped         = "skipped by user"
	msgSessionTimeout  = "the checkout window was open too long and has been closed"
	msgInactivity      = "the checkout was closed after too long without activity"
	msgProviderError   = "the payment provider reported an error"
	msgGiftUnconfirmed = "the checkout window closed before the purchase was confirmed; gift purchases cannot be verified automatically, so this step was not completed"
	msgUnconfirmed     = "we could not confirm your payment; please contact support if you believe you were charged"
	msgItemUnavailable = "this item is no longer available for checkout"
)

type eventKind int

const (
	evSignal eventKind = iota
	evTimer
	evCheckoutResult
	evVerifyDone
	evRetry
	evSkip
	evCancel
)

type timerKind int

const (
	timerSettle timerKind = iota
	timerSession
	timerInactivity
	timerClose
)

// runnerEvent is one unit of work for the runner goroutine. Signals, timer
// fires, async call results, and user commands all flow through the same
// channel, which is what keeps the per-step state machine strictly
// sequential.
type runnerEvent struct {
	kind  eventKind
	timer timerKind

	// gen stamps timer fires and async results; events from a superseded
	// step attempt are dropped.
	gen      uint64
	inactSeq uint64

	signal Signal
	itemID string

	checkoutURL string
	checkoutErr error

	verified bool
	polls    int

	reply chan error
}

// runner drives one user's stepper session. It is the sole writer of the
// session: every mutation happens on the runner goroutine and is persisted
// before the next event is processed.
type runner struct {
	steamID    string
	storeToken string

	opts     Options
	repo     Repository
	checkout CheckoutCreator
	verifier PurchaseVerifier
	cart     CartNotifier
	producer EventPublisher
	logger   *slog.Logger

	mu      sync.RWMutex
	session *domain.StepperSession

	events chan runnerEvent
	done   chan struct{}

	baseCtx context.Context
	onClose func(steamID string)

	gen      uint64
	inactSeq uint64
	closed   bool
}

func newRunner(baseCtx context.Context, steamID, storeToken string, session *domain.StepperSession, m *Manager) *runner {
	return &runner{
		steamID:    steamID,
		storeToken: storeToken,
		opts:       m.opts,
		repo:       m.repo,
		checkout:   m.checkout,
		verifier:   m.verifier,
		cart:       m.cart,
		producer:   m.producer,
		logger:     m.logger,
		session:    session,
		events:     make(chan runnerEvent, 32),
		done:       make(chan struct{}),
		baseCtx:    baseCtx,
		onClose:    m.removeRunner,
	}
}

// scheduleInitial arms the first automatic transition: the settling delay
// for a pending current step, or the close delay when a restored session
// turns out to be fully completed already.
func (r *runner) scheduleInitial() {
	if r.session.AllCompleted() {
		r.scheduleTimer(timerClose, r.opts.CloseDelay, r.gen, 0)
		return
	}
	if step := r.session.CurrentStep(); step != nil && step.Status == domain.StepPending {
		r.scheduleTimer(timerSettle, r.opts.SettleDelay, r.gen, 0)
	}
}

func (r *runner) loop() {
	for {
		select {
		case ev := <-r.events:
			err := r.handle(ev)
			if ev.reply != nil {
				ev.reply <- err
			}
			if r.closed {
				return
			}
		case <-r.baseCtx.Done():
			// Shutdown: the session is already persisted after its last
			// transition, so a restart resumes from here.
			return
		}
	}
}

// send delivers an event to the runner, giving up if the runner is gone or
// the caller's context expires.
func (r *runner) send(ctx context.Context, ev runnerEvent) error {
	select {
	case r.events <- ev:
		return nil
	case <-r.done:
		return apperrors.NotFound("checkout session", r.steamID)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ask sends an event and waits for the runner's verdict.
func (r *runner) ask(ctx context.Context, ev runnerEvent) error {
	ev.reply = make(chan error, 1)
	if err := r.send(ctx, ev); err != nil {
		return err
	}
	select {
	case err := <-ev.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// snapshot returns a deep copy of the session for read-only callers.
func (r *runner) snapshot() *domain.StepperSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	copied := *r.session
	copied.Steps = make([]domain.StepState, len(r.session.Steps))
	copy(copied.Steps, r.session.Steps)
	copied.SelectedItemIDs = append([]string(nil), r.session.SelectedItemIDs...)
	return &copied
}

func (r *runner) handle(ev runnerEvent) error {
	switch ev.kind {
	case evSignal:
		return r.handleSignal(ev.signal)
	case evTimer:
		r.handleTimer(ev)
		return nil
	case evCheckoutResult:
		r.handleCheckoutResult(ev)
		return nil
	case evVerifyDone:
		r.handleVerifyDone(ev)
		return nil
	case evRetry:
		return r.handleRetry(ev.itemID)
	case evSkip:
		return r.handleSkip(ev.itemID)
	case evCancel:
		r.closeSession(true)
		return nil
	default:
		return nil
	}
}

// --- signals ---

func (r *runner) handleSignal(sig Signal) error {
	if sig.Type == SignalActivity {
		// Liveness ping from the checkout page: push the inactivity
		// deadline out without touching the hard session timeout.
		if step := r.session.CurrentStep(); step != nil && step.Status == domain.StepInProgress {
			r.inactSeq++
			r.scheduleTimer(timerInactivity, r.opts.InactivityTimeout, r.gen, r.inactSeq)
		}
		return nil
	}

	idx := r.session.StepByToken(sig.PlanID)
	if idx < 0 {
		return apperrors.NotFound("checkout step", sig.PlanID)
	}
	step := &r.session.Steps[idx]
	if step.IsTerminal() {
		// Late signal for a finished step; nothing to apply.
		r.logger.Debug("ignoring signal for terminal step",
			slog.String("steam_id", r.steamID),
			slog.String("item_id", step.ItemID),
			slog.String("signal", sig.Type),
		)
		return nil
	}
	if idx != r.session.CurrentStepIndex {
		// Only the step whose checkout window is open can produce an
		// outcome; applying one to a pending step would disarm the live
		// step's timers and break one-at-a-time progression.
		r.logger.Debug("ignoring signal for non-current step",
			slog.String("steam_id", r.steamID),
			slog.String("item_id", step.ItemID),
			slog.String("signal", sig.Type),
		)
		return nil
	}

	switch sig.Type {
	case SignalSuccess:
		r.completeStep(idx)
	case SignalCancel:
		r.failStep(idx, msgCancelled, false)
	case SignalError:
		msg := sig.Error
		if msg == "" {
			msg = msgProviderError
		}
		r.failStep(idx, msg, true)
	case SignalClosed:
		r.handleWindowClosed(idx)
	default:
		return apperrors.InvalidInput("unknown signal type " + sig.Type)
	}
	return nil
}

// handleWindowClosed resolves the ambiguous no-outcome case. Non-gift steps
// enter verification polling; a gift never shows up in the purchaser's own
// record, so a gift step fails immediately without a single poll.
func (r *runner) handleWindowClosed(idx int) {
	step := &r.session.Steps[idx]
	if step.Status != domain.StepInProgress {
		return
	}

	if step.IsGift {
		r.failStep(idx, msgGiftUnconfirmed, true)
		return
	}

	r.gen++
	r.mu.Lock()
	step.Status = domain.StepVerifying
	r.mu.Unlock()
	r.persist()

	r.logger.Info("checkout window closed without outcome, verifying purchase",
		slog.String("steam_id", r.steamID),
		slog.String("item_id", step.ItemID),
		slog.String("plan_id", step.PlanID),
	)

	go r.verify(r.gen, step.PlanID)
}

// verify polls the customer's purchase record with a fixed delay between
// bounded attempts, then reports the outcome back to the runner.
func (r *runner) verify(gen uint64, productID string) {
	matched := false
	polls := 0

	for polls < r.opts.VerifyAttempts {
		select {
		case <-time.After(r.opts.VerifyDelay):
		case <-r.done:
			return
		case <-r.baseCtx.Done():
			return
		}

		polls++
		verificationPolls.Inc()

		found, err := r.verifier.HasPurchase(r.baseCtx, r.storeToken, productID)
		if err != nil {
			r.logger.Warn("verification poll failed",
				slog.String("steam_id", r.steamID),
				slog.String("plan_id", productID),
				slog.Int("poll", polls),
				slog.String("error", err.Error()),
			)
			continue
		}
		if found {
			matched = true
			break
		}
	}

	ev := runnerEvent{kind: evVerifyDone, gen: gen, verified: matched, polls: polls}
	select {
	case r.events <- ev:
	case <-r.done:
	case <-r.baseCtx.Done():
	}
}

func (r *runner) handleVerifyDone(ev runnerEvent) {
	if ev.gen != r.gen {
		return
	}
	idx := r.session.CurrentStepIndex
	step := r.session.CurrentStep()
	if step == nil || step.Status != domain.StepVerifying {
		return
	}

	if ev.verified {
		r.logger.Info("purchase confirmed by verification",
			slog.String("steam_id", r.steamID),
			slog.String("item_id", step.ItemID),
			slog.Int("polls", ev.polls),
		)
		r.completeStep(idx)
		return
	}
	r.failStep(idx, msgUnconfirmed, true)
}

// --- timers ---

func (r *runner) scheduleTimer(kind timerKind, d time.Duration, gen, inactSeq uint64) {
	ev := runnerEvent{kind: evTimer, timer: kind, gen: gen, inactSeq: inactSeq}
	time.AfterFunc(d, func() {
		select {
		case r.events <- ev:
		case <-r.done:
		case <-r.baseCtx.Done():
		}
	})
}

func (r *runner) handleTimer(ev runnerEvent) {
	if ev.gen != r.gen {
		return
	}

	switch ev.timer {
	case timerSettle:
		r.startCurrentStep()
	case timerSession:
		if step := r.session.CurrentStep(); step != nil && step.Status == domain.StepInProgress {
			r.failStep(r.session.CurrentStepIndex, msgSessionTimeout, true)
		}
	case timerInactivity:
		if ev.inactSeq != r.inactSeq {
			return
		}
		if step := r.session.CurrentStep(); step != nil && step.Status == domain.StepInProgress {
			r.failStep(r.session.CurrentStepIndex, msgInactivity, true)
		}
	case timerClose:
		r.closeSession(false)
	}
}

// --- step lifecycle ---

// startCurrentStep begins checkout for the current pending step: the
// hosted session is created asynchronously and the result posted back.
func (r *runner) startCurrentStep() {
	idx := r.session.CurrentStepIndex
	step := r.session.CurrentStep()
	if step == nil || step.Status != domain.StepPending {
		return
	}

	// Defensive: a step can only be attempted with a linked store product.
	if step.PlanID == "" {
		r.failStep(idx, msgItemUnavailable, false)
		return
	}

	r.gen++
	r.mu.Lock()
	step.Status = domain.StepInProgress
	step.ErrorMessage = ""
	step.CheckoutURL = ""
	r.mu.Unlock()
	r.persist()

	r.logger.Info("starting checkout step",
		slog.String("steam_id", r.steamID),
		slog.String("session_id", r.session.SessionID),
		slog.String("item_id", step.ItemID),
		slog.String("plan_id", step.PlanID),
		slog.Int("step", idx),
	)

	req := paynow.CheckoutRequest{
		Lines: []paynow.CheckoutLine{{
			ProductID:    step.PlanID,
			Quantity:     1,
			Subscription: step.Subscription,
		}},
		Currency: r.opts.Currency,
		// The cart item id travels as the correlation token and comes back
		// on every outcome signal.
		ReferenceID: step.ItemID,
	}
	if step.IsGift && step.GiftTo != nil {
		req.Lines[0].GiftTo = step.GiftTo.ID
	}

	gen := r.gen
	go func() {
		session, err := r.checkout.CreateCheckout(r.baseCtx, r.storeToken, req)
		ev := runnerEvent{kind: evCheckoutResult, gen: gen, checkoutErr: err}
		if err == nil {
			ev.checkoutURL = session.URL
		}
		select {
		case r.events <- ev:
		case <-r.done:
		case <-r.baseCtx.Done():
		}
	}()
}

func (r *runner) handleCheckoutResult(ev runnerEvent) {
	if ev.gen != r.gen {
		return
	}
	idx := r.session.CurrentStepIndex
	step := r.session.CurrentStep()
	if step == nil || step.Status != domain.StepInProgress {
		return
	}

	if ev.checkoutErr != nil {
		// Synchronous creation failure: the step fails immediately with
		// the transport/session cause, no timeout is armed.
		var appErr *apperrors.AppError
		msg := "could not create a checkout session"
		if errors.As(ev.checkoutErr, &appErr) {
			msg = appErr.Message
		}
		if errors.Is(ev.checkoutErr, apperrors.ErrUnauthorized) {
			r.failStep(idx, msg, false)
			return
		}
		r.failStep(idx, msg, true)
		return
	}

	r.mu.Lock()
	step.CheckoutURL = ev.checkoutURL
	r.mu.Unlock()
	r.persist()

	// Two independent timeouts; whichever fires first fails the step.
	r.inactSeq++
	r.scheduleTimer(timerSession, r.opts.SessionTimeout, r.gen, 0)
	r.scheduleTimer(timerInactivity, r.opts.InactivityTimeout, r.gen, r.inactSeq)
}

func (r *runner) completeStep(idx int) {
	// Timers and in-flight results are only armed for the current step;
	// resolving any other step must leave them undisturbed.
	current := idx == r.session.CurrentStepIndex
	if current {
		r.gen++
	}
	r.mu.Lock()
	step := &r.session.Steps[idx]
	step.Status = domain.StepCompleted
	step.ErrorMessage = ""
	r.mu.Unlock()
	r.persist()

	stepsTerminal.WithLabelValues(domain.StepCompleted).Inc()
	r.publishStep(step)

	r.logger.Info("checkout step completed",
		slog.String("steam_id", r.steamID),
		slog.String("session_id", r.session.SessionID),
		slog.String("item_id", step.ItemID),
	)

	if current {
		r.advance()
	}
}

// failStep marks a step failed. countRetry increments the retry counter for
// failures that consumed an attempt; a user cancel does not.
func (r *runner) failStep(idx int, message string, countRetry bool) {
	current := idx == r.session.CurrentStepIndex
	if current {
		r.gen++
	}
	r.mu.Lock()
	step := &r.session.Steps[idx]
	step.Status = domain.StepFailed
	step.ErrorMessage = message
	if countRetry {
		step.RetryCount++
	}
	r.mu.Unlock()
	r.persist()

	stepsTerminal.WithLabelValues(domain.StepFailed).Inc()
	r.publishStep(step)

	r.logger.Warn("checkout step failed",
		slog.String("steam_id", r.steamID),
		slog.String("session_id", r.session.SessionID),
		slog.String("item_id", step.ItemID),
		slog.String("reason", message),
		slog.Int("retry_count", step.RetryCount),
	)

	if current {
		r.advance()
	}
}

// advance moves to the next pending step, or schedules session close when
// everything completed. With failed steps left and nothing pending, the
// session stays open so the user can retry, skip, or cancel.
func (r *runner) advance() {
	if r.session.AllCompleted() {
		r.scheduleTimer(timerClose, r.opts.CloseDelay, r.gen, 0)
		return
	}

	next := r.session.NextPendingIndex(0)
	if next < 0 {
		return
	}

	r.mu.Lock()
	r.session.CurrentStepIndex = next
	r.mu.Unlock()
	r.persist()
	r.scheduleTimer(timerSettle, r.opts.SettleDelay, r.gen, 0)
}

// --- commands ---

func (r *runner) handleRetry(itemID string) error {
	idx := r.session.StepByToken(itemID)
	if idx < 0 {
		return apperrors.NotFound("checkout step", itemID)
	}
	step := &r.session.Steps[idx]
	if step.Status != domain.StepFailed {
		return apperrors.InvalidInput("only a failed step can be retried")
	}
	if step.RetryCount >= r.opts.MaxRetries {
		return apperrors.RetryExhausted(step.PlanName)
	}
	if cur := r.session.CurrentStep(); cur != nil &&
		(cur.Status == domain.StepInProgress || cur.Status == domain.StepVerifying) {
		return apperrors.InvalidInput("another checkout step is still in progress")
	}

	r.gen++
	r.mu.Lock()
	step.Status = domain.StepPending
	step.ErrorMessage = ""
	r.session.CurrentStepIndex = idx
	r.mu.Unlock()
	r.persist()

	r.scheduleTimer(timerSettle, r.opts.SettleDelay, r.gen, 0)
	return nil
}

func (r *runner) handleSkip(itemID string) error {
	idx := r.session.StepByToken(itemID)
	if idx < 0 {
		return apperrors.NotFound("checkout step", itemID)
	}
	step := &r.session.Steps[idx]
	if step.Status == domain.StepCompleted {
		return apperrors.InvalidInput("a completed step cannot be skipped")
	}
	if step.Status == domain.StepFailed {
		// Already failed; move on unless a live step is mid-flight.
		if cur := r.session.CurrentStep(); cur != nil &&
			(cur.Status == domain.StepInProgress || cur.Status == domain.StepVerifying) {
			return nil
		}
		r.gen++
		r.advance()
		return nil
	}

	r.failStep(idx, msgSkipped, false)
	return nil
}

// --- close ---

// closeSession reports the completed subset, clears the persisted session,
// and retires the runner. Any payment already settled on the provider side
// stays settled; cancellation only stops the client-side wait.
func (r *runner) closeSession(cancelled bool) {
	if r.closed {
		return
	}
	r.closed = true
	r.gen++

	completed := r.session.CompletedItemIDs()

	outcome := outcomeCompleted
	switch {
	case cancelled:
		outcome = outcomeCancelled
	case !r.session.AllCompleted():
		outcome = outcomePartial
	}
	sessionsClosed.WithLabelValues(outcome).Inc()

	if err := r.cart.MarkItemsPurchased(r.baseCtx, r.steamID, completed); err != nil {
		r.logger.Error("failed to report purchased items to cart",
			slog.String("steam_id", r.steamID),
			slog.String("error", err.Error()),
		)
	}

	if err := r.producer.PublishCheckoutClosed(r.baseCtx, r.session, completed, cancelled); err != nil {
		r.logger.Error("failed to publish checkout.closed event",
			slog.String("steam_id", r.steamID),
			slog.String("error", err.Error()),
		)
	}

	if err := r.repo.DeleteSession(r.baseCtx, r.steamID); err != nil {
		r.logger.Error("failed to delete persisted session",
			slog.String("steam_id", r.steamID),
			slog.String("error", err.Error()),
		)
	}

	r.logger.Info("checkout session closed",
		slog.String("steam_id", r.steamID),
		slog.String("session_id", r.session.SessionID),
		slog.String("outcome", outcome),
		slog.Int("completed", len(completed)),
	)

	r.onClose(r.steamID)
	close(r.done)
}

// --- helpers ---

func (r *runner) persist() {
	if err := r.repo.SaveSession(r.baseCtx, r.session); err != nil {
		r.logger.Error("failed to persist stepper session",
			slog.String("steam_id", r.steamID),
			slog.String("session_id", r.session.SessionID),
			slog.String("error", err.Error()),
		)
	}
}

func (r *runner) publishStep(step *domain.StepState) {
	if err := r.producer.PublishCheckoutStep(r.baseCtx, r.session, step); err != nil {
		r.logger.Error("failed to publish checkout.step event",
			slog.String("steam_id", r.steamID),
			slog.String("error", err.Error()),
		)
	}
}
