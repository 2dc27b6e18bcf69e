package stepper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tamoortahir09/atlas-store/internal/domain"
	"github.com/tamoortahir09/atlas-store/internal/paynow"
	apperrors "github.com/tamoortahir09/atlas-store/pkg/errors"
)

// CheckoutCreator creates hosted checkout sessions with the payment provider.
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, storeToken string, req paynow.CheckoutRequest) (*paynow.CheckoutSession, error)
}

// PurchaseVerifier checks the customer's own purchase record for a product,
// used to resolve ambiguous checkout outcomes.
type PurchaseVerifier interface {
	HasPurchase(ctx context.Context, storeToken, productID string) (bool, error)
}

// CartNotifier receives the completed item ids when a session closes.
type CartNotifier interface {
	MarkItemsPurchased(ctx context.Context, steamID string, itemIDs []string) error
}

// CartService is the slice of the cart the orchestrator depends on.
type CartService interface {
	CartNotifier
	GetCart(ctx context.Context, steamID string) (*domain.Cart, error)
}

// EventPublisher publishes checkout lifecycle events.
type EventPublisher interface {
	PublishCheckoutStarted(ctx context.Context, session *domain.StepperSession) error
	PublishCheckoutStep(ctx context.Context, session *domain.StepperSession, step *domain.StepState) error
	PublishCheckoutClosed(ctx context.Context, session *domain.StepperSession, completedItemIDs []string, cancelled bool) error
}

// Manager owns the active stepper sessions, one runner goroutine per user.
// All mutation of a session happens on its runner; the manager only routes
// commands and signals to it.
type Manager struct {
	repo     Repository
	checkout CheckoutCreator
	verifier PurchaseVerifier
	cart     CartService
	producer EventPublisher
	logger   *slog.Logger
	opts     Options

	mu      sync.Mutex
	runners map[string]*runner

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewManager creates a stepper manager.
func NewManager(repo Repository, checkout CheckoutCreator, verifier PurchaseVerifier, cart CartService, producer EventPublisher, logger *slog.Logger, opts Options) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		repo:     repo,
		checkout: checkout,
		verifier: verifier,
		cart:     cart,
		producer: producer,
		logger:   logger,
		opts:     opts,
		runners:  make(map[string]*runner),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// StartSession begins or resumes a multi-item checkout for the given cart
// item ids. A persisted session for exactly the same item set (order
// independent) that is young enough is resumed; anything else is discarded
// and a fresh session created. Validation is fail-fast: if any item lacks a
// store product link or is a gift without a recipient, no session is
// created and no checkout is attempted.
func (m *Manager) StartSession(ctx context.Context, steamID, storeToken string, itemIDs []string) (*domain.StepperSession, error) {
	if steamID == "" {
		return nil, apperrors.InvalidInput("steam id is required")
	}
	if storeToken == "" {
		return nil, apperrors.SignInRequired()
	}
	if len(itemIDs) == 0 {
		return nil, apperrors.InvalidInput("at least one item is required for checkout")
	}

	items, err := m.selectItems(ctx, steamID, itemIDs)
	if err != nil {
		return nil, err
	}

	// A live runner for the same item set is simply resumed; one for a
	// different set is cancelled first so the new request wins.
	if existing := m.runnerFor(steamID); existing != nil {
		snap := existing.snapshot()
		if snap.Matches(itemIDs) {
			return snap, nil
		}
		if err := existing.ask(ctx, runnerEvent{kind: evCancel}); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("cancel superseded session: %w", err)
		}
	}

	session, resumed, err := m.loadOrCreateSession(ctx, steamID, itemIDs, items)
	if err != nil {
		return nil, err
	}

	r := newRunner(m.baseCtx, steamID, storeToken, session, m)

	m.mu.Lock()
	if _, ok := m.runners[steamID]; ok {
		m.mu.Unlock()
		return nil, apperrors.Conflict("a checkout session is already being created, please retry")
	}
	m.runners[steamID] = r
	m.mu.Unlock()

	if err := m.repo.SaveSession(ctx, session); err != nil {
		m.removeRunner(steamID)
		return nil, fmt.Errorf("persist session: %w", err)
	}

	sessionsStarted.Inc()
	if !resumed {
		if err := m.producer.PublishCheckoutStarted(ctx, session); err != nil {
			m.logger.ErrorContext(ctx, "failed to publish checkout.started event",
				slog.String("steam_id", steamID),
				slog.String("error", err.Error()),
			)
		}
	}

	m.logger.InfoContext(ctx, "checkout session started",
		slog.String("steam_id", steamID),
		slog.String("session_id", session.SessionID),
		slog.Int("steps", len(session.Steps)),
		slog.Bool("resumed", resumed),
	)

	r.scheduleInitial()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		r.loop()
	}()

	return r.snapshot(), nil
}

// Signal delivers an asynchronous checkout outcome to the user's session.
func (m *Manager) Signal(ctx context.Context, steamID string, sig Signal) error {
	r := m.runnerFor(steamID)
	if r == nil {
		return apperrors.NotFound("checkout session", steamID)
	}
	return r.ask(ctx, runnerEvent{kind: evSignal, signal: sig})
}

// Retry re-queues a failed step, bounded by the retry cap.
func (m *Manager) Retry(ctx context.Context, steamID, itemID string) error {
	r := m.runnerFor(steamID)
	if r == nil {
		return apperrors.NotFound("checkout session", steamID)
	}
	return r.ask(ctx, runnerEvent{kind: evRetry, itemID: itemID})
}

// Skip abandons a step and moves on to the remaining pending ones.
func (m *Manager) Skip(ctx context.Context, steamID, itemID string) error {
	r := m.runnerFor(steamID)
	if r == nil {
		return apperrors.NotFound("checkout session", steamID)
	}
	return r.ask(ctx, runnerEvent{kind: evSkip, itemID: itemID})
}

// Cancel closes the user's session, reporting whatever completed so far.
func (m *Manager) Cancel(ctx context.Context, steamID string) error {
	r := m.runnerFor(steamID)
	if r == nil {
		return apperrors.NotFound("checkout session", steamID)
	}
	return r.ask(ctx, runnerEvent{kind: evCancel})
}

// CurrentSession returns a snapshot of the user's session: the live one
// when a runner is active, otherwise the persisted one.
func (m *Manager) CurrentSession(ctx context.Context, steamID string) (*domain.StepperSession, error) {
	if r := m.runnerFor(steamID); r != nil {
		return r.snapshot(), nil
	}
	return m.repo.GetSession(ctx, steamID)
}

// Shutdown stops all runners. Sessions stay persisted so they resume after
// a restart.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- internals ---

func (m *Manager) runnerFor(steamID string) *runner {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runners[steamID]
}

func (m *Manager) removeRunner(steamID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runners, steamID)
}

// selectItems resolves the requested item ids against the cart and enforces
// the checkout invariants before anything else happens.
func (m *Manager) selectItems(ctx context.Context, steamID string, itemIDs []string) ([]domain.CartItem, error) {
	cart, err := m.cart.GetCart(ctx, steamID)
	if err != nil {
		return nil, fmt.Errorf("load cart for checkout: %w", err)
	}

	items := make([]domain.CartItem, 0, len(itemIDs))
	var noProduct, noRecipient []string

	for _, id := range itemIDs {
		idx := cart.FindItemIndex(id)
		if idx < 0 {
			return nil, apperrors.InvalidInput(fmt.Sprintf("item %s is no longer in the cart", id))
		}
		item := cart.Items[idx]
		if item.PayNowProductID == "" {
			noProduct = append(noProduct, item.Name)
		}
		if !item.HasValidGiftRecipient() {
			noRecipient = append(noRecipient, item.Name)
		}
		items = append(items, item)
	}

	if len(noProduct) > 0 {
		return nil, apperrors.NotPurchasable(strings.Join(noProduct, ", "))
	}
	if len(noRecipient) > 0 {
		return nil, apperrors.GiftRecipientMissing(strings.Join(noRecipient, ", "))
	}

	return items, nil
}

// loadOrCreateSession restores a compatible persisted session or builds a
// fresh one. An expired or mismatched persisted session is discarded.
func (m *Manager) loadOrCreateSession(ctx context.Context, steamID string, itemIDs []string, items []domain.CartItem) (*domain.StepperSession, bool, error) {
	persisted, err := m.repo.GetSession(ctx, steamID)
	switch {
	case err == nil:
		if persisted.Matches(itemIDs) && !persisted.IsExpired(m.opts.SessionMaxAge) {
			normalizeRestored(persisted)
			return persisted, true, nil
		}
		m.logger.InfoContext(ctx, "discarding incompatible persisted session",
			slog.String("steam_id", steamID),
			slog.String("session_id", persisted.SessionID),
			slog.Bool("expired", persisted.IsExpired(m.opts.SessionMaxAge)),
		)
		if err := m.repo.DeleteSession(ctx, steamID); err != nil {
			return nil, false, fmt.Errorf("discard stale session: %w", err)
		}
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, false, fmt.Errorf("load persisted session: %w", err)
	}

	session := &domain.StepperSession{
		SessionID:        uuid.New().String(),
		SteamID:          steamID,
		SelectedItemIDs:  append([]string(nil), itemIDs...),
		Steps:            make([]domain.StepState, 0, len(items)),
		CurrentStepIndex: 0,
		StartedAt:        time.Now().UTC(),
	}
	for _, item := range items {
		session.Steps = append(session.Steps, domain.StepState{
			ItemID:       item.ID,
			PlanID:       item.PayNowProductID,
			PlanName:     item.Name,
			PlanPrice:    item.Price,
			IsGift:       item.IsGift,
			GiftTo:       item.GiftTo,
			Subscription: item.Subscription,
			Status:       domain.StepPending,
		})
	}
	return session, false, nil
}

// normalizeRestored resets steps that were mid-flight when the previous
// process stopped. Their checkout windows are gone, so they start over;
// terminal steps are untouched.
func normalizeRestored(session *domain.StepperSession) {
	for i := range session.Steps {
		step := &session.Steps[i]
		if step.Status == domain.StepInProgress || step.Status == domain.StepVerifying {
			step.Status = domain.StepPending
			step.CheckoutURL = ""
		}
	}
	if step := session.CurrentStep(); step == nil || step.IsTerminal() {
		if next := session.NextPendingIndex(0); next >= 0 {
			session.CurrentStepIndex = next
		}
	}
}
