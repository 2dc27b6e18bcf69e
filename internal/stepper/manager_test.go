package stepper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamoortahir09/atlas-store/internal/domain"
	"github.com/tamoortahir09/atlas-store/internal/paynow"
	apperrors "github.com/tamoortahir09/atlas-store/pkg/errors"
)

const (
	testSteamID = "76561198000000001"
	testToken   = "store-token-1"
)

// --- fakes ---

type fakeRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.StepperSession
	saves    int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{sessions: make(map[string]*domain.StepperSession)}
}

func (f *fakeRepo) GetSession(ctx context.Context, steamID string) (*domain.StepperSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[steamID]
	if !ok {
		return nil, apperrors.NotFound("stepper session", steamID)
	}
	copied := *s
	copied.Steps = append([]domain.StepState(nil), s.Steps...)
	return &copied, nil
}

func (f *fakeRepo) SaveSession(ctx context.Context, session *domain.StepperSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *session
	copied.Steps = append([]domain.StepState(nil), session.Steps...)
	f.sessions[session.SteamID] = &copied
	f.saves++
	return nil
}

func (f *fakeRepo) DeleteSession(ctx context.Context, steamID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, steamID)
	return nil
}

func (f *fakeRepo) has(steamID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sessions[steamID]
	return ok
}

type fakeCart struct {
	mu        sync.Mutex
	cart      *domain.Cart
	purchased [][]string
}

func (f *fakeCart) GetCart(ctx context.Context, steamID string) (*domain.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *f.cart
	copied.Items = append([]domain.CartItem(nil), f.cart.Items...)
	return &copied, nil
}

func (f *fakeCart) MarkItemsPurchased(ctx context.Context, steamID string, itemIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purchased = append(f.purchased, append([]string(nil), itemIDs...))
	return nil
}

func (f *fakeCart) purchasedCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.purchased))
	copy(out, f.purchased)
	return out
}

type fakeCheckout struct {
	mu    sync.Mutex
	calls []paynow.CheckoutRequest
	err   error
}

func (f *fakeCheckout) CreateCheckout(ctx context.Context, storeToken string, req paynow.CheckoutRequest) (*paynow.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, req)
	return &paynow.CheckoutSession{
		ID:  fmt.Sprintf("cs-%d", len(f.calls)),
		URL: fmt.Sprintf("https://pay.example/cs-%d", len(f.calls)),
	}, nil
}

func (f *fakeCheckout) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeVerifier struct {
	results []bool
	calls   atomic.Int32
}

func (f *fakeVerifier) HasPurchase(ctx context.Context, storeToken, productID string) (bool, error) {
	n := int(f.calls.Add(1))
	if n <= len(f.results) {
		return f.results[n-1], nil
	}
	return false, nil
}

type nopPublisher struct{}

func (nopPublisher) PublishCheckoutStarted(ctx context.Context, s *domain.StepperSession) error {
	return nil
}
func (nopPublisher) PublishCheckoutStep(ctx context.Context, s *domain.StepperSession, st *domain.StepState) error {
	return nil
}
func (nopPublisher) PublishCheckoutClosed(ctx context.Context, s *domain.StepperSession, ids []string, c bool) error {
	return nil
}

// --- harness ---

type fixture struct {
	manager  *Manager
	repo     *fakeRepo
	cart     *fakeCart
	checkout *fakeCheckout
	verifier *fakeVerifier
}

func testOptions() Options {
	return Options{
		SettleDelay:       2 * time.Millisecond,
		SessionTimeout:    2 * time.Second,
		InactivityTimeout: 2 * time.Second,
		CloseDelay:        2 * time.Millisecond,
		VerifyAttempts:    5,
		VerifyDelay:       2 * time.Millisecond,
		MaxRetries:        3,
		SessionMaxAge:     24 * time.Hour,
		Currency:          "USD",
	}
}

func newFixture(t *testing.T, items []domain.CartItem, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		repo:     newFakeRepo(),
		cart:     &fakeCart{cart: &domain.Cart{SteamID: testSteamID, Items: items}},
		checkout: &fakeCheckout{},
		verifier: &fakeVerifier{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.manager = NewManager(f.repo, f.checkout, f.verifier, f.cart, nopPublisher{}, logger, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = f.manager.Shutdown(ctx)
	})
	return f
}

func selfItem(id, productID string) domain.CartItem {
	return domain.CartItem{
		ID: id, Type: domain.ItemTypeRank, Quantity: 1, Price: 9.99,
		Name: "Rank " + id, PayNowProductID: productID, Subscription: true,
	}
}

func giftItem(id, productID, recipient string) domain.CartItem {
	item := selfItem(id, productID)
	item.IsGift = true
	if recipient != "" {
		item.GiftTo = &domain.GiftRecipient{Platform: "steam", ID: recipient, DisplayName: "PlayerX"}
	}
	return item
}

func itemIDs(items []domain.CartItem) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

// waitForStepStatus blocks until the step reaches the wanted status.
func waitForStepStatus(t *testing.T, m *Manager, itemID, status string) {
	t.Helper()
	require.Eventually(t, func() bool {
		session, err := m.CurrentSession(context.Background(), testSteamID)
		if err != nil {
			return false
		}
		idx := session.StepByToken(itemID)
		return idx >= 0 && session.Steps[idx].Status == status
	}, 2*time.Second, time.Millisecond)
}

// waitForClose blocks until the session is gone (closed and cleaned up).
func waitForClose(t *testing.T, m *Manager, repo *fakeRepo) {
	t.Helper()
	require.Eventually(t, func() bool {
		if m.runnerFor(testSteamID) != nil {
			return false
		}
		return !repo.has(testSteamID)
	}, 2*time.Second, time.Millisecond)
}

// --- validation invariants ---

func TestStartSession_RefusesItemWithoutProductID(t *testing.T) {
	items := []domain.CartItem{
		selfItem("item-1", "prod-a"),
		{ID: "item-2", Type: domain.ItemTypeRank, Quantity: 1, Name: "Unlinked Rank"},
	}
	f := newFixture(t, items, testOptions())

	_, err := f.manager.StartSession(context.Background(), testSteamID, testToken, itemIDs(items))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrNotPurchasable)
	assert.Contains(t, err.Error(), "Unlinked Rank")

	// Fail fast: no checkout attempted, nothing persisted.
	assert.Equal(t, 0, f.checkout.callCount())
	assert.False(t, f.repo.has(testSteamID))
}

func TestStartSession_RefusesGiftWithoutRecipient(t *testing.T) {
	items := []domain.CartItem{
		selfItem("item-1", "prod-a"),
		giftItem("item-2", "prod-b", ""),
	}
	f := newFixture(t, items, testOptions())

	_, err := f.manager.StartSession(context.Background(), testSteamID, testToken, itemIDs(items))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrGiftRecipient)
	assert.Contains(t, err.Error(), "Rank item-2")
	assert.Equal(t, 0, f.checkout.callCount())
}

func TestStartSession_RequiresStoreToken(t *testing.T) {
	items := []domain.CartItem{selfItem("item-1", "prod-a")}
	f := newFixture(t, items, testOptions())

	_, err := f.manager.StartSession(context.Background(), testSteamID, "", itemIDs(items))
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
}

// --- sequential exclusivity ---

func TestSequentialExclusivity(t *testing.T) {
	items := []domain.CartItem{
		selfItem("item-1", "prod-1"),
		selfItem("item-2", "prod-2"),
		selfItem("item-3", "prod-3"),
		selfItem("item-4", "prod-4"),
		selfItem("item-5", "prod-5"),
	}
	f := newFixture(t, items, testOptions())
	ctx := context.Background()

	_, err := f.manager.StartSession(ctx, testSteamID, testToken, itemIDs(items))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	outcomes := []string{SignalSuccess, SignalCancel, SignalError}

	assertAtMostOneActive := func() {
		session, err := f.manager.CurrentSession(ctx, testSteamID)
		if err != nil {
			return
		}
		active := 0
		for _, step := range session.Steps {
			if step.Status == domain.StepInProgress || step.Status == domain.StepVerifying {
				active++
			}
		}
		assert.LessOrEqual(t, active, 1, "more than one step active at once")
	}

	for _, item := range items {
		waitForStepStatus(t, f.manager, item.ID, domain.StepInProgress)
		assertAtMostOneActive()

		outcome := outcomes[rng.Intn(len(outcomes))]
		require.NoError(t, f.manager.Signal(ctx, testSteamID, Signal{Type: outcome, PlanID: item.ID}))

		require.Eventually(t, func() bool {
			session, err := f.manager.CurrentSession(ctx, testSteamID)
			if err != nil {
				return true // session already closed
			}
			idx := session.StepByToken(item.ID)
			return session.Steps[idx].IsTerminal()
		}, 2*time.Second, time.Millisecond)
		assertAtMostOneActive()
	}
}

// --- restore semantics ---

func driveAllWithSuccess(t *testing.T, f *fixture, items []domain.CartItem, from int) {
	t.Helper()
	ctx := context.Background()
	for _, item := range items[from:] {
		waitForStepStatus(t, f.manager, item.ID, domain.StepInProgress)
		require.NoError(t, f.manager.Signal(ctx, testSteamID, Signal{Type: SignalSuccess, PlanID: item.ID}))
	}
	waitForClose(t, f.manager, f.repo)
}

func TestSessionRestoreEquivalence(t *testing.T) {
	items := []domain.CartItem{
		selfItem("item-1", "prod-1"),
		selfItem("item-2", "prod-2"),
		selfItem("item-3", "prod-3"),
		selfItem("item-4", "prod-4"),
		selfItem("item-5", "prod-5"),
	}
	ctx := context.Background()

	// Baseline: uninterrupted run of all five steps.
	baseline := newFixture(t, items, testOptions())
	_, err := baseline.manager.StartSession(ctx, testSteamID, testToken, itemIDs(items))
	require.NoError(t, err)
	driveAllWithSuccess(t, baseline, items, 0)
	baselineCalls := baseline.cart.purchasedCalls()
	require.Len(t, baselineCalls, 1)

	// Interrupted run: complete two steps, stop the process, resume.
	f := newFixture(t, items, testOptions())
	session, err := f.manager.StartSession(ctx, testSteamID, testToken, itemIDs(items))
	require.NoError(t, err)
	originalID := session.SessionID

	for _, item := range items[:2] {
		waitForStepStatus(t, f.manager, item.ID, domain.StepInProgress)
		require.NoError(t, f.manager.Signal(ctx, testSteamID, Signal{Type: SignalSuccess, PlanID: item.ID}))
		waitForStepStatus(t, f.manager, item.ID, domain.StepCompleted)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	require.NoError(t, f.manager.Shutdown(shutdownCtx))
	cancel()
	require.True(t, f.repo.has(testSteamID), "session must survive shutdown")

	// "Reload": a fresh manager over the same persisted state.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resumed := &fixture{repo: f.repo, cart: f.cart, checkout: f.checkout, verifier: f.verifier}
	resumed.manager = NewManager(f.repo, f.checkout, f.verifier, f.cart, nopPublisher{}, logger, testOptions())
	t.Cleanup(func() {
		c, stop := context.WithTimeout(context.Background(), time.Second)
		defer stop()
		_ = resumed.manager.Shutdown(c)
	})

	restored, err := resumed.manager.StartSession(ctx, testSteamID, testToken, itemIDs(items))
	require.NoError(t, err)
	assert.Equal(t, originalID, restored.SessionID, "matching young session must be resumed, not recreated")
	assert.Equal(t, domain.StepCompleted, restored.Steps[0].Status)
	assert.Equal(t, domain.StepCompleted, restored.Steps[1].Status)

	driveAllWithSuccess(t, resumed, items, 2)

	calls := f.cart.purchasedCalls()
	require.Len(t, calls, 1)
	assert.ElementsMatch(t, baselineCalls[0], calls[0],
		"resumed run must report the same completed set as the uninterrupted run")
	assert.ElementsMatch(t, itemIDs(items), calls[0])
}

func TestSessionMismatchDiscarded(t *testing.T) {
	items := []domain.CartItem{
		selfItem("item-a", "prod-a"),
		selfItem("item-b", "prod-b"),
		selfItem("item-d", "prod-d"),
	}
	f := newFixture(t, items, testOptions())
	ctx := context.Background()

	// Persisted session covers {a, b, c}; the new request is {a, b, d}.
	stale := &domain.StepperSession{
		SessionID:       "stale-session",
		SteamID:         testSteamID,
		SelectedItemIDs: []string{"item-a", "item-b", "item-c"},
		Steps: []domain.StepState{
			{ItemID: "item-a", PlanID: "prod-a", Status: domain.StepCompleted},
			{ItemID: "item-b", PlanID: "prod-b", Status: domain.StepPending},
			{ItemID: "item-c", PlanID: "prod-c", Status: domain.StepPending},
		},
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, f.repo.SaveSession(ctx, stale))

	session, err := f.manager.StartSession(ctx, testSteamID, testToken, itemIDs(items))
	require.NoError(t, err)
	assert.NotEqual(t, "stale-session", session.SessionID)
	assert.Equal(t, []string{"item-a", "item-b", "item-d"}, session.SelectedItemIDs)
	for _, step := range session.Steps {
		assert.Equal(t, domain.StepPending, step.Status)
	}
}

func TestExpiredSessionDiscarded(t *testing.T) {
	items := []domain.CartItem{selfItem("item-1", "prod-1")}
	f := newFixture(t, items, testOptions())
	ctx := context.Background()

	old := &domain.StepperSession{
		SessionID:       "old-session",
		SteamID:         testSteamID,
		SelectedItemIDs: []string{"item-1"},
		Steps:           []domain.StepState{{ItemID: "item-1", PlanID: "prod-1", Status: domain.StepPending}},
		StartedAt:       time.Now().UTC().Add(-25 * time.Hour),
	}
	require.NoError(t, f.repo.SaveSession(ctx, old))

	session, err := f.manager.StartSession(ctx, testSteamID, testToken, itemIDs(items))
	require.NoError(t, err)
	assert.NotEqual(t, "old-session", session.SessionID)
}

// --- ambiguous outcome resolution ---

func TestGiftAmbiguousOutcomeFailsWithoutPolling(t *testing.T) {
	items := []domain.CartItem{giftItem("item-1", "prod-1", "76561198000000002")}
	f := newFixture(t, items, testOptions())
	ctx := context.Background()

	_, err := f.manager.StartSession(ctx, testSteamID, testToken, itemIDs(items))
	require.NoError(t, err)

	waitForStepStatus(t, f.manager, "item-1", domain.StepInProgress)
	require.NoError(t, f.manager.Signal(ctx, testSteamID, Signal{Type: SignalClosed, PlanID: "item-1"}))

	waitForStepStatus(t, f.manager, "item-1", domain.StepFailed)

	session, err := f.manager.CurrentSession(ctx, testSteamID)
	require.NoError(t, err)
	assert.Contains(t, session.Steps[0].ErrorMessage, "gift purchases cannot be verified")
	assert.Equal(t, int32(0), f.verifier.calls.Load(), "gift steps must not trigger verification polls")
}

func TestNonGiftAmbiguousOutcomeResolvedByThirdPoll(t *testing.T) {
	items := []domain.CartItem{selfItem("item-1", "prod-1")}
	f := newFixture(t, items, testOptions())
	f.verifier.results = []bool{false, false, true}
	ctx := context.Background()

	_, err := f.manager.StartSession(ctx, testSteamID, testToken, itemIDs(items))
	require.NoError(t, err)

	waitForStepStatus(t, f.manager, "item-1", domain.StepInProgress)
	require.NoError(t, f.manager.Signal(ctx, testSteamID, Signal{Type: SignalClosed, PlanID: "item-1"}))

	waitForClose(t, f.manager, f.repo)

	assert.Equal(t, int32(3), f.verifier.calls.Load(), "exactly three polls expected")
	calls := f.cart.purchasedCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"item-1"}, calls[0])
}

func TestNonGiftAmbiguousOutcomeExhaustsPolls(t *testing.T) {
	items := []domain.CartItem{selfItem("item-1", "prod-1")}
	f := newFixture(t, items, testOptions())
	ctx := context.Background()

	_, err := f.manager.StartSession(ctx, testSteamID, testToken, itemIDs(items))
	require.NoError(t, err)

	waitForStepStatus(t, f.manager, "item-1", domain.StepInProgress)
	require.NoError(t, f.manager.Signal(ctx, testSteamID, Signal{Type: SignalClosed, PlanID: "item-1"}))

	waitForStepStatus(t, f.manager, "item-1", domain.StepFailed)

	assert.Equal(t, int32(5), f.verifier.calls.Load())
	session, err := f.manager.CurrentSession(ctx, testSteamID)
	require.NoError(t, err)
	assert.Contains(t, session.Steps[0].ErrorMessage, "contact support")
}

// --- retry semantics ---

func TestRetryCap(t *testing.T) {
	items := []domain.CartItem{selfItem("item-1", "prod-1")}
	f := newFixture(t, items, testOptions())
	ctx := context.Background()

	_, err := f.manager.StartSession(ctx, testSteamID, testToken, itemIDs(items))
	require.NoError(t, err)

	// Fail three times, retrying after the first two failures.
	for i := 0; i < 3; i++ {
		waitForStepStatus(t, f.manager, "item-1", domain.StepInProgress)
		require.NoError(t, f.manager.Signal(ctx, testSteamID, Signal{Type: SignalError, PlanID: "item-1", Error: "declined"}))
		waitForStepStatus(t, f.manager, "item-1", domain.StepFailed)

		if i < 2 {
			require.NoError(t, f.manager.Retry(ctx, testSteamID, "item-1"))
		}
	}

	session, err := f.manager.CurrentSession(ctx, testSteamID)
	require.NoError(t, err)
	assert.Equal(t, 3, session.Steps[0].RetryCount)

	// The fourth attempt is refused.
	err = f.manager.Retry(ctx, testSteamID, "item-1")
	assert.ErrorIs(t, err, apperrors.ErrRetryExhausted)
}

func TestRetryOnlyAppliesToFailedSteps(t *testing.T) {
	items := []domain.CartItem{selfItem("item-1", "prod-1")}
	f := newFixture(t, items, testOptions())
	ctx := context.Background()

	_, err := f.manager.StartSession(ctx, testSteamID, testToken, itemIDs(items))
	require.NoError(t, err)
	waitForStepStatus(t, f.manager, "item-1", domain.StepInProgress)

	err = f.manager.Retry(ctx, testSteamID, "item-1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

// --- timeouts and transport failures ---

func TestSessionTimeoutFailsStep(t *testing.T) {
	opts := testOptions()
	opts.SessionTimeout = 30 * time.Millisecond
	items := []domain.CartItem{selfItem("item-1", "prod-1")}
	f := newFixture(t, items, opts)

	_, err := f.manager.StartSession(context.Background(), testSteamID, testToken, itemIDs(items))
	require.NoError(t, err)

	waitForStepStatus(t, f.manager, "item-1", domain.StepFailed)

	session, err := f.manager.CurrentSession(context.Background(), testSteamID)
	require.NoError(t, err)
	assert.Contains(t, session.Steps[0].ErrorMessage, "open too long")
	assert.Equal(t, 1, session.Steps[0].RetryCount)
}

func TestInactivityTimeoutFailsStepDistinctly(t *testing.T) {
	opts := testOptions()
	opts.InactivityTimeout = 30 * time.Millisecond
	items := []domain.CartItem{selfItem("item-1", "prod-1")}
	f := newFixture(t, items, opts)

	_, err := f.manager.StartSession(context.Background(), testSteamID, testToken, itemIDs(items))
	require.NoError(t, err)

	waitForStepStatus(t, f.manager, "item-1", domain.StepFailed)

	session, err := f.manager.CurrentSession(context.Background(), testSteamID)
	require.NoError(t, err)
	assert.Contains(t, session.Steps[0].ErrorMessage, "without activity")
}

func TestActivitySignalDefersInactivityTimeout(t *testing.T) {
	opts := testOptions()
	opts.InactivityTimeout = 60 * time.Millisecond
	items := []domain.CartItem{selfItem("item-1", "prod-1")}
	f := newFixture(t, items, opts)
	ctx := context.Background()

	_, err := f.manager.StartSession(ctx, testSteamID, testToken, itemIDs(items))
	require.NoError(t, err)
	waitForStepStatus(t, f.manager, "item-1", domain.StepInProgress)

	// Ping for longer than the inactivity window; the step must stay alive.
	for i := 0; i < 5; i++ {
		time.Sleep(25 * time.Millisecond)
		require.NoError(t, f.manager.Signal(ctx, testSteamID, Signal{Type: SignalActivity, PlanID: "item-1"}))
	}

	session, err := f.manager.CurrentSession(ctx, testSteamID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepInProgress, session.Steps[0].Status)
}

func TestCheckoutCreationFailureIsImmediate(t *testing.T) {
	items := []domain.CartItem{selfItem("item-1", "prod-1")}
	f := newFixture(t, items, testOptions())
	f.checkout.err = apperrors.ServiceUnavailable("could not reach the payment provider to create a checkout session")

	_, err := f.manager.StartSession(context.Background(), testSteamID, testToken, itemIDs(items))
	require.NoError(t, err)

	waitForStepStatus(t, f.manager, "item-1", domain.StepFailed)

	session, err := f.manager.CurrentSession(context.Background(), testSteamID)
	require.NoError(t, err)
	assert.Contains(t, session.Steps[0].ErrorMessage, "could not reach the payment provider")
	assert.Equal(t, 1, session.Steps[0].RetryCount)
}

// --- cancel and close ---

func TestCancelReportsCompletedSubset(t *testing.T) {
	items := []domain.CartItem{
		selfItem("item-1", "prod-1"),
		selfItem("item-2", "prod-2"),
	}
	f := newFixture(t, items, testOptions())
	ctx := context.Background()

	_, err := f.manager.StartSession(ctx, testSteamID, testToken, itemIDs(items))
	require.NoError(t, err)

	waitForStepStatus(t, f.manager, "item-1", domain.StepInProgress)
	require.NoError(t, f.manager.Signal(ctx, testSteamID, Signal{Type: SignalSuccess, PlanID: "item-1"}))
	waitForStepStatus(t, f.manager, "item-1", domain.StepCompleted)

	require.NoError(t, f.manager.Cancel(ctx, testSteamID))
	waitForClose(t, f.manager, f.repo)

	calls := f.cart.purchasedCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"item-1"}, calls[0])
}

func TestEndToEndTwoItems(t *testing.T) {
	items := []domain.CartItem{
		selfItem("itemA_id", "prod-rank-a"),
		giftItem("itemB_id", "prod-rank-b", "76561198000000002"),
	}
	f := newFixture(t, items, testOptions())
	ctx := context.Background()

	_, err := f.manager.StartSession(ctx, testSteamID, testToken, itemIDs(items))
	require.NoError(t, err)

	for _, item := range items {
		waitForStepStatus(t, f.manager, item.ID, domain.StepInProgress)
		require.NoError(t, f.manager.Signal(ctx, testSteamID, Signal{Type: SignalSuccess, PlanID: item.ID}))
	}

	waitForClose(t, f.manager, f.repo)

	// Completed ids reported once, in step order, and the persisted
	// session removed.
	calls := f.cart.purchasedCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"itemA_id", "itemB_id"}, calls[0])
	assert.False(t, f.repo.has(testSteamID))

	// The gift line carried the recipient.
	require.GreaterOrEqual(t, f.checkout.callCount(), 2)
	f.checkout.mu.Lock()
	giftReq := f.checkout.calls[1]
	f.checkout.mu.Unlock()
	require.Len(t, giftReq.Lines, 1)
	assert.Equal(t, "76561198000000002", giftReq.Lines[0].GiftTo)
	assert.Equal(t, "itemB_id", giftReq.ReferenceID)
}

func TestSignalWithUnknownTokenRejected(t *testing.T) {
	items := []domain.CartItem{selfItem("item-1", "prod-1")}
	f := newFixture(t, items, testOptions())
	ctx := context.Background()

	_, err := f.manager.StartSession(ctx, testSteamID, testToken, itemIDs(items))
	require.NoError(t, err)
	waitForStepStatus(t, f.manager, "item-1", domain.StepInProgress)

	err = f.manager.Signal(ctx, testSteamID, Signal{Type: SignalSuccess, PlanID: "unrelated"})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSignalByPlanIDFallback(t *testing.T) {
	items := []domain.CartItem{selfItem("item-1", "prod-1")}
	f := newFixture(t, items, testOptions())
	ctx := context.Background()

	_, err := f.manager.StartSession(ctx, testSteamID, testToken, itemIDs(items))
	require.NoError(t, err)
	waitForStepStatus(t, f.manager, "item-1", domain.StepInProgress)

	// Older checkout pages send the store product id instead of the item id.
	require.NoError(t, f.manager.Signal(ctx, testSteamID, Signal{Type: SignalSuccess, PlanID: "prod-1"}))
	waitForClose(t, f.manager, f.repo)
}

func TestSignalForPendingStepIgnored(t *testing.T) {
	opts := testOptions()
	opts.InactivityTimeout = 40 * time.Millisecond
	items := []domain.CartItem{
		selfItem("item-1", "prod-1"),
		selfItem("item-2", "prod-2"),
	}
	f := newFixture(t, items, opts)
	ctx := context.Background()

	_, err := f.manager.StartSession(ctx, testSteamID, testToken, itemIDs(items))
	require.NoError(t, err)
	waitForStepStatus(t, f.manager, "item-1", domain.StepInProgress)

	// A stray success for the queued step must not complete it, and must
	// not disarm the open step's timers.
	require.NoError(t, f.manager.Signal(ctx, testSteamID, Signal{Type: SignalSuccess, PlanID: "item-2"}))

	session, err := f.manager.CurrentSession(ctx, testSteamID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepPending, session.Steps[1].Status)

	waitForStepStatus(t, f.manager, "item-1", domain.StepFailed)

	session, err = f.manager.CurrentSession(ctx, testSteamID)
	require.NoError(t, err)
	assert.Contains(t, session.Steps[0].ErrorMessage, "without activity")
	assert.NotEqual(t, domain.StepCompleted, session.Steps[1].Status)
}

func TestSkipLeavesFailureAndContinues(t *testing.T) {
	items := []domain.CartItem{
		selfItem("item-1", "prod-1"),
		selfItem("item-2", "prod-2"),
	}
	f := newFixture(t, items, testOptions())
	ctx := context.Background()

	_, err := f.manager.StartSession(ctx, testSteamID, testToken, itemIDs(items))
	require.NoError(t, err)

	waitForStepStatus(t, f.manager, "item-1", domain.StepInProgress)
	require.NoError(t, f.manager.Skip(ctx, testSteamID, "item-1"))
	waitForStepStatus(t, f.manager, "item-1", domain.StepFailed)

	// The second step proceeds despite the first one's failure.
	waitForStepStatus(t, f.manager, "item-2", domain.StepInProgress)
	require.NoError(t, f.manager.Signal(ctx, testSteamID, Signal{Type: SignalSuccess, PlanID: "item-2"}))
	waitForStepStatus(t, f.manager, "item-2", domain.StepCompleted)

	// Not all steps completed, so the session stays open for retry.
	session, err := f.manager.CurrentSession(ctx, testSteamID)
	require.NoError(t, err)
	assert.True(t, session.AllTerminal())

	require.NoError(t, f.manager.Cancel(ctx, testSteamID))
	waitForClose(t, f.manager, f.repo)

	calls := f.cart.purchasedCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"item-2"}, calls[0])
}
