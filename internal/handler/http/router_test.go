package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tamoortahir09/atlas-store/internal/atlas"
	"github.com/tamoortahir09/atlas-store/internal/cart"
	"github.com/tamoortahir09/atlas-store/internal/catalog"
	"github.com/tamoortahir09/atlas-store/internal/domain"
	"github.com/tamoortahir09/atlas-store/internal/event"
	"github.com/tamoortahir09/atlas-store/internal/paynow"
	"github.com/tamoortahir09/atlas-store/internal/profile"
	"github.com/tamoortahir09/atlas-store/internal/stepper"
	"github.com/tamoortahir09/atlas-store/internal/upsell"
	apperrors "github.com/tamoortahir09/atlas-store/pkg/errors"
	"github.com/tamoortahir09/atlas-store/pkg/health"
	"github.com/tamoortahir09/atlas-store/pkg/httputil"
	pkgkafka "github.com/tamoortahir09/atlas-store/pkg/kafka"
	"github.com/tamoortahir09/atlas-store/pkg/middleware"
)

const (
	testSecret  = "test_secret"
	testSteamID = "76561198000000001"
	testOrigin  = "http://localhost:3000"
)

// ============================================================================
// Mock cart repository
// ============================================================================

type mockCartRepository struct {
	mock.Mock
}

func (m *mockCartRepository) Get(ctx context.Context, steamID string) (*domain.Cart, error) {
	args := m.Called(ctx, steamID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Cart), args.Error(1)
}

func (m *mockCartRepository) Save(ctx context.Context, c *domain.Cart) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *mockCartRepository) SaveIfVersion(ctx context.Context, c *domain.Cart, expectedVersion int) (bool, error) {
	args := m.Called(ctx, c, expectedVersion)
	return args.Bool(0), args.Error(1)
}

func (m *mockCartRepository) Delete(ctx context.Context, steamID string) error {
	args := m.Called(ctx, steamID)
	return args.Error(0)
}

func (m *mockCartRepository) AddCompletedItems(ctx context.Context, steamID string, itemIDs []string) error {
	args := m.Called(ctx, steamID, itemIDs)
	return args.Error(0)
}

func (m *mockCartRepository) CompletedItemIDs(ctx context.Context, steamID string) ([]string, error) {
	args := m.Called(ctx, steamID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockCartRepository) RemoveCompletedItem(ctx context.Context, steamID, itemID string) error {
	args := m.Called(ctx, steamID, itemID)
	return args.Error(0)
}

// ============================================================================
// Stubs for catalog, stepper, and profile collaborators
// ============================================================================

type stubLister struct {
	products []paynow.StoreProduct
}

func (s *stubLister) GetStoreProducts(ctx context.Context) ([]paynow.StoreProduct, error) {
	return s.products, nil
}

type stubSessionRepo struct{}

func (stubSessionRepo) GetSession(ctx context.Context, steamID string) (*domain.StepperSession, error) {
	return nil, apperrors.NotFound("stepper session", steamID)
}
func (stubSessionRepo) SaveSession(ctx context.Context, s *domain.StepperSession) error { return nil }
func (stubSessionRepo) DeleteSession(ctx context.Context, steamID string) error         { return nil }

type stubCheckout struct{}

func (stubCheckout) CreateCheckout(ctx context.Context, token string, req paynow.CheckoutRequest) (*paynow.CheckoutSession, error) {
	return &paynow.CheckoutSession{ID: "cs-1", URL: "https://pay.example/cs-1"}, nil
}

type stubVerifier struct{}

func (stubVerifier) HasPurchase(ctx context.Context, token, productID string) (bool, error) {
	return false, nil
}

type stubPublisher struct{}

func (stubPublisher) PublishCheckoutStarted(ctx context.Context, s *domain.StepperSession) error {
	return nil
}
func (stubPublisher) PublishCheckoutStep(ctx context.Context, s *domain.StepperSession, st *domain.StepState) error {
	return nil
}
func (stubPublisher) PublishCheckoutClosed(ctx context.Context, s *domain.StepperSession, ids []string, c bool) error {
	return nil
}

type stubPayNowCustomer struct{}

func (stubPayNowCustomer) GetCustomer(ctx context.Context, token string) (*paynow.Customer, error) {
	return &paynow.Customer{ID: "cust-1"}, nil
}
func (stubPayNowCustomer) GetInventory(ctx context.Context, token string) ([]paynow.InventoryItem, error) {
	return nil, nil
}
func (stubPayNowCustomer) GetSubscriptions(ctx context.Context, token string) ([]paynow.Subscription, error) {
	return []paynow.Subscription{
		{ID: "sub-1", ProductID: "prod-vip", ProductName: "VIP", Status: paynow.SubscriptionActive, Amount: 999, Currency: "USD"},
	}, nil
}
func (stubPayNowCustomer) CancelSubscription(ctx context.Context, token, id string) error {
	return nil
}

type stubAtlasClient struct{}

func (stubAtlasClient) GetBalance(ctx context.Context, token string) (*atlas.Balance, error) {
	return &atlas.Balance{SteamID: testSteamID, Gems: 1500}, nil
}
func (stubAtlasClient) GetPurchases(ctx context.Context, token string) ([]atlas.Purchase, error) {
	return nil, nil
}
func (stubAtlasClient) GetOwnedItems(ctx context.Context, token string) ([]atlas.OwnedItem, error) {
	return nil, nil
}

// ============================================================================
// Test helpers
// ============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testEventProducer() *event.Producer {
	logger := testLogger()
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:19092"})
	return event.NewProducer(pkgkafka.NewProducer(kafkaCfg, logger), logger)
}

func newTestRouter(t *testing.T, repo *mockCartRepository) http.Handler {
	t.Helper()
	logger := testLogger()
	producer := testEventProducer()

	catalogSvc := catalog.NewService(catalog.DefaultLocalConfig(), &stubLister{}, time.Minute, logger)
	cartSvc := cart.NewService(repo, producer, logger, 24*time.Hour)
	upsellSvc := upsell.NewService(cartSvc, catalogSvc, producer, logger)

	opts := stepper.DefaultOptions()
	manager := stepper.NewManager(stubSessionRepo{}, stubCheckout{}, stubVerifier{}, cartSvc, stubPublisher{}, logger, opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = manager.Shutdown(ctx)
	})

	profileSvc := profile.NewService(stubPayNowCustomer{}, stubAtlasClient{}, catalogSvc, logger, time.Minute)

	return NewRouter(RouterDeps{
		Catalog:        catalogSvc,
		Cart:           cartSvc,
		Upsell:         upsellSvc,
		Stepper:        manager,
		Profile:        profileSvc,
		Health:         health.NewHandler(),
		Logger:         logger,
		JWTSecret:      []byte(testSecret),
		AllowedOrigins: []string{testOrigin},
	})
}

// signToken mints a session token the way the auth gateway does.
func signToken(t *testing.T, steamID, storeToken string) string {
	t.Helper()
	claims := middleware.UserClaims{
		SteamID:    steamID,
		StoreToken: storeToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func authedRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSteamID, "store-token-1"))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) httputil.Response {
	t.Helper()
	var resp httputil.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

// ============================================================================
// Auth and public routes
// ============================================================================

func TestGetCatalog_Public(t *testing.T) {
	router := newTestRouter(t, new(mockCartRepository))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Nil(t, resp.Error)
}

func TestGetCart_RequiresAuth(t *testing.T) {
	router := newTestRouter(t, new(mockCartRepository))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// ============================================================================
// Cart endpoints
// ============================================================================

func TestGetCart_EmptyWhenNoneStored(t *testing.T) {
	repo := new(mockCartRepository)
	repo.On("Get", mock.Anything, testSteamID).Return(nil, apperrors.NotFound("cart", testSteamID))
	router := newTestRouter(t, repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/v1/cart", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Nil(t, resp.Error)
	repo.AssertExpectations(t)
}

func TestAddItem_Success(t *testing.T) {
	repo := new(mockCartRepository)
	repo.On("Get", mock.Anything, testSteamID).Return(nil, apperrors.NotFound("cart", testSteamID))
	repo.On("SaveIfVersion", mock.Anything, mock.Anything, 0).Return(true, nil)
	router := newTestRouter(t, repo)

	body := AddItemRequest{
		Type:            "rank",
		Name:            "VIP",
		Quantity:        1,
		Price:           9.99,
		PayNowProductID: "prod-vip",
		Subscription:    true,
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/cart/items", body))

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Nil(t, resp.Error)
	repo.AssertExpectations(t)
}

func TestAddItem_ValidationError(t *testing.T) {
	router := newTestRouter(t, new(mockCartRepository))

	body := AddItemRequest{Type: "spaceship", Name: "X", Quantity: 1}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/cart/items", body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

// ============================================================================
// Checkout endpoints
// ============================================================================

func TestStartSession_RefusesUnlinkedItem(t *testing.T) {
	storedCart := &domain.Cart{
		SteamID: testSteamID,
		Items: []domain.CartItem{
			{ID: "item-1", Type: domain.ItemTypeRank, Quantity: 1, Name: "Unlinked Rank"},
		},
		Version: 1,
	}
	repo := new(mockCartRepository)
	repo.On("Get", mock.Anything, testSteamID).Return(storedCart, nil)
	router := newTestRouter(t, repo)

	body := StartSessionRequest{ItemIDs: []string{"item-1"}}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/checkout/sessions", body))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_PURCHASABLE", resp.Error.Code)
}

func TestSignal_RejectsDisallowedOrigin(t *testing.T) {
	router := newTestRouter(t, new(mockCartRepository))

	body := stepper.Signal{Type: stepper.SignalSuccess, PlanID: "item-1"}
	req := authedRequest(t, http.MethodPost, "/api/v1/checkout/sessions/signal", body)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "FORBIDDEN", resp.Error.Code)
}

func TestSignal_NoActiveSession(t *testing.T) {
	router := newTestRouter(t, new(mockCartRepository))

	body := stepper.Signal{Type: stepper.SignalSuccess, PlanID: "item-1"}
	req := authedRequest(t, http.MethodPost, "/api/v1/checkout/sessions/signal", body)
	req.Header.Set("Origin", testOrigin)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCurrentSession_NotFound(t *testing.T) {
	router := newTestRouter(t, new(mockCartRepository))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/v1/checkout/sessions/current", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ============================================================================
// Profile and store endpoints
// ============================================================================

func TestGetPackages_Success(t *testing.T) {
	router := newTestRouter(t, new(mockCartRepository))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/v1/profile/packages", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Nil(t, resp.Error)
	require.NotNil(t, resp.Data)
}

func TestGetBalance_Success(t *testing.T) {
	router := newTestRouter(t, new(mockCartRepository))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/v1/store/balance", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Nil(t, resp.Error)
}

// ============================================================================
// Offers endpoints
// ============================================================================

func TestGetOffers_EmptyCart(t *testing.T) {
	repo := new(mockCartRepository)
	repo.On("Get", mock.Anything, testSteamID).Return(nil, apperrors.NotFound("cart", testSteamID))
	router := newTestRouter(t, repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/v1/offers", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Nil(t, resp.Error)
}
