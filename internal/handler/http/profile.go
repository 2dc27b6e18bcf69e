package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tamoortahir09/atlas-store/internal/profile"
	"github.com/tamoortahir09/atlas-store/pkg/httputil"
	"github.com/tamoortahir09/atlas-store/pkg/middleware"
)

// ProfileHandler serves the unified packages and transaction history views,
// plus the gem balance endpoints backed by the Atlas API.
type ProfileHandler struct {
	service *profile.Service
	logger  *slog.Logger
}

// NewProfileHandler creates a new profile HTTP handler.
func NewProfileHandler(svc *profile.Service, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{
		service: svc,
		logger:  logger,
	}
}

// GetPackages handles GET /api/v1/profile/packages
func (h *ProfileHandler) GetPackages(w http.ResponseWriter, r *http.Request) {
	storeToken := middleware.StoreTokenFromContext(r.Context())

	packages, err := h.service.GetPackages(r.Context(), storeToken)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: packages})
}

// GetTransactions handles GET /api/v1/profile/transactions
func (h *ProfileHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	storeToken := middleware.StoreTokenFromContext(r.Context())

	transactions, err := h.service.GetTransactions(r.Context(), storeToken)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: transactions})
}

// CancelSubscription handles DELETE /api/v1/profile/subscriptions/{subscriptionId}
func (h *ProfileHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	storeToken := middleware.StoreTokenFromContext(r.Context())
	subscriptionID := chi.URLParam(r, "subscriptionId")

	if err := h.service.CancelSubscription(r.Context(), storeToken, subscriptionID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"status": "cancelled"}})
}

// GetBalance handles GET /api/v1/store/balance
func (h *ProfileHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerTokenFromContext(r.Context())

	balance, err := h.service.GemBalance(r.Context(), token)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: balance})
}

// GetPurchases handles GET /api/v1/store/purchases
func (h *ProfileHandler) GetPurchases(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerTokenFromContext(r.Context())

	purchases, err := h.service.GemPurchases(r.Context(), token)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: purchases})
}

// GetOwnedItems handles GET /api/v1/store/items
func (h *ProfileHandler) GetOwnedItems(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerTokenFromContext(r.Context())

	items, err := h.service.OwnedItems(r.Context(), token)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: items})
}
