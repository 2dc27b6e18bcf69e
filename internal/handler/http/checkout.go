package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tamoortahir09/atlas-store/internal/stepper"
	"github.com/tamoortahir09/atlas-store/pkg/httputil"
	"github.com/tamoortahir09/atlas-store/pkg/middleware"
	"github.com/tamoortahir09/atlas-store/pkg/validator"
)

// CheckoutHandler exposes the multi-item checkout orchestrator.
type CheckoutHandler struct {
	manager        *stepper.Manager
	allowedOrigins []string
	logger         *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler. allowedOrigins is
// the allow-list for outcome signals, which originate from the hosted
// checkout page rather than the store frontend itself.
func NewCheckoutHandler(manager *stepper.Manager, allowedOrigins []string, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		manager:        manager,
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
}

// StartSessionRequest selects the cart items for a checkout run.
type StartSessionRequest struct {
	ItemIDs []string `json:"item_ids" validate:"required,min=1,dive,required"`
}

// StepCommandRequest targets one step by its cart item id.
type StepCommandRequest struct {
	ItemID string `json:"item_id" validate:"required"`
}

// StartSession handles POST /api/v1/checkout/sessions
func (h *CheckoutHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	steamID := middleware.SteamIDFromContext(r.Context())
	storeToken := middleware.StoreTokenFromContext(r.Context())

	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	session, err := h.manager.StartSession(r.Context(), steamID, storeToken, req.ItemIDs)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: session})
}

// CurrentSession handles GET /api/v1/checkout/sessions/current
func (h *CheckoutHandler) CurrentSession(w http.ResponseWriter, r *http.Request) {
	steamID := middleware.SteamIDFromContext(r.Context())

	session, err := h.manager.CurrentSession(r.Context(), steamID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: session})
}

// Signal handles POST /api/v1/checkout/sessions/signal. Outcome signals are
// relayed from the checkout page, so the request origin must be on the
// allow-list; anything else is dropped without touching the session.
func (h *CheckoutHandler) Signal(w http.ResponseWriter, r *http.Request) {
	if !middleware.OriginAllowed(r, h.allowedOrigins) {
		h.logger.WarnContext(r.Context(), "checkout signal from disallowed origin",
			slog.String("origin", r.Header.Get("Origin")),
		)
		httputil.WriteJSON(w, http.StatusForbidden, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "FORBIDDEN", Message: "origin not allowed"},
		})
		return
	}

	steamID := middleware.SteamIDFromContext(r.Context())

	var sig stepper.Signal
	if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}
	if err := validator.Validate(sig); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := h.manager.Signal(r.Context(), steamID, sig); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"status": "accepted"}})
}

// Retry handles POST /api/v1/checkout/sessions/retry
func (h *CheckoutHandler) Retry(w http.ResponseWriter, r *http.Request) {
	h.stepCommand(w, r, h.manager.Retry)
}

// Skip handles POST /api/v1/checkout/sessions/skip
func (h *CheckoutHandler) Skip(w http.ResponseWriter, r *http.Request) {
	h.stepCommand(w, r, h.manager.Skip)
}

// Cancel handles POST /api/v1/checkout/sessions/cancel
func (h *CheckoutHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	steamID := middleware.SteamIDFromContext(r.Context())

	if err := h.manager.Cancel(r.Context(), steamID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"status": "cancelled"}})
}

func (h *CheckoutHandler) stepCommand(w http.ResponseWriter, r *http.Request, cmd func(ctx context.Context, steamID, itemID string) error) {
	steamID := middleware.SteamIDFromContext(r.Context())

	var req StepCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	if err := cmd(r.Context(), steamID, req.ItemID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	session, err := h.manager.CurrentSession(r.Context(), steamID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: session})
}
