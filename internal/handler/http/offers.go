package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tamoortahir09/atlas-store/internal/upsell"
	"github.com/tamoortahir09/atlas-store/pkg/httputil"
	"github.com/tamoortahir09/atlas-store/pkg/middleware"
)

// OffersHandler serves upsell offers and applies accepted ones.
type OffersHandler struct {
	service *upsell.Service
	logger  *slog.Logger
}

// NewOffersHandler creates a new offers HTTP handler.
func NewOffersHandler(svc *upsell.Service, logger *slog.Logger) *OffersHandler {
	return &OffersHandler{
		service: svc,
		logger:  logger,
	}
}

// AcceptOfferRequest selects the target tier for vip upgrade offers.
type AcceptOfferRequest struct {
	TierProductID string `json:"tier_product_id"`
}

// GetOffers handles GET /api/v1/offers
func (h *OffersHandler) GetOffers(w http.ResponseWriter, r *http.Request) {
	steamID := middleware.SteamIDFromContext(r.Context())

	offers, err := h.service.GetOffers(r.Context(), steamID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: offers})
}

// AcceptOffer handles POST /api/v1/offers/{offerId}/accept
func (h *OffersHandler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	steamID := middleware.SteamIDFromContext(r.Context())
	offerID := chi.URLParam(r, "offerId")

	var req AcceptOfferRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
			})
			return
		}
	}

	result, err := h.service.AcceptOffer(r.Context(), steamID, offerID, req.TierProductID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}
