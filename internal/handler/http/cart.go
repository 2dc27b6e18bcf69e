package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tamoortahir09/atlas-store/internal/cart"
	"github.com/tamoortahir09/atlas-store/internal/domain"
	"github.com/tamoortahir09/atlas-store/pkg/httputil"
	"github.com/tamoortahir09/atlas-store/pkg/middleware"
	"github.com/tamoortahir09/atlas-store/pkg/validator"
)

// CartHandler handles HTTP requests for cart endpoints.
type CartHandler struct {
	service *cart.Service
	logger  *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(svc *cart.Service, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		service: svc,
		logger:  logger,
	}
}

// GiftRecipientRequest is the JSON shape of a gift recipient.
type GiftRecipientRequest struct {
	Platform    string `json:"platform" validate:"required,oneof=steam discord"`
	ID          string `json:"id" validate:"required"`
	DisplayName string `json:"display_name"`
}

func (g *GiftRecipientRequest) toDomain() *domain.GiftRecipient {
	if g == nil {
		return nil
	}
	return &domain.GiftRecipient{
		Platform:    g.Platform,
		ID:          g.ID,
		DisplayName: g.DisplayName,
	}
}

// AddItemRequest is the JSON request body for adding an item to the cart.
type AddItemRequest struct {
	Type            string                `json:"type" validate:"required,oneof=rank gems bundle accessory"`
	Name            string                `json:"name" validate:"required,min=1,max=200"`
	Quantity        int                   `json:"quantity" validate:"required,gte=1"`
	Price           float64               `json:"price" validate:"gte=0"`
	OriginalPrice   *float64              `json:"original_price"`
	SaleValue       *float64              `json:"sale_value"`
	PayNowProductID string                `json:"paynow_product_id"`
	IsGift          bool                  `json:"is_gift"`
	GiftTo          *GiftRecipientRequest `json:"gift_to"`
	Subscription    bool                  `json:"subscription"`
}

// UpdateGiftRequest sets or clears an item's gift recipient.
type UpdateGiftRequest struct {
	GiftTo *GiftRecipientRequest `json:"gift_to"`
}

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	steamID := middleware.SteamIDFromContext(r.Context())

	result, err := h.service.GetCart(r.Context(), steamID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	steamID := middleware.SteamIDFromContext(r.Context())

	var req AddItemRequest
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

	input := cart.AddItemInput{
		Type:            req.Type,
		Name:            req.Name,
		Quantity:        req.Quantity,
		Price:           req.Price,
		OriginalPrice:   req.OriginalPrice,
		SaleValue:       req.SaleValue,
		PayNowProductID: req.PayNowProductID,
		IsGift:          req.IsGift,
		GiftTo:          req.GiftTo.toDomain(),
		Subscription:    req.Subscription,
	}

	result, err := h.service.AddItem(r.Context(), steamID, input)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// RemoveItem handles DELETE /api/v1/cart/items/{itemId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	steamID := middleware.SteamIDFromContext(r.Context())
	itemID := chi.URLParam(r, "itemId")

	result, err := h.service.RemoveItem(r.Context(), steamID, itemID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// UpdateGift handles PUT /api/v1/cart/items/{itemId}/gift
func (h *CartHandler) UpdateGift(w http.ResponseWriter, r *http.Request) {
	steamID := middleware.SteamIDFromContext(r.Context())
	itemID := chi.URLParam(r, "itemId")

	var req UpdateGiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}
	if req.GiftTo != nil {
		if err := validator.Validate(req.GiftTo); err != nil {
			httputil.WriteValidationError(w, err)
			return
		}
	}

	result, err := h.service.UpdateGift(r.Context(), steamID, itemID, req.GiftTo.toDomain())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	steamID := middleware.SteamIDFromContext(r.Context())

	if err := h.service.ClearCart(r.Context(), steamID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"status": "cleared"}})
}

// CompletedItems handles GET /api/v1/cart/completed
func (h *CartHandler) CompletedItems(w http.ResponseWriter, r *http.Request) {
	steamID := middleware.SteamIDFromContext(r.Context())

	ids, err := h.service.CompletedItems(r.Context(), steamID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"item_ids": ids}})
}

// DismissCompletedItem handles DELETE /api/v1/cart/completed/{itemId}
func (h *CartHandler) DismissCompletedItem(w http.ResponseWriter, r *http.Request) {
	steamID := middleware.SteamIDFromContext(r.Context())
	itemID := chi.URLParam(r, "itemId")

	if err := h.service.DismissCompletedItem(r.Context(), steamID, itemID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"status": "dismissed"}})
}
