package http

import (
	"log/slog"
	"net/http"

	"github.com/tamoortahir09/atlas-store/internal/catalog"
	"github.com/tamoortahir09/atlas-store/pkg/httputil"
)

// CatalogHandler serves the merged product catalog.
type CatalogHandler struct {
	service *catalog.Service
	logger  *slog.Logger
}

// NewCatalogHandler creates a new catalog HTTP handler.
func NewCatalogHandler(svc *catalog.Service, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		service: svc,
		logger:  logger,
	}
}

// GetCatalog handles GET /api/v1/catalog
func (h *CatalogHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.GetCatalog(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}

// RefreshCatalog handles POST /api/v1/catalog/refresh. It drops the cached
// merge so the next read pulls fresh store pricing.
func (h *CatalogHandler) RefreshCatalog(w http.ResponseWriter, r *http.Request) {
	h.service.Invalidate()

	result, err := h.service.GetCatalog(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: result})
}
