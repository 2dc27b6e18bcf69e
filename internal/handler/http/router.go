package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tamoortahir09/atlas-store/internal/cart"
	"github.com/tamoortahir09/atlas-store/internal/catalog"
	"github.com/tamoortahir09/atlas-store/internal/profile"
	"github.com/tamoortahir09/atlas-store/internal/stepper"
	"github.com/tamoortahir09/atlas-store/internal/upsell"
	"github.com/tamoortahir09/atlas-store/pkg/health"
	"github.com/tamoortahir09/atlas-store/pkg/middleware"
)

// RouterDeps carries everything the router needs wired up.
type RouterDeps struct {
	Catalog        *catalog.Service
	Cart           *cart.Service
	Upsell         *upsell.Service
	Stepper        *stepper.Manager
	Profile        *profile.Service
	Health         *health.Handler
	Logger         *slog.Logger
	JWTSecret      []byte
	AllowedOrigins []string
}

// NewRouter creates a chi router with all store routes registered.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(deps.Logger))
	r.Use(middleware.PrometheusMetrics("store"))
	r.Use(middleware.Tracing("store"))
	r.Use(middleware.CORS(deps.AllowedOrigins))

	// Health check endpoints
	r.Get("/health/live", deps.Health.LivenessHandler())
	r.Get("/health/ready", deps.Health.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	catalogHandler := NewCatalogHandler(deps.Catalog, deps.Logger)
	cartHandler := NewCartHandler(deps.Cart, deps.Logger)
	offersHandler := NewOffersHandler(deps.Upsell, deps.Logger)
	checkoutHandler := NewCheckoutHandler(deps.Stepper, deps.AllowedOrigins, deps.Logger)
	profileHandler := NewProfileHandler(deps.Profile, deps.Logger)

	// The catalog is public; everything else needs a signed-in user.
	r.Get("/api/v1/catalog", catalogHandler.GetCatalog)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(deps.JWTSecret))

		r.Post("/catalog/refresh", catalogHandler.RefreshCatalog)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Post("/items", cartHandler.AddItem)
			r.Delete("/items/{itemId}", cartHandler.RemoveItem)
			r.Put("/items/{itemId}/gift", cartHandler.UpdateGift)
			r.Get("/completed", cartHandler.CompletedItems)
			r.Delete("/completed/{itemId}", cartHandler.DismissCompletedItem)
		})

		r.Route("/offers", func(r chi.Router) {
			r.Get("/", offersHandler.GetOffers)
			r.Post("/{offerId}/accept", offersHandler.AcceptOffer)
		})

		r.Route("/checkout/sessions", func(r chi.Router) {
			r.Post("/", checkoutHandler.StartSession)
			r.Get("/current", checkoutHandler.CurrentSession)
			r.Post("/signal", checkoutHandler.Signal)
			r.Post("/retry", checkoutHandler.Retry)
			r.Post("/skip", checkoutHandler.Skip)
			r.Post("/cancel", checkoutHandler.Cancel)
		})

		r.Route("/profile", func(r chi.Router) {
			r.Get("/packages", profileHandler.GetPackages)
			r.Get("/transactions", profileHandler.GetTransactions)
			r.Delete("/subscriptions/{subscriptionId}", profileHandler.CancelSubscription)
		})

		r.Route("/store", func(r chi.Router) {
			r.Get("/balance", profileHandler.GetBalance)
			r.Get("/purchases", profileHandler.GetPurchases)
			r.Get("/items", profileHandler.GetOwnedItems)
		})
	})

	return r
}
