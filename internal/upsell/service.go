package upsell

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tamoortahir09/atlas-store/internal/domain"
	"github.com/tamoortahir09/atlas-store/internal/event"
	apperrors "github.com/tamoortahir09/atlas-store/pkg/errors"
)

// CartService is the slice of the cart service the advisor needs.
type CartService interface {
	GetCart(ctx context.Context, steamID string) (*domain.Cart, error)
	ReplaceItems(ctx context.Context, steamID string, removeItemIDs []string, add []domain.CartItem, offerID string) (*domain.Cart, error)
}

// CatalogProvider serves the merged catalog.
type CatalogProvider interface {
	GetCatalog(ctx context.Context) (domain.Catalog, error)
}

// Service computes upsell offers and applies accepted ones to the cart.
type Service struct {
	cart     CartService
	catalog  CatalogProvider
	producer *event.Producer
	logger   *slog.Logger
}

// NewService creates a new upsell service.
func NewService(cart CartService, catalog CatalogProvider, producer *event.Producer, logger *slog.Logger) *Service {
	return &Service{
		cart:     cart,
		catalog:  catalog,
		producer: producer,
		logger:   logger,
	}
}

// GetOffers returns the offers applicable to the user's current cart.
func (s *Service) GetOffers(ctx context.Context, steamID string) ([]domain.Offer, error) {
	cart, err := s.cart.GetCart(ctx, steamID)
	if err != nil {
		return nil, err
	}

	catalog, err := s.catalog.GetCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("get catalog for offers: %w", err)
	}

	return ComputeOffers(cart, &catalog), nil
}

// AcceptOffer applies an offer to the cart: the superseded item(s) are
// removed and the replacement added in one atomic write. tierProductID
// selects the target tier and is required only for vip upgrades.
func (s *Service) AcceptOffer(ctx context.Context, steamID, offerID, tierProductID string) (*domain.Cart, error) {
	cart, err := s.cart.GetCart(ctx, steamID)
	if err != nil {
		return nil, err
	}

	catalog, err := s.catalog.GetCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("get catalog for offer accept: %w", err)
	}

	offer := findOffer(ComputeOffers(cart, &catalog), offerID)
	if offer == nil {
		return nil, apperrors.NotFound("offer", offerID)
	}

	var removeIDs []string
	var replacement domain.CartItem

	switch offer.Type {
	case domain.OfferVIPUpgrade:
		if tierProductID == "" {
			return nil, apperrors.InvalidInput("tier product id is required for a rank upgrade")
		}
		option := findTierOption(offer.Options, tierProductID)
		if option == nil {
			return nil, apperrors.InvalidInput("selected tier is not part of this offer")
		}
		rank := catalog.RankByProductID(tierProductID)
		if rank == nil {
			return nil, apperrors.NotFound("rank", tierProductID)
		}
		removeIDs = []string{offer.TargetItemID}
		replacement = rankCartItem(rank)

	case domain.OfferBundleUpgrade:
		bundle := catalog.BundleByID(offer.BundleID)
		if bundle == nil || !bundle.Purchasable() {
			return nil, apperrors.NotFound("bundle", offer.BundleID)
		}
		removeIDs = offer.SupersededItems
		replacement = domain.CartItem{
			Type:            domain.ItemTypeBundle,
			Quantity:        1,
			Price:           bundle.Price,
			OriginalPrice:   bundle.OriginalPrice,
			Name:            bundle.Name,
			PayNowProductID: bundle.PayNowProductID,
		}

	case domain.OfferGemUpgrade:
		pkg := catalog.GemPackageByProductID(offer.NextTierProductID)
		if pkg == nil {
			return nil, apperrors.NotFound("gem package", offer.NextTierProductID)
		}
		removeIDs = []string{offer.TargetItemID}
		replacement = domain.CartItem{
			Type:            domain.ItemTypeGems,
			Quantity:        1,
			Price:           pkg.Price,
			OriginalPrice:   pkg.OriginalPrice,
			Name:            pkg.Name,
			PayNowProductID: pkg.PayNowProductID,
		}

	default:
		return nil, apperrors.InvalidInput("unknown offer type " + offer.Type)
	}

	updated, err := s.cart.ReplaceItems(ctx, steamID, removeIDs, []domain.CartItem{replacement}, offerID)
	if err != nil {
		return nil, err
	}

	if err := s.producer.PublishOfferAccepted(ctx, steamID, offer); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish offer.accepted event",
			slog.String("steam_id", steamID),
			slog.String("offer_id", offerID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "offer accepted",
		slog.String("steam_id", steamID),
		slog.String("offer_id", offerID),
		slog.String("offer_type", offer.Type),
	)

	return updated, nil
}

func findOffer(offers []domain.Offer, id string) *domain.Offer {
	for i := range offers {
		if offers[i].ID == id {
			return &offers[i]
		}
	}
	return nil
}

func findTierOption(options []domain.TierOption, productID string) *domain.TierOption {
	for i := range options {
		if options[i].PayNowProductID == productID {
			return &options[i]
		}
	}
	return nil
}

func rankCartItem(rank *domain.Rank) domain.CartItem {
	return domain.CartItem{
		Type:            domain.ItemTypeRank,
		Quantity:        1,
		Price:           rank.Price,
		OriginalPrice:   rank.OriginalPrice,
		Name:            rank.Name,
		PayNowProductID: rank.PayNowProductID,
		Subscription:    true,
	}
}
