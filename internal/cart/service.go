package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tamoortahir09/atlas-store/internal/domain"
	"github.com/tamoortahir09/atlas-store/internal/event"
	apperrors "github.com/tamoortahir09/atlas-store/pkg/errors"
)

// Cart operation upper-bound limits to prevent abuse.
const (
	// MaxItemsPerCart is the maximum number of line items allowed in a cart.
	MaxItemsPerCart = 50
	// MaxQuantityPerItem is the maximum quantity allowed for a single item.
	MaxQuantityPerItem = 10
	// MaxPrice is the maximum snapshot price allowed per item.
	MaxPrice = 10_000.0
)

// saveAttempts bounds retries for internal read-modify-write operations
// that race with user requests on the same cart.
const saveAttempts = 3

// AddItemInput holds the parameters for adding an item to the cart.
type AddItemInput struct {
	Type            string                `json:"type" validate:"required,oneof=rank gems bundle accessory"`
	Name            string                `json:"name" validate:"required,min=1,max=200"`
	Quantity        int                   `json:"quantity" validate:"required,gte=1"`
	Price           float64               `json:"price" validate:"gte=0"`
	OriginalPrice   *float64              `json:"original_price"`
	SaleValue       *float64              `json:"sale_value"`
	PayNowProductID string                `json:"paynow_product_id"`
	IsGift          bool                  `json:"is_gift"`
	GiftTo          *domain.GiftRecipient `json:"gift_to"`
	Subscription    bool                  `json:"subscription"`
}

// Service implements the business logic for cart operations.
type Service struct {
	repo     Repository
	producer *event.Producer
	logger   *slog.Logger
	cartTTL  time.Duration
}

// NewService creates a new cart service.
func NewService(repo Repository, producer *event.Producer, logger *slog.Logger, cartTTL time.Duration) *Service {
	return &Service{
		repo:     repo,
		producer: producer,
		logger:   logger,
		cartTTL:  cartTTL,
	}
}

// GetCart retrieves the cart for a user. If no cart exists, returns an empty cart.
func (s *Service) GetCart(ctx context.Context, steamID string) (*domain.Cart, error) {
	if steamID == "" {
		return nil, apperrors.InvalidInput("steam id is required")
	}

	cart, err := s.repo.Get(ctx, steamID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return s.newEmptyCart(steamID), nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	return cart, nil
}

// AddItem appends a line item to the user's cart. The store does not
// deduplicate: a gift copy and a self copy of the same product are both
// legitimate, and callers use HasRankInCartForSelf before adding when they
// want to prevent a self duplicate.
func (s *Service) AddItem(ctx context.Context, steamID string, input AddItemInput) (*domain.Cart, error) {
	if steamID == "" {
		return nil, apperrors.InvalidInput("steam id is required")
	}
	if input.Quantity <= 0 {
		return nil, apperrors.InvalidInput("quantity must be greater than 0")
	}
	if input.Quantity > MaxQuantityPerItem {
		return nil, apperrors.InvalidInput(fmt.Sprintf("quantity must not exceed %d", MaxQuantityPerItem))
	}
	if input.Price < 0 {
		return nil, apperrors.InvalidInput("price must not be negative")
	}
	if input.Price > MaxPrice {
		return nil, apperrors.InvalidInput(fmt.Sprintf("price must not exceed %.0f", MaxPrice))
	}
	if input.IsGift && input.GiftTo != nil && input.GiftTo.ID == "" {
		return nil, apperrors.InvalidInput("gift recipient id must not be empty when a recipient is given")
	}

	cart, err := s.getOrCreateCart(ctx, steamID)
	if err != nil {
		return nil, err
	}

	if len(cart.Items) >= MaxItemsPerCart {
		return nil, apperrors.InvalidInput(fmt.Sprintf("cart must not contain more than %d items", MaxItemsPerCart))
	}

	expectedVersion := cart.Version

	item := domain.CartItem{
		ID:              uuid.New().String(),
		Type:            input.Type,
		Quantity:        input.Quantity,
		Price:           input.Price,
		OriginalPrice:   input.OriginalPrice,
		SaleValue:       input.SaleValue,
		Name:            input.Name,
		PayNowProductID: input.PayNowProductID,
		IsGift:          input.IsGift,
		GiftTo:          input.GiftTo,
		Subscription:    input.Subscription,
	}
	cart.Items = append(cart.Items, item)
	s.touch(cart)

	ok, err := s.repo.SaveIfVersion(ctx, cart, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	if !ok {
		return nil, apperrors.Conflict("cart was modified concurrently, please retry")
	}

	s.publishUpdated(ctx, cart)

	s.logger.InfoContext(ctx, "item added to cart",
		slog.String("steam_id", steamID),
		slog.String("item_id", item.ID),
		slog.String("item_type", item.Type),
		slog.String("product_id", item.PayNowProductID),
		slog.Bool("is_gift", item.IsGift),
	)

	return cart, nil
}

// RemoveItem removes an item by id. Removing an absent item is a no-op.
func (s *Service) RemoveItem(ctx context.Context, steamID, itemID string) (*domain.Cart, error) {
	if steamID == "" {
		return nil, apperrors.InvalidInput("steam id is required")
	}
	if itemID == "" {
		return nil, apperrors.InvalidInput("item id is required")
	}

	cart, err := s.repo.Get(ctx, steamID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return s.newEmptyCart(steamID), nil
		}
		return nil, fmt.Errorf("get cart for remove: %w", err)
	}

	idx := cart.FindItemIndex(itemID)
	if idx < 0 {
		return cart, nil
	}

	expectedVersion := cart.Version
	cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	s.touch(cart)

	ok, err := s.repo.SaveIfVersion(ctx, cart, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	if !ok {
		return nil, apperrors.Conflict("cart was modified concurrently, please retry")
	}

	s.publishUpdated(ctx, cart)

	s.logger.InfoContext(ctx, "item removed from cart",
		slog.String("steam_id", steamID),
		slog.String("item_id", itemID),
	)

	return cart, nil
}

// UpdateGift sets or clears gift metadata on an existing item. A nil
// recipient converts the item back to a self-purchase.
func (s *Service) UpdateGift(ctx context.Context, steamID, itemID string, gift *domain.GiftRecipient) (*domain.Cart, error) {
	if steamID == "" {
		return nil, apperrors.InvalidInput("steam id is required")
	}
	if itemID == "" {
		return nil, apperrors.InvalidInput("item id is required")
	}
	if gift != nil {
		if gift.Platform == "" {
			return nil, apperrors.InvalidInput("gift recipient platform is required")
		}
		if gift.ID == "" {
			return nil, apperrors.InvalidInput("gift recipient id is required")
		}
	}

	cart, err := s.repo.Get(ctx, steamID)
	if err != nil {
		return nil, fmt.Errorf("get cart for gift update: %w", err)
	}

	idx := cart.FindItemIndex(itemID)
	if idx < 0 {
		return nil, apperrors.NotFound("cart item", itemID)
	}

	expectedVersion := cart.Version
	cart.Items[idx].GiftTo = gift
	cart.Items[idx].IsGift = gift != nil
	s.touch(cart)

	ok, err := s.repo.SaveIfVersion(ctx, cart, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	if !ok {
		return nil, apperrors.Conflict("cart was modified concurrently, please retry")
	}

	s.publishUpdated(ctx, cart)

	return cart, nil
}

// ReplaceItems removes the superseded items and adds their replacements in
// one atomic cart write, recording the accepted offer id so it is not
// offered again. The cart is never persisted holding both old and new.
func (s *Service) ReplaceItems(ctx context.Context, steamID string, removeItemIDs []string, add []domain.CartItem, offerID string) (*domain.Cart, error) {
	if steamID == "" {
		return nil, apperrors.InvalidInput("steam id is required")
	}

	cart, err := s.repo.Get(ctx, steamID)
	if err != nil {
		return nil, fmt.Errorf("get cart for replace: %w", err)
	}

	if offerID != "" && cart.HasAcceptedOffer(offerID) {
		return nil, apperrors.Conflict("offer was already accepted")
	}

	expectedVersion := cart.Version

	remove := make(map[string]bool, len(removeItemIDs))
	for _, id := range removeItemIDs {
		remove[id] = true
	}

	kept := cart.Items[:0]
	for _, it := range cart.Items {
		if !remove[it.ID] {
			kept = append(kept, it)
		}
	}
	cart.Items = kept

	for _, it := range add {
		if it.ID == "" {
			it.ID = uuid.New().String()
		}
		cart.Items = append(cart.Items, it)
	}

	if offerID != "" {
		cart.AcceptedOffers = append(cart.AcceptedOffers, offerID)
	}
	s.touch(cart)

	ok, err := s.repo.SaveIfVersion(ctx, cart, expectedVersion)
	if err != nil {
		return nil, fmt.Errorf("save cart: %w", err)
	}
	if !ok {
		return nil, apperrors.Conflict("cart was modified concurrently, please retry")
	}

	s.publishUpdated(ctx, cart)

	s.logger.InfoContext(ctx, "cart items replaced",
		slog.String("steam_id", steamID),
		slog.Int("removed", len(removeItemIDs)),
		slog.Int("added", len(add)),
		slog.String("offer_id", offerID),
	)

	return cart, nil
}

// ClearCart removes all items from the user's cart.
func (s *Service) ClearCart(ctx context.Context, steamID string) error {
	if steamID == "" {
		return apperrors.InvalidInput("steam id is required")
	}

	if err := s.repo.Delete(ctx, steamID); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}

	if err := s.producer.PublishCartCleared(ctx, steamID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.cleared event",
			slog.String("steam_id", steamID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "cart cleared",
		slog.String("steam_id", steamID),
	)

	return nil
}

// HasRankInCartForSelf reports whether a self-purchase rank with the given
// store product id is already in the cart.
func (s *Service) HasRankInCartForSelf(ctx context.Context, steamID, productID string) (bool, error) {
	cart, err := s.GetCart(ctx, steamID)
	if err != nil {
		return false, err
	}
	return cart.HasProductForSelf(domain.ItemTypeRank, productID), nil
}

// HasBundleInCartForSelf reports whether a self-purchase bundle with the
// given store product id is already in the cart.
func (s *Service) HasBundleInCartForSelf(ctx context.Context, steamID, productID string) (bool, error) {
	cart, err := s.GetCart(ctx, steamID)
	if err != nil {
		return false, err
	}
	return cart.HasProductForSelf(domain.ItemTypeBundle, productID), nil
}

// RankInCartInfo returns the self-purchase rank item with the given store
// product id, or nil when the cart holds none.
func (s *Service) RankInCartInfo(ctx context.Context, steamID, productID string) (*domain.CartItem, error) {
	cart, err := s.GetCart(ctx, steamID)
	if err != nil {
		return nil, err
	}
	for i := range cart.Items {
		it := &cart.Items[i]
		if it.Type == domain.ItemTypeRank && it.PayNowProductID == productID && !it.IsGift {
			return it, nil
		}
	}
	return nil, nil
}

// MarkItemsPurchased removes the given items from the cart and records them
// in the completed set. Called by the checkout orchestrator when a session
// closes; retried on version conflicts since it races with user edits.
func (s *Service) MarkItemsPurchased(ctx context.Context, steamID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}

	if err := s.repo.AddCompletedItems(ctx, steamID, itemIDs); err != nil {
		return fmt.Errorf("record completed items: %w", err)
	}

	purchased := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		purchased[id] = true
	}

	for attempt := 0; attempt < saveAttempts; attempt++ {
		cart, err := s.repo.Get(ctx, steamID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("get cart for purchase: %w", err)
		}

		expectedVersion := cart.Version
		kept := cart.Items[:0]
		for _, it := range cart.Items {
			if !purchased[it.ID] {
				kept = append(kept, it)
			}
		}
		cart.Items = kept
		s.touch(cart)

		ok, err := s.repo.SaveIfVersion(ctx, cart, expectedVersion)
		if err != nil {
			return fmt.Errorf("save cart: %w", err)
		}
		if ok {
			s.publishUpdated(ctx, cart)
			s.logger.InfoContext(ctx, "purchased items removed from cart",
				slog.String("steam_id", steamID),
				slog.Int("count", len(itemIDs)),
			)
			return nil
		}
	}

	return apperrors.Conflict("cart was modified concurrently, please retry")
}

// CompletedItems returns the item ids purchased during the active basket visit.
func (s *Service) CompletedItems(ctx context.Context, steamID string) ([]string, error) {
	if steamID == "" {
		return nil, apperrors.InvalidInput("steam id is required")
	}
	ids, err := s.repo.CompletedItemIDs(ctx, steamID)
	if err != nil {
		return nil, fmt.Errorf("get completed items: %w", err)
	}
	return ids, nil
}

// DismissCompletedItem removes one purchased item id from the completed set.
func (s *Service) DismissCompletedItem(ctx context.Context, steamID, itemID string) error {
	if steamID == "" {
		return apperrors.InvalidInput("steam id is required")
	}
	if itemID == "" {
		return apperrors.InvalidInput("item id is required")
	}
	if err := s.repo.RemoveCompletedItem(ctx, steamID, itemID); err != nil {
		return fmt.Errorf("dismiss completed item: %w", err)
	}
	return nil
}

func (s *Service) getOrCreateCart(ctx context.Context, steamID string) (*domain.Cart, error) {
	cart, err := s.repo.Get(ctx, steamID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return s.newEmptyCart(steamID), nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	return cart, nil
}

func (s *Service) newEmptyCart(steamID string) *domain.Cart {
	now := time.Now().UTC()
	return &domain.Cart{
		SteamID:   steamID,
		Items:     []domain.CartItem{},
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.cartTTL),
	}
}

func (s *Service) touch(cart *domain.Cart) {
	now := time.Now().UTC()
	cart.UpdatedAt = now
	cart.ExpiresAt = now.Add(s.cartTTL)
}

func (s *Service) publishUpdated(ctx context.Context, cart *domain.Cart) {
	if err := s.producer.PublishCartUpdated(ctx, cart); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish cart.updated event",
			slog.String("steam_id", cart.SteamID),
			slog.String("error", err.Error()),
		)
	}
}
