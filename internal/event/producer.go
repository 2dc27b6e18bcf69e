package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tamoortahir09/atlas-store/internal/domain"
	pkgkafka "github.com/tamoortahir09/atlas-store/pkg/kafka"
)

// Kafka topics for store domain events.
const (
	TopicCartUpdated     = "store.cart.updated"
	TopicCartCleared     = "store.cart.cleared"
	TopicOfferAccepted   = "store.offer.accepted"
	TopicCheckoutStarted = "store.checkout.started"
	TopicCheckoutStep    = "store.checkout.step"
	TopicCheckoutClosed  = "store.checkout.closed"
)

// Aggregate type constants.
const (
	AggregateTypeCart     = "cart"
	AggregateTypeCheckout = "checkout_session"
)

// Source identifier for events originating from this service.
const SourceStoreService = "atlas-store"

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	SteamID     string  `json:"steam_id"`
	ItemCount   int     `json:"item_count"`
	TotalAmount float64 `json:"total_amount"`
}

// CartClearedData is the payload for a cart.cleared event.
type CartClearedData struct {
	SteamID string `json:"steam_id"`
}

// OfferAcceptedData is the payload for an offer.accepted event.
type OfferAcceptedData struct {
	SteamID   string  `json:"steam_id"`
	OfferID   string  `json:"offer_id"`
	OfferType string  `json:"offer_type"`
	Savings   float64 `json:"savings,omitempty"`
}

// CheckoutStartedData is the payload for a checkout.started event.
type CheckoutStartedData struct {
	SessionID string `json:"session_id"`
	SteamID   string `json:"steam_id"`
	StepCount int    `json:"step_count"`
}

// CheckoutStepData is the payload for a checkout.step event, emitted when a
// step reaches a terminal state.
type CheckoutStepData struct {
	SessionID string `json:"session_id"`
	SteamID   string `json:"steam_id"`
	ItemID    string `json:"item_id"`
	PlanID    string `json:"plan_id"`
	Status    string `json:"status"`
	IsGift    bool   `json:"is_gift"`
	Error     string `json:"error,omitempty"`
}

// CheckoutClosedData is the payload for a checkout.closed event.
type CheckoutClosedData struct {
	SessionID        string   `json:"session_id"`
	SteamID          string   `json:"steam_id"`
	CompletedItemIDs []string `json:"completed_item_ids"`
	Cancelled        bool     `json:"cancelled"`
}

// Producer publishes store domain events to Kafka. Event publishing is
// best-effort; callers log failures and do not roll back.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCartUpdated publishes a cart.updated event.
func (p *Producer) PublishCartUpdated(ctx context.Context, cart *domain.Cart) error {
	data := CartUpdatedData{
		SteamID:     cart.SteamID,
		ItemCount:   len(cart.Items),
		TotalAmount: cart.TotalAmount(),
	}

	event, err := pkgkafka.NewEvent(TopicCartUpdated, cart.SteamID, AggregateTypeCart, SourceStoreService, data)
	if err != nil {
		return fmt.Errorf("create cart.updated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCartUpdated, event); err != nil {
		return fmt.Errorf("publish cart.updated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published cart.updated event",
		slog.String("steam_id", cart.SteamID),
		slog.Int("item_count", len(cart.Items)),
	)

	return nil
}

// PublishCartCleared publishes a cart.cleared event.
func (p *Producer) PublishCartCleared(ctx context.Context, steamID string) error {
	event, err := pkgkafka.NewEvent(TopicCartCleared, steamID, AggregateTypeCart, SourceStoreService, CartClearedData{SteamID: steamID})
	if err != nil {
		return fmt.Errorf("create cart.cleared event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCartCleared, event); err != nil {
		return fmt.Errorf("publish cart.cleared event: %w", err)
	}

	return nil
}

// PublishOfferAccepted publishes an offer.accepted event.
func (p *Producer) PublishOfferAccepted(ctx context.Context, steamID string, offer *domain.Offer) error {
	data := OfferAcceptedData{
		SteamID:   steamID,
		OfferID:   offer.ID,
		OfferType: offer.Type,
		Savings:   offer.Savings,
	}

	event, err := pkgkafka.NewEvent(TopicOfferAccepted, steamID, AggregateTypeCart, SourceStoreService, data)
	if err != nil {
		return fmt.Errorf("create offer.accepted event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicOfferAccepted, event); err != nil {
		return fmt.Errorf("publish offer.accepted event: %w", err)
	}

	return nil
}

// PublishCheckoutStarted publishes a checkout.started event.
func (p *Producer) PublishCheckoutStarted(ctx context.Context, session *domain.StepperSession) error {
	data := CheckoutStartedData{
		SessionID: session.SessionID,
		SteamID:   session.SteamID,
		StepCount: len(session.Steps),
	}

	event, err := pkgkafka.NewEvent(TopicCheckoutStarted, session.SessionID, AggregateTypeCheckout, SourceStoreService, data)
	if err != nil {
		return fmt.Errorf("create checkout.started event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCheckoutStarted, event); err != nil {
		return fmt.Errorf("publish checkout.started event: %w", err)
	}

	return nil
}

// PublishCheckoutStep publishes a checkout.step event for a step that
// reached a terminal state.
func (p *Producer) PublishCheckoutStep(ctx context.Context, session *domain.StepperSession, step *domain.StepState) error {
	data := CheckoutStepData{
		SessionID: session.SessionID,
		SteamID:   session.SteamID,
		ItemID:    step.ItemID,
		PlanID:    step.PlanID,
		Status:    step.Status,
		IsGift:    step.IsGift,
		Error:     step.ErrorMessage,
	}

	event, err := pkgkafka.NewEvent(TopicCheckoutStep, session.SessionID, AggregateTypeCheckout, SourceStoreService, data)
	if err != nil {
		return fmt.Errorf("create checkout.step event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCheckoutStep, event); err != nil {
		return fmt.Errorf("publish checkout.step event: %w", err)
	}

	return nil
}

// PublishCheckoutClosed publishes a checkout.closed event.
func (p *Producer) PublishCheckoutClosed(ctx context.Context, session *domain.StepperSession, completedItemIDs []string, cancelled bool) error {
	data := CheckoutClosedData{
		SessionID:        session.SessionID,
		SteamID:          session.SteamID,
		CompletedItemIDs: completedItemIDs,
		Cancelled:        cancelled,
	}

	event, err := pkgkafka.NewEvent(TopicCheckoutClosed, session.SessionID, AggregateTypeCheckout, SourceStoreService, data)
	if err != nil {
		return fmt.Errorf("create checkout.closed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCheckoutClosed, event); err != nil {
		return fmt.Errorf("publish checkout.closed event: %w", err)
	}

	return nil
}
