package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tamoortahir09/atlas-store/internal/domain"
	apperrors "github.com/tamoortahir09/atlas-store/pkg/errors"
)

const (
	cartKeyPrefix      = "cart:"
	completedKeyPrefix = "cart:completed:"
)

// CartRepository implements cart.Repository using Redis. The cart is one
// JSON blob per steam id; completed item ids live in a separate set.
type CartRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCartRepository creates a new Redis-backed cart repository.
func NewCartRepository(client *redis.Client, ttl time.Duration) *CartRepository {
	return &CartRepository{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves a cart by steam id from Redis.
func (r *CartRepository) Get(ctx context.Context, steamID string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cartKeyPrefix+steamID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("cart", steamID)
		}
		return nil, fmt.Errorf("redis get cart: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}

	return &cart, nil
}

// Save persists a cart to Redis with the configured TTL.
func (r *CartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	if err := r.client.Set(ctx, cartKeyPrefix+cart.SteamID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}

	return nil
}

// SaveIfVersion persists the cart only if the stored version still matches
// expectedVersion. The key is watched so a concurrent writer aborts the
// transaction rather than silently losing either write.
func (r *CartRepository) SaveIfVersion(ctx context.Context, cart *domain.Cart, expectedVersion int) (bool, error) {
	key := cartKeyPrefix + cart.SteamID

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			// No stored cart yet; only version 0 may create it.
			if expectedVersion != 0 {
				return apperrors.ErrConflict
			}
		case err != nil:
			return fmt.Errorf("redis get cart: %w", err)
		default:
			var stored domain.Cart
			if err := json.Unmarshal(data, &stored); err != nil {
				return fmt.Errorf("unmarshal stored cart: %w", err)
			}
			if stored.Version != expectedVersion {
				return apperrors.ErrConflict
			}
		}

		cart.Version = expectedVersion + 1
		payload, err := json.Marshal(cart)
		if err != nil {
			return fmt.Errorf("marshal cart: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, r.ttl)
			return nil
		})
		return err
	}, key)

	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) || errors.Is(err, redis.TxFailedErr) {
			return false, nil
		}
		return false, fmt.Errorf("redis save cart if version: %w", err)
	}

	return true, nil
}

// Delete removes a cart from Redis by steam id.
func (r *CartRepository) Delete(ctx context.Context, steamID string) error {
	if err := r.client.Del(ctx, cartKeyPrefix+steamID).Err(); err != nil {
		return fmt.Errorf("redis del cart: %w", err)
	}
	return nil
}

// AddCompletedItems records purchased item ids in the completed set.
func (r *CartRepository) AddCompletedItems(ctx context.Context, steamID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}

	key := completedKeyPrefix + steamID
	members := make([]any, len(itemIDs))
	for i, id := range itemIDs {
		members[i] = id
	}

	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis add completed items: %w", err)
	}
	return nil
}

// CompletedItemIDs returns the recorded purchased item ids.
func (r *CartRepository) CompletedItemIDs(ctx context.Context, steamID string) ([]string, error) {
	ids, err := r.client.SMembers(ctx, completedKeyPrefix+steamID).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get completed items: %w", err)
	}
	return ids, nil
}

// RemoveCompletedItem dismisses one purchased item id.
func (r *CartRepository) RemoveCompletedItem(ctx context.Context, steamID, itemID string) error {
	if err := r.client.SRem(ctx, completedKeyPrefix+steamID, itemID).Err(); err != nil {
		return fmt.Errorf("redis remove completed item: %w", err)
	}
	return nil
}
