package atlas

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/tamoortahir09/atlas-store/pkg/errors"
	"github.com/tamoortahir09/atlas-store/pkg/httpclient"
)

// Balance is the user's gem balance as reported by the Atlas API.
type Balance struct {
	SteamID string `json:"steam_id"`
	Gems    int64  `json:"gems"`
}

// Purchase is one entry in the gem purchase ledger.
type Purchase struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	ItemName  string    `json:"item_name"`
	GemCost   int64     `json:"gem_cost"`
	CreatedAt time.Time `json:"created_at"`
}

// OwnedItem is one gem-bought item the user currently owns.
type OwnedItem struct {
	ItemID     string    `json:"item_id"`
	ItemName   string    `json:"item_name"`
	AcquiredAt time.Time `json:"acquired_at"`
}

type doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

var _ doer = (*httpclient.Client)(nil)

// Client talks to the internal Atlas API. The bearer token identifies the
// user; the steam id is resolved server-side from it.
type Client struct {
	baseURL string
	http    doer
	logger  *slog.Logger
}

// NewClient creates an Atlas API client.
func NewClient(baseURL string, transport doer, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    transport,
		logger:  logger,
	}
}

// GetBalance fetches the user's gem balance.
func (c *Client) GetBalance(ctx context.Context, token string) (*Balance, error) {
	var balance Balance
	if err := c.getJSON(ctx, "/api/client/store", token, &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

// GetPurchases fetches the user's gem purchase ledger.
func (c *Client) GetPurchases(ctx context.Context, token string) ([]Purchase, error) {
	var purchases []Purchase
	if err := c.getJSON(ctx, "/api/client/store/purchases", token, &purchases); err != nil {
		return nil, err
	}
	return purchases, nil
}

// GetOwnedItems fetches the gem-bought items the user owns.
func (c *Client) GetOwnedItems(ctx context.Context, token string) ([]OwnedItem, error) {
	var items []OwnedItem
	if err := c.getJSON(ctx, "/api/client/store/items", token, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) getJSON(ctx context.Context, path, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request for %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return apperrors.ServiceUnavailable("atlas api is unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperrors.SignInRequired()
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return apperrors.ServiceUnavailable(fmt.Sprintf("atlas api error on %s (status %d)", path, resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response for %s: %w", path, err)
	}
	return nil
}
