package paynow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	apperrors "github.com/tamoortahir09/atlas-store/pkg/errors"
	"github.com/tamoortahir09/atlas-store/pkg/httpclient"
)

// doer abstracts the HTTP transport so tests can swap the circuit-breaker
// client for a plain one.
type doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

var _ doer = (*httpclient.CircuitBreakerClient)(nil)
var _ doer = (*httpclient.Client)(nil)

// Client talks to the PayNow storefront and customer APIs.
type Client struct {
	baseURL string
	storeID string
	http    doer
	logger  *slog.Logger
}

// NewClient creates a PayNow API client.
func NewClient(baseURL, storeID string, transport doer, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		storeID: storeID,
		http:    transport,
		logger:  logger,
	}
}

// GetCustomer fetches the customer record for the given store token.
func (c *Client) GetCustomer(ctx context.Context, storeToken string) (*Customer, error) {
	var customer Customer
	if err := c.getJSON(ctx, "/v1/store/customer", storeToken, &customer); err != nil {
		return nil, err
	}
	return &customer, nil
}

// GetInventory fetches the customer's owned one-time products.
func (c *Client) GetInventory(ctx context.Context, storeToken string) ([]InventoryItem, error) {
	var items []InventoryItem
	if err := c.getJSON(ctx, "/v1/store/customer/inventory", storeToken, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// GetSubscriptions fetches the customer's recurring-billing records.
func (c *Client) GetSubscriptions(ctx context.Context, storeToken string) ([]Subscription, error) {
	var subs []Subscription
	if err := c.getJSON(ctx, "/v1/store/customer/subscriptions", storeToken, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

// CancelSubscription cancels one of the customer's subscriptions.
func (c *Client) CancelSubscription(ctx context.Context, storeToken, subscriptionID string) error {
	endpoint := c.baseURL + "/v1/store/customer/subscriptions/" + url.PathEscape(subscriptionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("create cancel subscription request: %w", err)
	}
	c.setAuth(req, storeToken)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return apperrors.ServiceUnavailable("payment provider is unreachable")
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, "cancel subscription"); err != nil {
		return err
	}
	return nil
}

// GetStoreProducts fetches the storefront product listing. The listing is
// store-scoped, not customer-scoped, so no token is required.
func (c *Client) GetStoreProducts(ctx context.Context) ([]StoreProduct, error) {
	endpoint := c.baseURL + "/v1/store/products?store_id=" + url.QueryEscape(c.storeID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create store products request: %w", err)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, apperrors.ServiceUnavailable("payment provider is unreachable")
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, "get store products"); err != nil {
		return nil, err
	}

	var products []StoreProduct
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		return nil, fmt.Errorf("decode store products: %w", err)
	}
	return products, nil
}

// CreateCheckout creates a hosted checkout session for a single line item
// and returns the redirect URL the user must visit to pay.
func (c *Client) CreateCheckout(ctx context.Context, storeToken string, checkout CheckoutRequest) (*CheckoutSession, error) {
	body, err := json.Marshal(checkout)
	if err != nil {
		return nil, fmt.Errorf("marshal checkout request: %w", err)
	}

	endpoint := c.baseURL + "/v1/store/checkout"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create checkout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req, storeToken)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		// Transport failure is surfaced distinctly from timeouts so the
		// step error message names the actual cause.
		return nil, apperrors.ServiceUnavailable("could not reach the payment provider to create a checkout session")
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, "create checkout"); err != nil {
		return nil, err
	}

	var session CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	if session.URL == "" {
		return nil, apperrors.ServiceUnavailable("payment provider returned a checkout session without a redirect URL")
	}

	c.logger.DebugContext(ctx, "checkout session created",
		slog.String("session_id", session.ID),
		slog.String("reference_id", checkout.ReferenceID),
	)

	return &session, nil
}

// getJSON performs an authenticated GET and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, path, storeToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request for %s: %w", path, err)
	}
	c.setAuth(req, storeToken)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return apperrors.ServiceUnavailable("payment provider is unreachable")
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, path); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response for %s: %w", path, err)
	}
	return nil
}

func (c *Client) setAuth(req *http.Request, storeToken string) {
	req.Header.Set("Authorization", "Customer "+storeToken)
}

// checkStatus maps non-2xx responses onto the application error taxonomy.
// Auth rejections become a sign-in-required error that blocks checkout
// instead of being retried.
func (c *Client) checkStatus(resp *http.Response, op string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.SignInRequired()
	case http.StatusNotFound:
		return apperrors.NotFound("paynow resource", op)
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return apperrors.InvalidInput(fmt.Sprintf("payment provider rejected %s: %s", op, string(body)))
	default:
		return apperrors.ServiceUnavailable(fmt.Sprintf("payment provider error on %s (status %d)", op, resp.StatusCode))
	}
}
