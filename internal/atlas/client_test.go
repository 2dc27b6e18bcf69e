package atlas

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/tamoortahir09/atlas-store/pkg/errors"
	"github.com/tamoortahir09/atlas-store/pkg/httpclient"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	transport := httpclient.New(httpclient.Config{Timeout: 5 * time.Second})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(srv.URL, transport, logger)
}

func TestGetBalance(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/client/store", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(Balance{SteamID: "7656119", Gems: 2500})
	}))

	balance, err := client.GetBalance(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), balance.Gems)
}

func TestGetPurchases(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/client/store/purchases", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]Purchase{
			{ID: "p1", ItemID: "skin-1", ItemName: "Frost Skin", GemCost: 500},
		})
	}))

	purchases, err := client.GetPurchases(context.Background(), "tok-1")
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, int64(500), purchases[0].GemCost)
}

func TestGetOwnedItems_RejectedTokenBecomesSignInRequired(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := client.GetOwnedItems(context.Background(), "bad-token")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
}
