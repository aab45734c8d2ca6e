package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGatewayServer(t *testing.T, tokenIssues *atomic.Int64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/auth/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req tokenReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "client_credentials", req.GrantType)
		assert.Equal(t, "client-1", req.ClientID)

		tokenIssues.Add(1)
		_ = json.NewEncoder(w).Encode(tokenResp{AccessToken: "token-abc", ExpiresIn: 3600})
	})
	mux.HandleFunc("/v1/orders", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "Bearer token-abc", r.Header.Get("Authorization"))

		var req createOrderReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "300.00", req.Amount)
		assert.Equal(t, "USD", req.Currency)

		_ = json.NewEncoder(w).Encode(createOrderResp{
			ID:          "remote-1",
			RedirectURL: "https://pay.example.com/remote-1",
		})
	})
	mux.HandleFunc("/v1/orders/remote-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(receiptResp{
			ID: "remote-1", Status: "completed", Amount: "300.00", Currency: "USD",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCreateOrderReusesCachedToken(t *testing.T) {
	var tokenIssues atomic.Int64
	srv := newGatewayServer(t, &tokenIssues)

	client := NewClient(Config{
		BaseURL:      srv.URL,
		ClientID:     "client-1",
		ClientSecret: "secret",
		HTTP:         srv.Client(),
	})

	for i := 0; i < 3; i++ {
		created, err := client.CreateOrder(context.Background(), decimal.RequireFromString("300.00"), "USD")
		require.NoError(t, err)
		assert.Equal(t, "remote-1", created.RemoteID)
		assert.Equal(t, "https://pay.example.com/remote-1", created.RedirectURL)
	}

	assert.Equal(t, int64(1), tokenIssues.Load())
}

func TestTokenRefreshesBeforeExpiry(t *testing.T) {
	var tokenIssues atomic.Int64
	srv := newGatewayServer(t, &tokenIssues)

	cache := NewTokenCache(Config{
		BaseURL:  srv.URL,
		ClientID: "client-1",
		HTTP:     srv.Client(),
	}, srv.Client())

	now := time.Now()
	cache.now = func() time.Time { return now }

	_, err := cache.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), tokenIssues.Load())

	// Still comfortably valid: the cached token is reused.
	now = now.Add(3600*time.Second - 2*tokenEarlyRefresh)
	_, err = cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), tokenIssues.Load())

	// Inside the early-refresh window: a fresh token is fetched.
	now = now.Add(tokenEarlyRefresh + time.Second)
	_, err = cache.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), tokenIssues.Load())
}

func TestReceipt(t *testing.T) {
	var tokenIssues atomic.Int64
	srv := newGatewayServer(t, &tokenIssues)

	client := NewClient(Config{BaseURL: srv.URL, ClientID: "client-1", HTTP: srv.Client()})

	receipt, err := client.Receipt(context.Background(), "remote-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", receipt.Status)
	assert.True(t, decimal.RequireFromString("300.00").Equal(receipt.Amount))
}

func TestGatewayErrorsSurfaceStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/auth/token" {
			_ = json.NewEncoder(w).Encode(tokenResp{AccessToken: "token-abc", ExpiresIn: 3600})
			return
		}
		http.Error(w, "insufficient funds on merchant account", http.StatusUnprocessableEntity)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{BaseURL: srv.URL, HTTP: srv.Client()})

	_, err := client.CreateOrder(context.Background(), decimal.RequireFromString("1.00"), "USD")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 422")
	assert.Contains(t, err.Error(), "insufficient funds")
}
