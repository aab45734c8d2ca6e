package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bloomwire/ordercore/internal/domain/payment"
)

// tokenEarlyRefresh is how long before expiry a cached token is considered
// stale.
const tokenEarlyRefresh = 30 * time.Second

// TokenSource supplies a bearer token for gateway calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	HTTP         *http.Client
}

// Client talks to the remote payment gateway. The token cache is an owned,
// injectable object rather than process-global state, so tests can
// substitute it.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

func NewClient(cfg Config) *Client {
	hc := cfg.HTTP
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    hc,
		tokens:  NewTokenCache(cfg, hc),
	}
}

// WithTokenSource swaps the token source, for tests.
func (c *Client) WithTokenSource(ts TokenSource) *Client {
	c.tokens = ts
	return c
}

type createOrderReq struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type createOrderResp struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirect_url"`
}

func (c *Client) CreateOrder(ctx context.Context, amount decimal.Decimal, currency string) (*payment.CreatedOrder, error) {
	var out createOrderResp
	err := c.do(ctx, http.MethodPost, "/v1/orders", createOrderReq{
		Amount:   amount.StringFixed(2),
		Currency: currency,
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("gateway: create order: missing order id")
	}
	return &payment.CreatedOrder{RemoteID: out.ID, RedirectURL: out.RedirectURL}, nil
}

type receiptResp struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func (c *Client) Receipt(ctx context.Context, remoteID string) (*payment.Receipt, error) {
	var out receiptResp
	if err := c.do(ctx, http.MethodGet, "/v1/orders/"+remoteID, nil, &out); err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(out.Amount)
	if err != nil {
		return nil, fmt.Errorf("gateway: receipt amount %q: %w", out.Amount, err)
	}
	return &payment.Receipt{
		RemoteID: out.ID,
		Status:   out.Status,
		Amount:   amount,
		Currency: out.Currency,
	}, nil
}

type refundReq struct {
	Amount string `json:"amount"`
}

func (c *Client) Refund(ctx context.Context, remoteID string, amount decimal.Decimal) error {
	return c.do(ctx, http.MethodPost, "/v1/orders/"+remoteID+"/refund", refundReq{Amount: amount.StringFixed(2)}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("gateway: token: %w", err)
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gateway: %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// TokenCache caches the gateway bearer token, refreshing it shortly before
// expiry. Concurrent callers share one cached token.
type TokenCache struct {
	cfg  Config
	http *http.Client
	now  func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenCache(cfg Config, hc *http.Client) *TokenCache {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &TokenCache{cfg: cfg, http: hc, now: time.Now}
}

type tokenReq struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
}

type tokenResp struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (tc *TokenCache) Token(ctx context.Context) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.token != "" && tc.now().Before(tc.expiresAt.Add(-tokenEarlyRefresh)) {
		return tc.token, nil
	}

	raw, err := json.Marshal(tokenReq{
		ClientID:     tc.cfg.ClientID,
		ClientSecret: tc.cfg.ClientSecret,
		GrantType:    "client_credentials",
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(tc.cfg.BaseURL, "/")+"/v1/auth/token", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tc.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("gateway: auth: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out tokenResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("gateway: auth: empty access token")
	}

	tc.token = out.AccessToken
	tc.expiresAt = tc.now().Add(time.Duration(out.ExpiresIn) * time.Second)
	return tc.token, nil
}
