// Package storeapi runs cart operations against the WooCommerce Store API
// through the same-origin proxy's /api/wc-store routes.
package storeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"storefront-proxy/internal/cart"
	"storefront-proxy/internal/interceptor"
	"storefront-proxy/internal/model"
	"storefront-proxy/internal/session"
)

const service = "Store API"

var htmlTags = regexp.MustCompile(`<[^>]*>?`)

// NonceResponse is the proxy's nonce endpoint body.
type NonceResponse struct {
	Nonce       string `json:"nonce"`
	ExpiresIn   int    `json:"expiresIn"`
	IsTemporary bool   `json:"isTemporary"`
}

// Client calls {base}/cart and friends, where base is the proxy's
// /api/wc-store prefix.
type Client struct {
	baseURL    string
	httpClient *http.Client
	sessions   *session.Store
	logger     *slog.Logger
}

// New creates a Store API client. httpClient should carry the session
// interceptor as its transport.
func New(baseURL string, httpClient *http.Client, sessions *session.Store, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		sessions:   sessions,
		logger:     logger,
	}
}

// FetchNonce asks the proxy for a fresh nonce and stores it.
func (c *Client) FetchNonce(ctx context.Context) (NonceResponse, error) {
	ctx = interceptor.WithRequestInfo(ctx, interceptor.RequestInfo{Kind: interceptor.KindStoreAPI})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/nonce", nil)
	if err != nil {
		return NonceResponse{}, fmt.Errorf("creating nonce request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return NonceResponse{}, upstreamErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, resp.Body)
		return NonceResponse{}, model.NewUpstreamStatusError(service, resp.StatusCode, "nonce endpoint failed")
	}

	var n NonceResponse
	if err := json.NewDecoder(resp.Body).Decode(&n); err != nil {
		return NonceResponse{}, fmt.Errorf("decoding nonce: %w", err)
	}
	if n.Nonce == "" {
		return NonceResponse{}, model.NewUpstreamError(service, errors.New("nonce endpoint returned no nonce"))
	}

	if n.IsTemporary {
		c.logger.Warn("using temporary nonce, Store API mutations may be rejected")
	}
	if n.ExpiresIn > 0 {
		c.sessions.SetNonceWithTTL(n.Nonce, time.Duration(n.ExpiresIn)*time.Second)
	} else {
		c.sessions.SetNonce(n.Nonce)
	}
	return n, nil
}

// ensureNonce fetches a nonce when none is stored. A failed fetch is logged
// and the request goes out without one.
func (c *Client) ensureNonce(ctx context.Context) {
	if _, ok := c.sessions.Nonce(); ok {
		return
	}
	if _, err := c.FetchNonce(ctx); err != nil {
		c.logger.Warn("nonce fetch failed", slog.String("error", err.Error()))
	}
}

// Cart fetches the current cart.
func (c *Client) Cart(ctx context.Context) (*cart.StoreAPICart, error) {
	return c.do(ctx, http.MethodGet, "/cart", nil)
}

// AddItem adds a product. A variation id, when given, is what gets added.
func (c *Client) AddItem(ctx context.Context, productID, quantity int, variationID *int) (*cart.StoreAPICart, error) {
	id := productID
	if variationID != nil && *variationID > 0 {
		id = *variationID
	}
	return c.do(ctx, http.MethodPost, "/cart/add-item", map[string]any{"id": id, "quantity": quantity})
}

// UpdateItem sets a line's quantity.
func (c *Client) UpdateItem(ctx context.Context, key string, quantity int) (*cart.StoreAPICart, error) {
	return c.do(ctx, http.MethodPost, "/cart/update-item", map[string]any{"key": key, "quantity": quantity})
}

// RemoveItem removes a line.
func (c *Client) RemoveItem(ctx context.Context, key string) (*cart.StoreAPICart, error) {
	return c.do(ctx, http.MethodPost, "/cart/remove-item", map[string]any{"key": key})
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*cart.StoreAPICart, error) {
	c.ensureNonce(ctx)

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding %s body: %w", path, err)
		}
		reader = bytes.NewReader(b)
	}

	ctx = interceptor.WithRequestInfo(ctx, interceptor.RequestInfo{Kind: interceptor.KindStoreAPI})
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, upstreamErr(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", path, err)
	}

	if !gjson.ValidBytes(raw) {
		c.logger.Error("non-JSON Store API response",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("body", model.Truncate(string(raw), 200)),
		)
		return nil, model.NewMalformedUpstreamError(service, htmlTags.ReplaceAllString(model.Truncate(string(raw), 100), ""))
	}

	if resp.StatusCode >= 400 {
		return nil, model.NewUpstreamStatusError(service, resp.StatusCode, gjson.GetBytes(raw, "message").String())
	}

	var out cart.StoreAPICart
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding cart: %w", err)
	}
	return &out, nil
}

func upstreamErr(err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return model.NewUpstreamError(service, err)
}
