//go:build integration

// Integration tests against a live WooCommerce store, routed through the
// real proxy handler.
// Run with: go test -tags=integration ./internal/storeapi/... -v
//
// Required environment variables:
//
//	WOOCOMMERCE_STORE_URL  - store URL (e.g., https://shop.example.com)
//	WOOCOMMERCE_PRODUCT_ID - simple product ID to test with (e.g., 60)
package storeapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"storefront-proxy/internal/cart"
	"storefront-proxy/internal/config"
	"storefront-proxy/internal/handler"
	"storefront-proxy/internal/interceptor"
	"storefront-proxy/internal/session"
)

type liveConfig struct {
	storeURL  string
	productID int
}

func loadLiveConfig(t *testing.T) liveConfig {
	t.Helper()

	storeURL := os.Getenv("WOOCOMMERCE_STORE_URL")
	productID, _ := strconv.Atoi(os.Getenv("WOOCOMMERCE_PRODUCT_ID"))
	if storeURL == "" || productID == 0 {
		t.Skip("Skipping integration test: WOOCOMMERCE_* env vars not set")
	}
	return liveConfig{storeURL: strings.TrimSuffix(storeURL, "/"), productID: productID}
}

// newLiveStore wires a cart store to the live shop through a local proxy.
func newLiveStore(t *testing.T, cfg liveConfig) (*cart.Store, *session.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := handler.New(config.UpstreamConfig{
		BackendURL:      cfg.storeURL,
		GraphQLURL:      cfg.storeURL + "/graphql",
		StoreAPIURL:     cfg.storeURL + "/wp-json/wc/store/v1",
		WordPressAPIURL: cfg.storeURL + "/wp-json",
	}, &http.Client{Timeout: 30 * time.Second}, logger)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	proxy := httptest.NewServer(mux)
	t.Cleanup(proxy.Close)

	sessions := session.NewStore(session.NewMemoryStorage(), session.WithLogger(logger))
	rt := interceptor.New(http.DefaultTransport, sessions, logger)
	client := New(proxy.URL+"/api/wc-store", &http.Client{Transport: rt}, sessions, logger)

	store := cart.NewStore(NewCartBackend(client), cart.NewNormalizer(""), sessions, logger)
	rt.OnInvalidSession = store.ClearSession
	return store, sessions
}

func TestIntegration_NonceAndSession(t *testing.T) {
	cfg := loadLiveConfig(t)
	store, sessions := newLiveStore(t, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := store.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error: %v", err)
	}
	if _, ok := sessions.Nonce(); !ok {
		t.Error("no nonce stored after first cart load")
	}
}

func TestIntegration_CartLifecycle(t *testing.T) {
	cfg := loadLiveConfig(t)
	store, sessions := newLiveStore(t, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	c, err := store.AddItem(ctx, cart.AddItemInput{ProductID: cfg.productID, Quantity: 1})
	if err != nil {
		t.Fatalf("AddItem() error: %v", err)
	}
	if len(c.Items) != 1 {
		t.Fatalf("items after add = %d, want 1", len(c.Items))
	}
	if _, ok := sessions.SessionToken(); !ok {
		t.Error("no session token stored after add")
	}
	key := c.Items[0].Key

	c, err = store.UpdateQuantity(ctx, key, 3)
	if err != nil {
		t.Fatalf("UpdateQuantity() error: %v", err)
	}
	if c.TotalItemCount != 3 {
		t.Errorf("count after update = %d, want 3", c.TotalItemCount)
	}

	c, err = store.SetContents(ctx, []cart.DesiredLine{{ProductID: cfg.productID, Quantity: 2}})
	if err != nil {
		t.Fatalf("SetContents() error: %v", err)
	}
	if len(c.Items) != 1 || c.Items[0].Key != key || c.Items[0].Quantity != 2 {
		t.Errorf("after set contents: %+v", c.Items)
	}

	c, err = store.ClearCart(ctx)
	if err != nil {
		t.Fatalf("ClearCart() error: %v", err)
	}
	if !c.IsEmpty() {
		t.Errorf("cart not empty after clear: %+v", c.Items)
	}
}
