package storeapi

import (
	"context"
	"fmt"

	"storefront-proxy/internal/cart"
)

// CartBackend adapts Client to cart.Backend.
type CartBackend struct {
	client *Client
}

// NewCartBackend returns a cart.Backend over client.
func NewCartBackend(client *Client) *CartBackend {
	return &CartBackend{client: client}
}

var _ cart.Backend = (*CartBackend)(nil)

func (b *CartBackend) Name() string { return "storeapi" }

func (b *CartBackend) GetCart(ctx context.Context) (cart.Payload, error) {
	return payload(b.client.Cart(ctx))
}

func (b *CartBackend) AddItem(ctx context.Context, in cart.AddItemInput) (cart.Payload, error) {
	return payload(b.client.AddItem(ctx, in.ProductID, in.Quantity, in.VariationID))
}

func (b *CartBackend) UpdateQuantity(ctx context.Context, key string, quantity int) (cart.Payload, error) {
	return payload(b.client.UpdateItem(ctx, key, quantity))
}

func (b *CartBackend) RemoveItem(ctx context.Context, key string) (cart.Payload, error) {
	return payload(b.client.RemoveItem(ctx, key))
}

// Clear removes lines one at a time. The Store API has no bulk clear, and a
// failure part way through reports how far it got.
func (b *CartBackend) Clear(ctx context.Context, keys []string) (cart.Payload, error) {
	if len(keys) == 0 {
		return b.GetCart(ctx)
	}

	var last *cart.StoreAPICart
	for i, key := range keys {
		c, err := b.client.RemoveItem(ctx, key)
		if err != nil {
			return cart.Payload{}, fmt.Errorf("removing line %d of %d: %w", i+1, len(keys), err)
		}
		last = c
	}
	return cart.FromStoreAPI(last), nil
}

func payload(c *cart.StoreAPICart, err error) (cart.Payload, error) {
	if err != nil {
		return cart.Payload{}, err
	}
	return cart.FromStoreAPI(c), nil
}
