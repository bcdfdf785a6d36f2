package graphql

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"storefront-proxy/internal/cart"
	"storefront-proxy/internal/gqlcache"
	"storefront-proxy/internal/model"
)

// CartBackend runs cart operations as WooGraphQL queries and mutations.
type CartBackend struct {
	client *Client
	cache  *gqlcache.Cache
}

// NewCartBackend returns a cart.Backend. cache may be nil.
func NewCartBackend(client *Client, cache *gqlcache.Cache) *CartBackend {
	return &CartBackend{client: client, cache: cache}
}

var _ cart.Backend = (*CartBackend)(nil)

func (b *CartBackend) Name() string { return "graphql" }

func (b *CartBackend) GetCart(ctx context.Context) (cart.Payload, error) {
	data, err := b.client.Do(ctx, Request{Query: getCartQuery, OperationName: OpGetCart})
	if err != nil {
		return cart.Payload{}, err
	}
	return b.decode(data, "cart")
}

func (b *CartBackend) AddItem(ctx context.Context, in cart.AddItemInput) (cart.Payload, error) {
	input := map[string]any{
		"clientMutationId": uuid.NewString(),
		"productId":        in.ProductID,
		"quantity":         in.Quantity,
	}
	if in.VariationID != nil {
		input["variationId"] = *in.VariationID
	}

	data, err := b.client.Do(ctx, Request{
		Query:         addToCartMutation,
		OperationName: OpAddToCart,
		Variables:     map[string]any{"input": input},
	})
	if err != nil {
		return cart.Payload{}, err
	}
	return b.decode(data, "addToCart.cart")
}

func (b *CartBackend) UpdateQuantity(ctx context.Context, key string, quantity int) (cart.Payload, error) {
	return b.updateQuantities(ctx, map[string]int{key: quantity}, []string{key})
}

// RemoveItem sets the line's quantity to 0, which WooGraphQL treats as removal.
func (b *CartBackend) RemoveItem(ctx context.Context, key string) (cart.Payload, error) {
	return b.updateQuantities(ctx, map[string]int{key: 0}, []string{key})
}

// Clear zeroes every line in one mutation.
func (b *CartBackend) Clear(ctx context.Context, keys []string) (cart.Payload, error) {
	qty := make(map[string]int, len(keys))
	for _, k := range keys {
		qty[k] = 0
	}
	return b.updateQuantities(ctx, qty, keys)
}

func (b *CartBackend) updateQuantities(ctx context.Context, qty map[string]int, order []string) (cart.Payload, error) {
	items := make([]map[string]any, 0, len(order))
	for _, k := range order {
		items = append(items, map[string]any{"key": k, "quantity": qty[k]})
	}

	data, err := b.client.Do(ctx, Request{
		Query:         updateCartMutation,
		OperationName: OpUpdateCartItems,
		Variables: map[string]any{"input": map[string]any{
			"clientMutationId": uuid.NewString(),
			"items":            items,
		}},
	})
	if err != nil {
		return cart.Payload{}, err
	}
	return b.decode(data, "updateItemQuantities.cart")
}

// decode extracts the cart object at path, records it in the query cache and
// decodes it. A null cart is an absent cart.
func (b *CartBackend) decode(data []byte, path string) (cart.Payload, error) {
	r := gjson.GetBytes(data, path)
	switch {
	case !r.Exists() || r.Type == gjson.Null:
		return cart.Payload{}, nil
	case !r.IsObject():
		return cart.Payload{}, model.NewMalformedUpstreamError(service, model.Truncate(r.Raw, 200))
	}

	if b.cache != nil {
		if err := b.cache.WriteCart([]byte(r.Raw)); err != nil {
			return cart.Payload{}, fmt.Errorf("caching cart: %w", err)
		}
	}

	p, err := cart.Decode([]byte(r.Raw))
	if err != nil {
		return cart.Payload{}, err
	}
	if p.GraphQL == nil && p.StoreAPI == nil {
		p = cart.FromGraphQL(&cart.GraphQLCart{})
	}
	return p, nil
}
