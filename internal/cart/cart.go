// Package cart holds the canonical cart model, the normalizer that maps both
// upstream cart schemas onto it, and the shared cart store.
package cart

import (
	"github.com/shopspring/decimal"
)

// Source records which upstream produced a cart.
type Source string

const (
	SourceNone     Source = ""
	SourceGraphQL  Source = "graphql"
	SourceStoreAPI Source = "storeapi"
)

// Cart is the single internal cart representation. It is always replaced
// wholesale, never patched.
type Cart struct {
	Items          []LineItem      `json:"items"`
	TotalItemCount int             `json:"totalItemCount"`
	TotalPrice     decimal.Decimal `json:"totalPrice"`
	Currency       string          `json:"currency,omitempty"`
	Source         Source          `json:"source,omitempty"`
}

// LineItem is one line of a Cart. Key is stable across quantity changes.
type LineItem struct {
	Key         string          `json:"key"`
	ProductID   int             `json:"productId"`
	VariationID *int            `json:"variationId,omitempty"`
	Name        string          `json:"name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
	Image       Image           `json:"image"`
}

// Image is a line item thumbnail.
type Image struct {
	SourceURL string `json:"sourceUrl"`
	Title     string `json:"title"`
}

// Empty returns a cart with no items.
func Empty() Cart {
	return Cart{Items: []LineItem{}, TotalPrice: decimal.Zero}
}

// IsEmpty reports whether the cart has no lines.
func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Keys returns the line keys in cart order.
func (c Cart) Keys() []string {
	keys := make([]string, len(c.Items))
	for i, item := range c.Items {
		keys[i] = item.Key
	}
	return keys
}

// Item returns the line with key.
func (c Cart) Item(key string) (LineItem, bool) {
	for _, item := range c.Items {
		if item.Key == key {
			return item, true
		}
	}
	return LineItem{}, false
}

// clone copies the item slice so held state never aliases a caller's copy.
func (c Cart) clone() Cart {
	out := c
	out.Items = make([]LineItem, len(c.Items))
	copy(out.Items, c.Items)
	return out
}
