// Package gqlcache holds GraphQL query results on the client side.
//
// Products are stored per query result and never normalized by id, because
// WooGraphQL returns partial product shapes that would overwrite each other.
// Paginated product lists are keyed by their `where` argument only.
package gqlcache

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tidwall/gjson"
)

// Connection is a `{nodes: [...]}` GraphQL connection.
type Connection struct {
	Nodes []json.RawMessage `json:"nodes"`
}

func emptyConnection() *Connection {
	return &Connection{Nodes: []json.RawMessage{}}
}

// PageInfo is the cursor state of a paginated connection.
type PageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor,omitempty"`
}

// ProductImage is a product's MediaItem.
type ProductImage struct {
	ID        string `json:"id,omitempty"`
	SourceURL string `json:"sourceUrl"`
	AltText   string `json:"altText,omitempty"`
	Title     string `json:"title,omitempty"`
}

// Product is a product card as returned by product list queries.
type Product struct {
	ID                string        `json:"id,omitempty"`
	DatabaseID        *int          `json:"databaseId"`
	Name              string        `json:"name"`
	Slug              string        `json:"slug"`
	Type              string        `json:"type,omitempty"`
	Price             string        `json:"price,omitempty"`
	RegularPrice      string        `json:"regularPrice,omitempty"`
	SalePrice         string        `json:"salePrice,omitempty"`
	StockStatus       string        `json:"stockStatus,omitempty"`
	StockQuantity     *int          `json:"stockQuantity"`
	AverageRating     *float64      `json:"averageRating"`
	ReviewCount       *int          `json:"reviewCount"`
	Image             *ProductImage `json:"image"`
	ProductCategories *Connection   `json:"productCategories"`
	ProductBrand      *Connection   `json:"productBrand"`
	ProductLocation   *Connection   `json:"productLocation"`
	Attributes        *Connection   `json:"attributes"`
}

// WithDefaults returns p with absent taxonomy connections set to empty ones.
func (p Product) WithDefaults() Product {
	if p.ProductCategories == nil {
		p.ProductCategories = emptyConnection()
	}
	if p.ProductBrand == nil {
		p.ProductBrand = emptyConnection()
	}
	if p.ProductLocation == nil {
		p.ProductLocation = emptyConnection()
	}
	if p.Attributes == nil {
		p.Attributes = emptyConnection()
	}
	return p
}

// ProductPage is one `products` connection result.
type ProductPage struct {
	PageInfo PageInfo  `json:"pageInfo"`
	Nodes    []Product `json:"nodes"`
}

func (p ProductPage) clone() ProductPage {
	out := p
	out.Nodes = make([]Product, len(p.Nodes))
	copy(out.Nodes, p.Nodes)
	return out
}

// Cache is safe for concurrent use.
type Cache struct {
	mu       sync.RWMutex
	products map[string]ProductPage
	queries  map[string]json.RawMessage
	cart     map[string]json.RawMessage
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{
		products: make(map[string]ProductPage),
		queries:  make(map[string]json.RawMessage),
		cart:     make(map[string]json.RawMessage),
	}
}

// ProductsKey returns the cache key for a `where` argument. Map keys are
// emitted in sorted order, so equal filters give equal keys.
func ProductsKey(where map[string]any) (string, error) {
	if len(where) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(where)
	if err != nil {
		return "", fmt.Errorf("encoding where argument: %w", err)
	}
	return string(b), nil
}

// WriteProducts merges a page into the list for where. With a non-empty
// after cursor the incoming nodes are appended to the cached ones and the
// incoming page info wins; otherwise the page replaces the cached list.
// It returns the merged list.
func (c *Cache) WriteProducts(where map[string]any, after string, page ProductPage) (ProductPage, error) {
	key, err := ProductsKey(where)
	if err != nil {
		return ProductPage{}, err
	}

	incoming := page.clone()
	for i := range incoming.Nodes {
		incoming.Nodes[i] = incoming.Nodes[i].WithDefaults()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.products[key]
	merged := incoming
	if ok && after != "" {
		merged.Nodes = append(existing.clone().Nodes, incoming.Nodes...)
	}
	c.products[key] = merged
	return merged.clone(), nil
}

// ReadProducts returns the cached list for where.
func (c *Cache) ReadProducts(where map[string]any) (ProductPage, bool) {
	key, err := ProductsKey(where)
	if err != nil {
		return ProductPage{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[key]
	if !ok {
		return ProductPage{}, false
	}
	return p.clone(), true
}

func queryKey(operation string, variables map[string]any) (string, error) {
	vars, err := ProductsKey(variables)
	if err != nil {
		return "", err
	}
	return operation + ":" + vars, nil
}

// WriteQuery stores a raw query result under its operation and variables.
func (c *Cache) WriteQuery(operation string, variables map[string]any, data json.RawMessage) error {
	key, err := queryKey(operation, variables)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries[key] = append(json.RawMessage(nil), data...)
	return nil
}

// ReadQuery returns a stored query result.
func (c *Cache) ReadQuery(operation string, variables map[string]any) (json.RawMessage, bool) {
	key, err := queryKey(operation, variables)
	if err != nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.queries[key]
	return append(json.RawMessage(nil), data...), ok
}

// WriteCart merges a cart object field by field. Every field present on the
// incoming object (contents, total, items, itemCount, totals and the rest)
// replaces the cached one; a field sent as null is stored as null.
func (c *Cache) WriteCart(raw json.RawMessage) error {
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return fmt.Errorf("writing cart: expected object, got %s", doc.Type)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	doc.ForEach(func(k, v gjson.Result) bool {
		c.cart[k.String()] = json.RawMessage(v.Raw)
		return true
	})
	return nil
}

// ReadCart returns the cached cart object, or false when nothing was written.
func (c *Cache) ReadCart() (json.RawMessage, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.cart) == 0 {
		return nil, false
	}
	b, err := json.Marshal(c.cart)
	if err != nil {
		return nil, false
	}
	return b, true
}

// Reset drops every cached entry.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.products = make(map[string]ProductPage)
	c.queries = make(map[string]json.RawMessage)
	c.cart = make(map[string]json.RawMessage)
}
