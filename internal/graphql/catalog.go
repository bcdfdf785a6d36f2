package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"storefront-proxy/internal/gqlcache"
	"storefront-proxy/internal/model"
	"storefront-proxy/internal/session"
)

// DefaultPageSize matches the storefront's product grid.
const DefaultPageSize = 24

// ProductsQuery selects one page of products.
type ProductsQuery struct {
	First int
	After string
	Where map[string]any
}

// Category is a product category as shown in the menu.
type Category struct {
	ID         string `json:"id"`
	DatabaseID int    `json:"databaseId"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	ParentID   int    `json:"parentId,omitempty"`
	ImageURL   string `json:"imageUrl,omitempty"`
}

// Menu is the cached category menu.
type Menu struct {
	Categories []Category `json:"categories"`
}

// Catalog runs product queries and keeps their results in a query cache.
type Catalog struct {
	client *Client
	cache  *gqlcache.Cache
}

// NewCatalog returns a Catalog writing through cache.
func NewCatalog(client *Client, cache *gqlcache.Cache) *Catalog {
	if cache == nil {
		cache = gqlcache.New()
	}
	return &Catalog{client: client, cache: cache}
}

// Products fetches a page and returns the cached list for q.Where after the
// merge, so a page requested with an after cursor comes back appended.
func (c *Catalog) Products(ctx context.Context, q ProductsQuery) (gqlcache.ProductPage, error) {
	if q.First <= 0 {
		q.First = DefaultPageSize
	}
	vars := map[string]any{"first": q.First}
	if q.After != "" {
		vars["after"] = q.After
	}
	if len(q.Where) > 0 {
		vars["where"] = q.Where
	}

	data, err := c.client.Do(ctx, Request{Query: productsQuery, OperationName: OpProducts, Variables: vars})
	if err != nil {
		return gqlcache.ProductPage{}, err
	}

	raw := gjson.GetBytes(data, "products")
	if !raw.IsObject() {
		return gqlcache.ProductPage{}, model.NewMalformedUpstreamError(service, model.Truncate(string(data), 200))
	}
	var page gqlcache.ProductPage
	if err := json.Unmarshal([]byte(raw.Raw), &page); err != nil {
		return gqlcache.ProductPage{}, fmt.Errorf("decoding products: %w", err)
	}

	return c.cache.WriteProducts(q.Where, q.After, page)
}

// CachedProducts returns what the cache holds for where.
func (c *Catalog) CachedProducts(where map[string]any) (gqlcache.ProductPage, bool) {
	return c.cache.ReadProducts(where)
}

// Menu returns the category menu, reading it from store when cached and
// querying and caching it otherwise. Uncategorized is left out.
func (c *Catalog) Menu(ctx context.Context, store *session.Store) (Menu, error) {
	var m Menu
	if store != nil && store.Menu(&m) {
		return m, nil
	}

	data, err := c.client.Do(ctx, Request{Query: categoriesQuery, OperationName: OpCategories})
	if err != nil {
		return Menu{}, err
	}
	if err := c.cache.WriteQuery(OpCategories, nil, data); err != nil {
		return Menu{}, err
	}

	m = Menu{Categories: []Category{}}
	gjson.GetBytes(data, "productCategories.nodes").ForEach(func(_, n gjson.Result) bool {
		cat := Category{
			ID:         n.Get("id").String(),
			DatabaseID: int(n.Get("databaseId").Int()),
			Name:       n.Get("name").String(),
			Slug:       n.Get("slug").String(),
			ParentID:   int(n.Get("parent.node.databaseId").Int()),
			ImageURL:   n.Get("image.sourceUrl").String(),
		}
		if strings.EqualFold(cat.Name, "uncategorized") || cat.Slug == "uncategorized" {
			return true
		}
		m.Categories = append(m.Categories, cat)
		return true
	})

	if store != nil {
		store.SetMenu(m)
	}
	return m, nil
}
