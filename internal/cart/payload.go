package cart

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Payload is an upstream cart in one of its two shapes. Exactly one field is
// set; an all-nil Payload is an absent cart.
type Payload struct {
	GraphQL  *GraphQLCart
	StoreAPI *StoreAPICart
}

// FromGraphQL tags a WPGraphQL cart.
func FromGraphQL(c *GraphQLCart) Payload { return Payload{GraphQL: c} }

// FromStoreAPI tags a Store API cart.
func FromStoreAPI(c *StoreAPICart) Payload { return Payload{StoreAPI: c} }

// =============================================================================
// WPGRAPHQL SHAPE
// =============================================================================

// GraphQLCart is the WooGraphQL `cart` object.
type GraphQLCart struct {
	Contents  GraphQLContents `json:"contents"`
	ItemCount *int            `json:"itemCount,omitempty"`
	Total     string          `json:"total"`
	Subtotal  string          `json:"subtotal,omitempty"`
}

// GraphQLContents is the cart's item connection.
type GraphQLContents struct {
	Nodes     []GraphQLItem `json:"nodes"`
	ItemCount *int          `json:"itemCount,omitempty"`
}

// GraphQLItem is one `CartItem` node.
type GraphQLItem struct {
	Key       string       `json:"key"`
	Quantity  int          `json:"quantity"`
	Total     string       `json:"total"`
	Subtotal  string       `json:"subtotal,omitempty"`
	Product   *GraphQLEdge `json:"product"`
	Variation *GraphQLEdge `json:"variation,omitempty"`
}

// GraphQLEdge wraps a product or variation node.
type GraphQLEdge struct {
	Node *GraphQLProduct `json:"node"`
}

// GraphQLProduct holds the product or variation fields the cart reads.
type GraphQLProduct struct {
	DatabaseID int           `json:"databaseId"`
	Name       string        `json:"name"`
	Slug       string        `json:"slug,omitempty"`
	Price      string        `json:"price,omitempty"`
	Image      *GraphQLImage `json:"image,omitempty"`
}

// GraphQLImage is a MediaItem.
type GraphQLImage struct {
	SourceURL string `json:"sourceUrl"`
	Title     string `json:"title,omitempty"`
	AltText   string `json:"altText,omitempty"`
}

// =============================================================================
// STORE API SHAPE
// =============================================================================

// StoreAPICart is the Store API `/cart` resource. Money fields are integer
// strings in minor units.
type StoreAPICart struct {
	Items      []StoreAPIItem `json:"items"`
	ItemsCount *int           `json:"items_count,omitempty"`
	Totals     StoreAPITotals `json:"totals"`
}

// StoreAPIItem is one cart line.
type StoreAPIItem struct {
	Key       string              `json:"key"`
	ID        int                 `json:"id"`
	Type      string              `json:"type,omitempty"`
	Name      string              `json:"name"`
	Quantity  Quantity            `json:"quantity"`
	Prices    StoreAPIPrices      `json:"prices"`
	Totals    StoreAPILineTotals  `json:"totals"`
	Images    []StoreAPIImage     `json:"images,omitempty"`
	Variation []StoreAPIAttribute `json:"variation,omitempty"`
}

// StoreAPIPrices are per-unit prices.
type StoreAPIPrices struct {
	Price             MinorAmount `json:"price"`
	RegularPrice      MinorAmount `json:"regular_price,omitempty"`
	SalePrice         MinorAmount `json:"sale_price,omitempty"`
	CurrencyCode      string      `json:"currency_code,omitempty"`
	CurrencyMinorUnit *int        `json:"currency_minor_unit,omitempty"`
}

// StoreAPILineTotals are per-line totals.
type StoreAPILineTotals struct {
	LineSubtotal MinorAmount `json:"line_subtotal,omitempty"`
	LineTotal    MinorAmount `json:"line_total,omitempty"`
}

// StoreAPITotals are cart-level totals.
type StoreAPITotals struct {
	TotalItems        MinorAmount `json:"total_items,omitempty"`
	TotalPrice        MinorAmount `json:"total_price,omitempty"`
	CurrencyCode      string      `json:"currency_code,omitempty"`
	CurrencyMinorUnit *int        `json:"currency_minor_unit,omitempty"`
}

// StoreAPIImage is a line item image.
type StoreAPIImage struct {
	ID   int    `json:"id,omitempty"`
	Src  string `json:"src"`
	Name string `json:"name,omitempty"`
	Alt  string `json:"alt,omitempty"`
}

// StoreAPIAttribute is a selected variation attribute.
type StoreAPIAttribute struct {
	Attribute string `json:"attribute"`
	Value     string `json:"value"`
}

// Quantity accepts a JSON number, a numeric string, or an object with a
// numeric `value` field. Anything else decodes as 0.
type Quantity int

func (q *Quantity) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)
	switch {
	case r.Type == gjson.Number:
		*q = Quantity(r.Int())
	case r.Type == gjson.String:
		n, err := strconv.Atoi(strings.TrimSpace(r.String()))
		if err != nil {
			n = 0
		}
		*q = Quantity(n)
	case r.IsObject():
		*q = Quantity(r.Get("value").Int())
	default:
		*q = 0
	}
	return nil
}

// MinorAmount is a minor-unit money amount sent as a string or a number.
type MinorAmount string

func (m *MinorAmount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = MinorAmount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("minor amount: %w", err)
	}
	*m = MinorAmount(n.String())
	return nil
}

// =============================================================================
// SHAPE DETECTION
// =============================================================================

// Decode reads an upstream cart document. It accepts a GraphQL response
// (`{"data":{"cart":...}}`), a wrapped cart (`{"cart":...}`), or a bare cart
// object. A cart with a non-empty `contents.nodes` decodes as the GraphQL
// shape, otherwise one with an `items` array decodes as the Store API shape.
func Decode(raw []byte) (Payload, error) {
	if !gjson.ValidBytes(raw) {
		return Payload{}, fmt.Errorf("decoding cart: invalid JSON")
	}

	root := cartRoot(gjson.ParseBytes(raw))
	if !root.IsObject() {
		return Payload{}, nil
	}

	nodes := root.Get("contents.nodes")
	items := root.Get("items")

	switch {
	case nodes.IsArray() && len(nodes.Array()) > 0:
		var c GraphQLCart
		if err := json.Unmarshal([]byte(root.Raw), &c); err != nil {
			return Payload{}, fmt.Errorf("decoding graphql cart: %w", err)
		}
		return FromGraphQL(&c), nil
	case items.IsArray():
		var c StoreAPICart
		if err := json.Unmarshal([]byte(root.Raw), &c); err != nil {
			return Payload{}, fmt.Errorf("decoding store api cart: %w", err)
		}
		return FromStoreAPI(&c), nil
	case root.Get("contents").Exists():
		var c GraphQLCart
		if err := json.Unmarshal([]byte(root.Raw), &c); err != nil {
			return Payload{}, fmt.Errorf("decoding graphql cart: %w", err)
		}
		return FromGraphQL(&c), nil
	}
	return Payload{}, nil
}

func cartRoot(doc gjson.Result) gjson.Result {
	for _, path := range []string{"data.cart", "cart"} {
		if r := doc.Get(path); r.IsObject() {
			return r
		}
	}
	return doc
}
