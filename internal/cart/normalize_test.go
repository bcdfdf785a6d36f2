package cart

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"
)

var decimalComparer = cmp.Comparer(func(x, y decimal.Decimal) bool {
	return x.Equal(y)
})

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func intPtr(v int) *int { return &v }

func mustDecode(t *testing.T, raw string) Payload {
	t.Helper()
	p, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	return p
}

const graphqlCartJSON = `{
  "data": {
    "cart": {
      "contents": {
        "nodes": [
          {
            "key": "a1",
            "quantity": 2,
            "total": "GH₵21.00",
            "subtotal": "GH₵21.00",
            "product": {"node": {"databaseId": 101, "name": "USB-C Cable", "price": "GH₵10.50",
              "image": {"sourceUrl": "https://cdn.example.com/cable.jpg", "title": "Cable"}}}
          },
          {
            "key": "b2",
            "quantity": 1,
            "total": "GH₵1,200.00",
            "product": {"node": {"databaseId": 200, "name": "Phone", "price": "GH₵1,100.00 - GH₵1,300.00"}},
            "variation": {"node": {"databaseId": 205, "name": "Phone - 128GB", "price": "GH₵1,200.00",
              "image": {"sourceUrl": "https://cdn.example.com/phone-128.jpg", "title": ""}}}
          }
        ]
      },
      "total": "GH₵1,221.00"
    }
  }
}`

const storeAPICartJSON = `{
  "items": [
    {"key": "a1", "id": 101, "name": "USB-C Cable", "quantity": 2,
     "prices": {"price": "1050", "currency_minor_unit": 2},
     "totals": {"line_total": "2100"},
     "images": [{"src": "https://cdn.example.com/cable.jpg", "name": "Cable"}]},
    {"key": "b2", "id": 205, "type": "variation", "name": "Phone - 128GB", "quantity": {"value": 1},
     "prices": {"price": "120000"},
     "totals": {"line_total": "120000"},
     "variation": [{"attribute": "Storage", "value": "128GB"}]}
  ],
  "items_count": 3,
  "totals": {"total_price": "122100", "currency_code": "GHS", "currency_minor_unit": 2}
}`

func TestNormalizeStoreAPIScenario(t *testing.T) {
	raw := `{"items":[{"quantity":2,"prices":{"price":"1050"},"totals":{"line_total":"2100"}}],
	         "totals":{"currency_minor_unit":2,"total_price":"2100"}}`

	n := NewNormalizer("")
	got := n.Normalize(mustDecode(t, raw))

	if len(got.Items) != 1 {
		t.Fatalf("items = %d, want 1", len(got.Items))
	}
	item := got.Items[0]
	if !item.UnitPrice.Equal(dec("10.50")) {
		t.Errorf("unitPrice = %s, want 10.50", item.UnitPrice)
	}
	if !item.LineTotal.Equal(dec("21.00")) {
		t.Errorf("lineTotal = %s, want 21.00", item.LineTotal)
	}
	if got.TotalItemCount != 2 {
		t.Errorf("totalItemCount = %d, want 2", got.TotalItemCount)
	}
	if !got.TotalPrice.Equal(dec("21.00")) {
		t.Errorf("totalPrice = %s, want 21.00", got.TotalPrice)
	}
	if item.Image.SourceURL != DefaultPlaceholderImage {
		t.Errorf("image = %q, want placeholder", item.Image.SourceURL)
	}
}

func TestNormalizeGraphQL(t *testing.T) {
	n := NewNormalizer("https://shop.example.com/placeholder.png")
	got := n.Normalize(mustDecode(t, graphqlCartJSON))

	want := Cart{
		Source:         SourceGraphQL,
		TotalItemCount: 3,
		TotalPrice:     dec("1221"),
		Items: []LineItem{
			{
				Key:       "a1",
				ProductID: 101,
				Name:      "USB-C Cable",
				Quantity:  2,
				UnitPrice: dec("10.5"),
				LineTotal: dec("21"),
				Image:     Image{SourceURL: "https://cdn.example.com/cable.jpg", Title: "Cable"},
			},
			{
				Key:         "b2",
				ProductID:   200,
				VariationID: intPtr(205),
				Name:        "Phone - 128GB",
				Quantity:    1,
				UnitPrice:   dec("1200"),
				LineTotal:   dec("1200"),
				Image:       Image{SourceURL: "https://cdn.example.com/phone-128.jpg", Title: "Phone - 128GB"},
			},
		},
	}

	if diff := cmp.Diff(want, got, decimalComparer); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeStoreAPI(t *testing.T) {
	n := NewNormalizer("https://shop.example.com/placeholder.png")
	got := n.Normalize(mustDecode(t, storeAPICartJSON))

	want := Cart{
		Source:         SourceStoreAPI,
		Currency:       "GHS",
		TotalItemCount: 3,
		TotalPrice:     dec("1221"),
		Items: []LineItem{
			{
				Key:       "a1",
				ProductID: 101,
				Name:      "USB-C Cable",
				Quantity:  2,
				UnitPrice: dec("10.5"),
				LineTotal: dec("21"),
				Image:     Image{SourceURL: "https://cdn.example.com/cable.jpg", Title: "Cable"},
			},
			{
				Key:         "b2",
				ProductID:   205,
				VariationID: intPtr(205),
				Name:        "Phone - 128GB",
				Quantity:    1,
				UnitPrice:   dec("1200"),
				LineTotal:   dec("1200"),
				Image:       Image{SourceURL: "https://shop.example.com/placeholder.png", Title: "Phone - 128GB"},
			},
		},
	}

	if diff := cmp.Diff(want, got, decimalComparer); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeShapeIndependence(t *testing.T) {
	n := NewNormalizer("")
	fromGraphQL := n.Normalize(mustDecode(t, graphqlCartJSON))
	fromStore := n.Normalize(mustDecode(t, storeAPICartJSON))

	if len(fromGraphQL.Items) != len(fromStore.Items) {
		t.Errorf("items: graphql=%d storeapi=%d", len(fromGraphQL.Items), len(fromStore.Items))
	}
	if fromGraphQL.TotalItemCount != fromStore.TotalItemCount {
		t.Errorf("count: graphql=%d storeapi=%d", fromGraphQL.TotalItemCount, fromStore.TotalItemCount)
	}
	tolerance := dec("0.01")
	if fromGraphQL.TotalPrice.Sub(fromStore.TotalPrice).Abs().GreaterThan(tolerance) {
		t.Errorf("total: graphql=%s storeapi=%s", fromGraphQL.TotalPrice, fromStore.TotalPrice)
	}

	// Line-level fields that both schemas carry agree as well.
	opts := cmp.Options{
		decimalComparer,
		cmpopts.IgnoreFields(LineItem{}, "ProductID", "Image"),
	}
	if diff := cmp.Diff(fromGraphQL.Items, fromStore.Items, opts); diff != "" {
		t.Errorf("line items differ (-graphql +storeapi):\n%s", diff)
	}
}

func TestNormalizeEdgeCases(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantItems int
		wantCount int
		wantTotal string
		check     func(t *testing.T, c Cart)
	}{
		{
			name:      "empty graphql contents",
			raw:       `{"data":{"cart":{"contents":{"nodes":[]},"total":"$0.00"}}}`,
			wantTotal: "0",
		},
		{
			name:      "empty store api items",
			raw:       `{"items":[],"items_count":0,"totals":{"total_price":"0"}}`,
			wantTotal: "0",
		},
		{
			name:      "null cart",
			raw:       `{"data":{"cart":null}}`,
			wantTotal: "0",
		},
		{
			name: "graphql zero quantity prices at zero",
			raw: `{"cart":{"contents":{"nodes":[{"key":"k","quantity":0,"total":"$0.00",
			       "product":{"node":{"databaseId":1,"name":"A"}}}]}}}`,
			wantItems: 1,
			wantTotal: "0",
			check: func(t *testing.T, c Cart) {
				if !c.Items[0].UnitPrice.IsZero() {
					t.Errorf("unitPrice = %s, want 0", c.Items[0].UnitPrice)
				}
			},
		},
		{
			name: "graphql node without product skipped",
			raw: `{"cart":{"contents":{"nodes":[{"key":"k","quantity":1,"total":"$5.00","product":null},
			       {"key":"j","quantity":1,"total":"$3.00","product":{"node":{"databaseId":2,"name":"B"}}}]}}}`,
			wantItems: 1,
			wantCount: 1,
			wantTotal: "3",
		},
		{
			name: "graphql missing image uses placeholder",
			raw: `{"cart":{"contents":{"nodes":[{"key":"k","quantity":1,"total":"$3.00",
			       "product":{"node":{"databaseId":2,"name":"B"}}}]},"total":"$3.00"}}`,
			wantItems: 1,
			wantCount: 1,
			wantTotal: "3",
			check: func(t *testing.T, c Cart) {
				if c.Items[0].Image.SourceURL != DefaultPlaceholderImage {
					t.Errorf("image = %q", c.Items[0].Image.SourceURL)
				}
				if c.Items[0].Image.Title != "B" {
					t.Errorf("image title = %q, want B", c.Items[0].Image.Title)
				}
			},
		},
		{
			name: "graphql explicit item count wins",
			raw: `{"cart":{"itemCount":7,"contents":{"nodes":[{"key":"k","quantity":2,"total":"$4.00",
			       "product":{"node":{"databaseId":2,"name":"B"}}}]},"total":"$4.00"}}`,
			wantItems: 1,
			wantCount: 7,
			wantTotal: "4",
		},
		{
			name: "store api quantity forms and summed count",
			raw: `{"items":[
			        {"key":"a","id":1,"name":"A","quantity":"3","prices":{"price":"100"},"totals":{"line_total":"300"}},
			        {"key":"b","id":2,"name":"B","quantity":{"value":2},"prices":{"price":"50"},"totals":{"line_total":"100"}},
			        {"key":"c","id":3,"name":"C","quantity":1,"prices":{"price":200}}
			      ],"totals":{"currency_minor_unit":2}}`,
			wantItems: 3,
			wantCount: 6,
			wantTotal: "6",
			check: func(t *testing.T, c Cart) {
				if !c.Items[2].LineTotal.Equal(dec("2")) {
					t.Errorf("derived lineTotal = %s, want 2", c.Items[2].LineTotal)
				}
			},
		},
		{
			name: "store api default minor unit",
			raw: `{"items":[{"key":"a","id":1,"name":"A","quantity":1,"prices":{"price":"999"},"totals":{"line_total":"999"}}],
			       "totals":{"total_price":"999"}}`,
			wantItems: 1,
			wantCount: 1,
			wantTotal: "9.99",
		},
		{
			name: "store api item minor unit overrides cart",
			raw: `{"items":[{"key":"a","id":1,"name":"A","quantity":1,"prices":{"price":"500","currency_minor_unit":0},
			        "totals":{"line_total":"500"}}],"totals":{"total_price":"500","currency_minor_unit":0}}`,
			wantItems: 1,
			wantCount: 1,
			wantTotal: "500",
			check: func(t *testing.T, c Cart) {
				if !c.Items[0].UnitPrice.Equal(dec("500")) {
					t.Errorf("unitPrice = %s, want 500", c.Items[0].UnitPrice)
				}
			},
		},
	}

	n := NewNormalizer("")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(mustDecode(t, tt.raw))
			if len(got.Items) != tt.wantItems {
				t.Fatalf("items = %d, want %d", len(got.Items), tt.wantItems)
			}
			if got.TotalItemCount != tt.wantCount {
				t.Errorf("count = %d, want %d", got.TotalItemCount, tt.wantCount)
			}
			if !got.TotalPrice.Equal(dec(tt.wantTotal)) {
				t.Errorf("total = %s, want %s", got.TotalPrice, tt.wantTotal)
			}
			if tt.check != nil {
				tt.check(t, got)
			}
		})
	}
}

func TestDecodePrefersGraphQLShape(t *testing.T) {
	raw := `{"contents":{"nodes":[{"key":"k","quantity":1,"total":"$1.00","product":{"node":{"databaseId":1,"name":"A"}}}]},
	         "items":[{"key":"x","id":9,"name":"X","quantity":5,"prices":{"price":"100"}}]}`

	p := mustDecode(t, raw)
	if p.GraphQL == nil || p.StoreAPI != nil {
		t.Fatalf("Decode() = %+v, want GraphQL shape only", p)
	}
	c := NewNormalizer("").Normalize(p)
	if len(c.Items) != 1 || c.Items[0].Key != "k" {
		t.Errorf("items = %+v, want only the GraphQL line", c.Items)
	}
}

func TestDecodeInvalidJSON(t *testing.T) {
	if _, err := Decode([]byte(`<html>`)); err == nil {
		t.Error("expected error for non-JSON input")
	}
}
