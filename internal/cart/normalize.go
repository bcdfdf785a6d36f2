package cart

import (
	"github.com/shopspring/decimal"

	"storefront-proxy/internal/model"
)

// DefaultPlaceholderImage is shown for lines whose upstream omits an image.
const DefaultPlaceholderImage = "https://via.placeholder.com/100x100?text=No+Image"

// Normalizer maps upstream cart payloads onto the canonical Cart. It is the
// only code that knows both upstream schemas exist.
type Normalizer struct {
	PlaceholderImage string
}

// NewNormalizer returns a Normalizer using placeholder for missing images.
func NewNormalizer(placeholder string) *Normalizer {
	if placeholder == "" {
		placeholder = DefaultPlaceholderImage
	}
	return &Normalizer{PlaceholderImage: placeholder}
}

// Normalize converts p into a complete Cart. A non-empty GraphQL payload
// wins, then a non-empty Store API payload; anything else is an empty cart.
// The two shapes are never merged.
func (n *Normalizer) Normalize(p Payload) Cart {
	switch {
	case p.GraphQL != nil && len(p.GraphQL.Contents.Nodes) > 0:
		return n.fromGraphQL(p.GraphQL)
	case p.StoreAPI != nil && len(p.StoreAPI.Items) > 0:
		return n.fromStoreAPI(p.StoreAPI)
	}
	return Empty()
}

// =============================================================================
// WPGRAPHQL MAPPING
// =============================================================================

func (n *Normalizer) fromGraphQL(c *GraphQLCart) Cart {
	out := Empty()
	out.Source = SourceGraphQL

	lineSum := decimal.Zero
	qtySum := 0

	for _, node := range c.Contents.Nodes {
		if node.Product == nil || node.Product.Node == nil {
			continue
		}
		product := node.Product.Node

		item := LineItem{
			Key:       node.Key,
			ProductID: product.DatabaseID,
			Name:      product.Name,
			Quantity:  max(node.Quantity, 0),
		}

		// A variation overrides the base product for display fields.
		source := product
		if node.Variation != nil && node.Variation.Node != nil {
			v := node.Variation.Node
			id := v.DatabaseID
			item.VariationID = &id
			if v.Name != "" {
				item.Name = v.Name
			}
			source = v
		}

		price := source.Price
		if price == "" {
			price = product.Price
		}

		if node.Total != "" {
			item.LineTotal = model.ParseFormatted(node.Total)
		} else {
			item.LineTotal = model.ParseFormatted(price).Mul(decimal.NewFromInt(int64(item.Quantity)))
		}
		item.UnitPrice = unitPrice(item.LineTotal, item.Quantity)
		item.Image = n.graphqlImage(source, product, item.Name)

		out.Items = append(out.Items, item)
		lineSum = lineSum.Add(item.LineTotal)
		qtySum += item.Quantity
	}

	switch {
	case c.ItemCount != nil:
		out.TotalItemCount = *c.ItemCount
	case c.Contents.ItemCount != nil:
		out.TotalItemCount = *c.Contents.ItemCount
	default:
		out.TotalItemCount = qtySum
	}

	if c.Total != "" {
		out.TotalPrice = model.ParseFormatted(c.Total)
	} else {
		out.TotalPrice = lineSum
	}
	return out
}

func (n *Normalizer) graphqlImage(source, product *GraphQLProduct, name string) Image {
	for _, p := range []*GraphQLProduct{source, product} {
		if p.Image != nil && p.Image.SourceURL != "" {
			title := p.Image.Title
			if title == "" {
				title = name
			}
			return Image{SourceURL: p.Image.SourceURL, Title: title}
		}
	}
	return Image{SourceURL: n.placeholder(), Title: name}
}

// =============================================================================
// STORE API MAPPING
// =============================================================================

func (n *Normalizer) fromStoreAPI(c *StoreAPICart) Cart {
	out := Empty()
	out.Source = SourceStoreAPI

	cartMinor := model.DefaultMinorUnit
	if c.Totals.CurrencyMinorUnit != nil {
		cartMinor = *c.Totals.CurrencyMinorUnit
	}

	lineSum := decimal.Zero
	qtySum := 0

	for _, it := range c.Items {
		minor := cartMinor
		if it.Prices.CurrencyMinorUnit != nil {
			minor = *it.Prices.CurrencyMinorUnit
		}

		item := LineItem{
			Key:       it.Key,
			ProductID: it.ID,
			Name:      it.Name,
			Quantity:  max(int(it.Quantity), 0),
			UnitPrice: model.FromMinorUnits(string(it.Prices.Price), minor),
		}
		if it.Type == "variation" {
			id := it.ID
			item.VariationID = &id
		}

		if it.Totals.LineTotal != "" {
			item.LineTotal = model.FromMinorUnits(string(it.Totals.LineTotal), minor)
		} else {
			item.LineTotal = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		}

		item.Image = Image{SourceURL: n.placeholder(), Title: it.Name}
		if len(it.Images) > 0 && it.Images[0].Src != "" {
			item.Image.SourceURL = it.Images[0].Src
			if it.Images[0].Name != "" {
				item.Image.Title = it.Images[0].Name
			}
		}

		out.Items = append(out.Items, item)
		lineSum = lineSum.Add(item.LineTotal)
		qtySum += item.Quantity
	}

	if c.ItemsCount != nil {
		out.TotalItemCount = *c.ItemsCount
	} else {
		out.TotalItemCount = qtySum
	}

	if c.Totals.TotalPrice != "" {
		out.TotalPrice = model.FromMinorUnits(string(c.Totals.TotalPrice), cartMinor)
	} else {
		out.TotalPrice = lineSum
	}

	if unit, ok := model.ParseCurrency(c.Totals.CurrencyCode); ok {
		out.Currency = unit.String()
	}
	return out
}

// unitPrice divides a line total by its quantity; a zero quantity prices at 0.
func unitPrice(lineTotal decimal.Decimal, qty int) decimal.Decimal {
	if qty <= 0 {
		return decimal.Zero
	}
	return lineTotal.DivRound(decimal.NewFromInt(int64(qty)), 4)
}

func (n *Normalizer) placeholder() string {
	if n.PlaceholderImage != "" {
		return n.PlaceholderImage
	}
	return DefaultPlaceholderImage
}
