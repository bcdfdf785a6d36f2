// Package cartmcp exposes the cart store as MCP tools so an agent can shop
// with the same session a cartctl user would.
package cartmcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"storefront-proxy/internal/cart"
	"storefront-proxy/internal/model"
)

// === Tool Input/Output Types ===

// GetCartInput is the input schema for get_cart.
type GetCartInput struct {
	Refresh bool `json:"refresh,omitempty" jsonschema:"reload the cart from the store instead of returning the held copy"`
}

// AddToCartInput is the input schema for add_to_cart and buy_now.
type AddToCartInput struct {
	ProductID   int  `json:"product_id" jsonschema:"WooCommerce product database ID"`
	Quantity    int  `json:"quantity" jsonschema:"number of units, at least 1"`
	VariationID *int `json:"variation_id,omitempty" jsonschema:"variation database ID for variable products"`
}

// UpdateCartItemInput is the input schema for update_cart_item.
type UpdateCartItemInput struct {
	Key      string `json:"key" jsonschema:"cart line key"`
	Quantity int    `json:"quantity" jsonschema:"new quantity, 0 removes the line"`
}

// RemoveCartItemInput is the input schema for remove_cart_item.
type RemoveCartItemInput struct {
	Key string `json:"key" jsonschema:"cart line key"`
}

// SetCartInput is the input schema for set_cart.
type SetCartInput struct {
	Lines []SetCartLine `json:"lines" jsonschema:"every line the cart should hold; lines not listed are removed"`
}

// SetCartLine is one desired line.
type SetCartLine struct {
	ProductID   int  `json:"product_id" jsonschema:"WooCommerce product database ID"`
	VariationID *int `json:"variation_id,omitempty" jsonschema:"variation database ID for variable products"`
	Quantity    int  `json:"quantity" jsonschema:"desired quantity, 0 means absent"`
}

// EmptyInput is used by tools that take no arguments.
type EmptyInput struct{}

// CartOutput is the cart as returned to MCP clients. Money is rendered as
// fixed two-place decimal strings.
type CartOutput struct {
	Items          []LineOutput `json:"items"`
	TotalItemCount int          `json:"total_item_count"`
	TotalPrice     string       `json:"total_price"`
	Currency       string       `json:"currency,omitempty"`
	Source         string       `json:"source,omitempty"`
}

// LineOutput is one cart line.
type LineOutput struct {
	Key         string `json:"key"`
	ProductID   int    `json:"product_id"`
	VariationID *int   `json:"variation_id,omitempty"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	LineTotal   string `json:"line_total"`
	ImageURL    string `json:"image_url,omitempty"`
}

// Server binds cart tools to one cart store.
type Server struct {
	store  *cart.Store
	logger *slog.Logger
}

// New creates a Server over store.
func New(store *cart.Store, logger *slog.Logger) *Server {
	return &Server{store: store, logger: logger}
}

// MCPServer creates an MCP server with the cart tools registered.
func (s *Server) MCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "cartctl",
			Version: "1.0.0",
		},
		&mcp.ServerOptions{
			Instructions: "Storefront cart tools. Every tool returns the full cart the store " +
				"holds after the call. Line keys come from get_cart.",
		},
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_cart",
		Description: "Return the current cart. Set refresh to reload it from the store.",
	}, s.getCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_to_cart",
		Description: "Add a product, or one variation of it, to the cart.",
	}, s.addToCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_cart_item",
		Description: "Set the quantity of a cart line. Quantity 0 removes the line.",
	}, s.updateCartItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "remove_cart_item",
		Description: "Remove a cart line.",
	}, s.removeCartItem)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_cart",
		Description: "Remove every line from the cart.",
	}, s.clearCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "buy_now",
		Description: "Empty the cart, then add a single product so checkout contains only it.",
	}, s.buyNow)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_cart",
		Description: "Make the cart hold exactly the given lines, changing only what differs.",
	}, s.setCart)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "reset_session",
		Description: "Forget the store session and start over with an empty cart.",
	}, s.resetSession)

	return server
}

// Run serves the tools over stdio until ctx ends or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.MCPServer().Run(ctx, &mcp.StdioTransport{})
}

// === Tool Handlers ===

func (s *Server) getCart(ctx context.Context, req *mcp.CallToolRequest, in GetCartInput) (*mcp.CallToolResult, CartOutput, error) {
	if !in.Refresh {
		return nil, toOutput(s.store.Snapshot()), nil
	}
	return s.result(s.store.Refresh(ctx))
}

func (s *Server) addToCart(ctx context.Context, req *mcp.CallToolRequest, in AddToCartInput) (*mcp.CallToolResult, CartOutput, error) {
	return s.result(s.store.AddItem(ctx, in.toCart()))
}

func (s *Server) updateCartItem(ctx context.Context, req *mcp.CallToolRequest, in UpdateCartItemInput) (*mcp.CallToolResult, CartOutput, error) {
	return s.result(s.store.UpdateQuantity(ctx, in.Key, in.Quantity))
}

func (s *Server) removeCartItem(ctx context.Context, req *mcp.CallToolRequest, in RemoveCartItemInput) (*mcp.CallToolResult, CartOutput, error) {
	return s.result(s.store.RemoveItem(ctx, in.Key))
}

func (s *Server) clearCart(ctx context.Context, req *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, CartOutput, error) {
	return s.result(s.store.ClearCart(ctx))
}

func (s *Server) buyNow(ctx context.Context, req *mcp.CallToolRequest, in AddToCartInput) (*mcp.CallToolResult, CartOutput, error) {
	return s.result(s.store.BuyNow(ctx, in.toCart()))
}

func (s *Server) setCart(ctx context.Context, req *mcp.CallToolRequest, in SetCartInput) (*mcp.CallToolResult, CartOutput, error) {
	desired := make([]cart.DesiredLine, len(in.Lines))
	for i, l := range in.Lines {
		desired[i] = cart.DesiredLine{ProductID: l.ProductID, VariationID: l.VariationID, Quantity: l.Quantity}
	}
	return s.result(s.store.SetContents(ctx, desired))
}

func (s *Server) resetSession(ctx context.Context, req *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, CartOutput, error) {
	s.store.ClearSession()
	return nil, toOutput(s.store.Snapshot()), nil
}

func (in AddToCartInput) toCart() cart.AddItemInput {
	return cart.AddItemInput{
		ProductID:   in.ProductID,
		Quantity:    in.Quantity,
		VariationID: in.VariationID,
	}
}

func (s *Server) result(c cart.Cart, err error) (*mcp.CallToolResult, CartOutput, error) {
	if err != nil {
		return nil, CartOutput{}, s.mcpError(err)
	}
	return nil, toOutput(c), nil
}

// mcpError converts cart errors to MCP-friendly errors.
func (s *Server) mcpError(err error) error {
	var apiErr *model.APIError
	switch {
	case errors.As(err, &apiErr):
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	case errors.Is(err, model.ErrMutationInFlight):
		return model.ErrMutationInFlight
	case errors.Is(err, model.ErrUpstreamError), errors.Is(err, model.ErrInvalidSession):
		return err
	}
	// Don't leak internal error details
	s.logger.Error("mcp internal error", slog.String("error", err.Error()))
	return fmt.Errorf("internal error")
}

func toOutput(c cart.Cart) CartOutput {
	out := CartOutput{
		Items:          make([]LineOutput, len(c.Items)),
		TotalItemCount: c.TotalItemCount,
		TotalPrice:     c.TotalPrice.StringFixed(2),
		Currency:       c.Currency,
		Source:         string(c.Source),
	}
	for i, item := range c.Items {
		out.Items[i] = LineOutput{
			Key:         item.Key,
			ProductID:   item.ProductID,
			VariationID: item.VariationID,
			Name:        item.Name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.StringFixed(2),
			LineTotal:   item.LineTotal.StringFixed(2),
			ImageURL:    item.Image.SourceURL,
		}
	}
	return out
}
