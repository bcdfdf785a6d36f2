package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"storefront-proxy/internal/cart"
)

func newCartCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show and change the cart",
	}
	cmd.AddCommand(
		newCartShowCmd(opts),
		newCartAddCmd(opts, false),
		newCartAddCmd(opts, true),
		newCartUpdateCmd(opts),
		newCartRemoveCmd(opts),
		newCartClearCmd(opts),
		newCartSetCmd(opts),
	)
	return cmd
}

func newCartShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Load and print the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			c, err := a.cart.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			return a.printCart(c)
		},
	}
}

// newCartAddCmd builds "add", or "buy-now" when buyNow is set. Both take the
// same arguments; buy-now empties the cart first.
func newCartAddCmd(opts *rootOptions, buyNow bool) *cobra.Command {
	var quantity, variation int

	cmd := &cobra.Command{
		Use:   "add PRODUCT_ID",
		Short: "Add a product to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			productID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid product id %q", args[0])
			}
			in := cart.AddItemInput{ProductID: productID, Quantity: quantity}
			if cmd.Flags().Changed("variation") {
				in.VariationID = &variation
			}

			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			var c cart.Cart
			if buyNow {
				c, err = a.cart.BuyNow(cmd.Context(), in)
			} else {
				c, err = a.cart.AddItem(cmd.Context(), in)
			}
			if err != nil {
				return err
			}
			return a.printCart(c)
		},
	}
	if buyNow {
		cmd.Use = "buy-now PRODUCT_ID"
		cmd.Short = "Replace the cart with a single product"
	}
	cmd.Flags().IntVarP(&quantity, "quantity", "q", 1, "quantity to add")
	cmd.Flags().IntVar(&variation, "variation", 0, "variation ID for variable products")
	return cmd
}

func newCartUpdateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update KEY QUANTITY",
		Short: "Set a line's quantity (0 removes it)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			qty, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			c, err := a.cart.UpdateQuantity(cmd.Context(), args[0], qty)
			if err != nil {
				return err
			}
			return a.printCart(c)
		},
	}
}

func newCartRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove KEY",
		Short: "Remove a line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			c, err := a.cart.RemoveItem(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printCart(c)
		},
	}
}

func newCartClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			c, err := a.cart.ClearCart(cmd.Context())
			if err != nil {
				return err
			}
			return a.printCart(c)
		},
	}
}

func newCartSetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set PRODUCT[/VARIATION]:QTY...",
		Short: "Make the cart hold exactly the given lines",
		Long: `Make the cart hold exactly the given lines. Lines already in the cart
keep their keys; only the removals, quantity changes and adds needed are sent.
With no arguments the cart is emptied line by line.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			desired := make([]cart.DesiredLine, 0, len(args))
			for _, arg := range args {
				line, err := parseDesiredLine(arg)
				if err != nil {
					return err
				}
				desired = append(desired, line)
			}

			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			c, err := a.cart.SetContents(cmd.Context(), desired)
			if err != nil {
				return err
			}
			return a.printCart(c)
		},
	}
}

// parseDesiredLine reads "60:2" or "60/61:2". The quantity defaults to 1.
func parseDesiredLine(s string) (cart.DesiredLine, error) {
	var line cart.DesiredLine
	product, qty, hasQty := strings.Cut(s, ":")
	line.Quantity = 1
	if hasQty {
		n, err := strconv.Atoi(qty)
		if err != nil {
			return line, fmt.Errorf("invalid quantity in %q", s)
		}
		line.Quantity = n
	}

	product, variation, hasVariation := strings.Cut(product, "/")
	id, err := strconv.Atoi(product)
	if err != nil {
		return line, fmt.Errorf("invalid product id in %q", s)
	}
	line.ProductID = id
	if hasVariation {
		v, err := strconv.Atoi(variation)
		if err != nil {
			return line, fmt.Errorf("invalid variation id in %q", s)
		}
		line.VariationID = &v
	}
	return line, nil
}

// printCart renders c as a table, or JSON with --json.
func (a *app) printCart(c cart.Cart) error {
	if a.jsonOut {
		return a.printJSON(c)
	}
	if c.IsEmpty() {
		fmt.Fprintln(a.out, "cart is empty")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tPRODUCT\tNAME\tQTY\tUNIT\tTOTAL")
	for _, item := range c.Items {
		product := strconv.Itoa(item.ProductID)
		if item.VariationID != nil {
			product += "/" + strconv.Itoa(*item.VariationID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			item.Key, product, item.Name, item.Quantity,
			item.UnitPrice.StringFixed(2), item.LineTotal.StringFixed(2))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "\n%d items, total %s %s\n", c.TotalItemCount, c.TotalPrice.StringFixed(2), c.Currency)
	return nil
}
