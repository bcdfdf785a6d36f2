package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"storefront-proxy/internal/cartmcp"
	"storefront-proxy/internal/graphql"
)

func newProductsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: "Browse the catalog",
	}
	cmd.AddCommand(newProductsListCmd(opts))
	return cmd
}

func newProductsListCmd(opts *rootOptions) *cobra.Command {
	var (
		first    int
		after    string
		category string
		search   string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List one page of products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}

			where := map[string]any{}
			if category != "" {
				where["category"] = category
			}
			if search != "" {
				where["search"] = search
			}

			page, err := graphql.NewCatalog(a.graphql, a.cache).Products(cmd.Context(), graphql.ProductsQuery{
				First: first,
				After: after,
				Where: where,
			})
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(page)
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSLUG\tNAME\tPRICE")
			for _, p := range page.Nodes {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", databaseID(p.DatabaseID), p.Slug, p.Name, p.Price)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if page.PageInfo.HasNextPage {
				fmt.Fprintf(a.out, "\nnext page: --after %s\n", page.PageInfo.EndCursor)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&first, "first", graphql.DefaultPageSize, "page size")
	cmd.Flags().StringVar(&after, "after", "", "cursor from the previous page")
	cmd.Flags().StringVar(&category, "category", "", "category slug")
	cmd.Flags().StringVar(&search, "search", "", "search text")
	return cmd
}

func newMenuCmd(opts *rootOptions) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "menu",
		Short: "Print the category menu",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			if refresh {
				a.sessions.ClearMenu()
			}
			menu, err := graphql.NewCatalog(a.graphql, a.cache).Menu(cmd.Context(), a.sessions)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(menu)
			}
			for _, c := range menu.Categories {
				indent := ""
				if c.ParentID != 0 {
					indent = "  "
				}
				fmt.Fprintf(a.out, "%s%s (%s)\n", indent, c.Name, c.Slug)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore the cached menu")
	return cmd
}

func newNonceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "nonce",
		Short: "Fetch and store a fresh Store API nonce",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			n, err := a.storeAPI.FetchNonce(cmd.Context())
			if err != nil {
				return err
			}
			return a.printJSON(n)
		},
	}
}

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the cart as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build(cmd)
			if err != nil {
				return err
			}
			return cartmcp.New(a.cart, a.logger).Run(cmd.Context())
		},
	}
}

func databaseID(id *int) string {
	if id == nil {
		return "-"
	}
	return strconv.Itoa(*id)
}
