// cartctl is a shopper-side client for the storefront proxy. One state file
// is one shopper session: the WooCommerce session token, Store API nonce,
// customer login and cached menu persist there between commands.
//
// Examples:
//
//	cartctl cart add 60 --quantity 2
//	cartctl cart show
//	cartctl cart set 60:1 61/72:2
//	cartctl --backend storeapi cart buy-now 61
//	cartctl products list --category shoes --first 12
//	cartctl mcp
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(os.Stdout).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
