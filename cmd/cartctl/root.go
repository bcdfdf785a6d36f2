package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"storefront-proxy/internal/cart"
	"storefront-proxy/internal/config"
	"storefront-proxy/internal/gqlcache"
	"storefront-proxy/internal/graphql"
	"storefront-proxy/internal/interceptor"
	"storefront-proxy/internal/session"
	"storefront-proxy/internal/storeapi"
)

// rootOptions are the global flags.
type rootOptions struct {
	configPath string
	proxyURL   string
	backend    string
	statePath  string
	jsonOut    bool
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "cartctl",
		Short:         "Storefront cart and session client",
		Long:          "cartctl talks to the storefront proxy the way a browser tab would, keeping one WooCommerce session in a local state file.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "client config file (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&opts.proxyURL, "proxy", "", "storefront proxy base URL")
	rootCmd.PersistentFlags().StringVar(&opts.backend, "backend", "", "cart backend: graphql or storeapi")
	rootCmd.PersistentFlags().StringVar(&opts.statePath, "state", "", "session state file")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonOut, "json", false, "print JSON instead of a table")

	// Subcommands
	rootCmd.AddCommand(newCartCmd(opts))
	rootCmd.AddCommand(newSessionCmd(opts))
	rootCmd.AddCommand(newNonceCmd(opts))
	rootCmd.AddCommand(newProductsCmd(opts))
	rootCmd.AddCommand(newMenuCmd(opts))
	rootCmd.AddCommand(newMCPCmd(opts))

	return rootCmd
}

// app is everything one command invocation needs, wired the same way for
// every command.
type app struct {
	cfg      config.ClientConfig
	logger   *slog.Logger
	out      io.Writer
	jsonOut  bool
	sessions *session.Store
	graphql  *graphql.Client
	storeAPI *storeapi.Client
	cache    *gqlcache.Cache
	cart     *cart.Store
}

// build loads configuration, applies flag overrides and wires the session
// store, interceptor, upstream clients and cart store.
func (o *rootOptions) build(cmd *cobra.Command) (*app, error) {
	cfg, err := config.LoadClient(o.configPath)
	if err != nil {
		return nil, err
	}

	// CLI flags override config values
	if o.proxyURL != "" {
		cfg.ProxyURL = o.proxyURL
	}
	if o.backend != "" {
		cfg.Backend = o.backend
	}
	if o.statePath != "" {
		cfg.StatePath = o.statePath
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	sessions := session.NewStore(session.NewFileStorage(cfg.StatePath), session.WithLogger(logger))

	rt := interceptor.New(http.DefaultTransport, sessions, logger)
	httpClient := &http.Client{Transport: rt, Timeout: timeout}

	proxy := strings.TrimSuffix(cfg.ProxyURL, "/")
	a := &app{
		cfg:      cfg,
		logger:   logger,
		out:      cmd.OutOrStdout(),
		jsonOut:  o.jsonOut,
		sessions: sessions,
		graphql:  graphql.New(proxy+"/api/graphql", httpClient, logger),
		storeAPI: storeapi.New(proxy+"/api/wc-store", httpClient, sessions, logger),
		cache:    gqlcache.New(),
	}

	var backend cart.Backend
	switch cfg.Backend {
	case config.BackendStoreAPI:
		backend = storeapi.NewCartBackend(a.storeAPI)
	default:
		backend = graphql.NewCartBackend(a.graphql, a.cache)
	}
	a.cart = cart.NewStore(backend, cart.NewNormalizer(cfg.PlaceholderImage), sessions, logger)
	rt.OnInvalidSession = a.cart.ClearSession

	return a, nil
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelWarn
	}
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// printJSON writes v as indented JSON.
func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
