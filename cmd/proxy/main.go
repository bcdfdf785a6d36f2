// Command proxy serves the same-origin API routes a headless WooCommerce
// storefront calls and forwards them to WordPress. It keeps no state between
// requests, so any number of instances can run behind a load balancer.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-proxy/internal/config"
	"storefront-proxy/internal/handler"
	"storefront-proxy/internal/middleware"
	"storefront-proxy/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := initLogger(cfg.Environment, cfg.LogLevel)
	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("graphql_url", cfg.Upstream.GraphQLURL),
		slog.String("store_api_url", cfg.Upstream.StoreAPIURL),
		slog.String("wordpress_api_url", cfg.Upstream.WordPressAPIURL),
		slog.Bool("chrome_tls", cfg.Upstream.ChromeTLS),
		slog.Bool("rest_credentials", cfg.Upstream.HasCredentials()),
	)

	upstream := transport.NewUpstreamClient(transport.Options{
		Timeout:   cfg.Upstream.Timeout,
		ChromeTLS: cfg.Upstream.ChromeTLS,
	})
	mux := http.NewServeMux()
	handler.New(cfg.Upstream, upstream, logger).RegisterRoutes(mux)

	// Recovery outermost so panics in logging are caught too.
	chain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID,
		middleware.Logging(logger),
	)

	// Upstream calls may take the whole upstream timeout; leave headroom
	// for reading the request and writing the relayed body.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           chain(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Upstream.Timeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("proxy listening", slog.String("addr", server.Addr))
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		server.Close()
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// initLogger returns a JSON logger in production and a text logger
// elsewhere. An unknown level falls back to info.
func initLogger(environment, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	if environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
