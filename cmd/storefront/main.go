// Storefront - Serves the mobile storefront's catalog, search, wishlist,
// cart and push registration on top of a WooCommerce store.
// Designed for Cloud Run deployment; per-user state is a bounded cache.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront/internal/catalog"
	"storefront/internal/clientinfo"
	"storefront/internal/config"
	"storefront/internal/feed"
	"storefront/internal/handler"
	"storefront/internal/middleware"
	"storefront/internal/push"
	"storefront/internal/session"
	"storefront/internal/woocommerce"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration first: it may read LOG_LEVEL from a .env file
	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := initLogger(cfg)
	logger.Info("configuration loaded",
		slog.String("store_id", cfg.StoreID),
		slog.String("environment", cfg.Environment),
		slog.String("store_url", cfg.Store.StoreURL),
		slog.Int("page_size", cfg.Catalog.PageSize),
	)

	store, err := woocommerce.New(woocommerce.Config{
		StoreURL:          cfg.Store.StoreURL,
		APIKey:            cfg.Store.APIKey,
		APISecret:         cfg.Store.APISecret,
		RequestsPerSecond: cfg.Store.RequestsPerSecond,
		Burst:             cfg.Store.Burst,
		PlainTLS:          cfg.Store.PlainTLS,
	})
	if err != nil {
		return fmt.Errorf("creating store client: %w", err)
	}

	mapper := catalog.NewMapper(catalog.NewResolver(store, logger), catalog.MapperConfig{
		CurrencyMarkers:  cfg.Catalog.CurrencyMarkers,
		PlaceholderImage: cfg.Catalog.PlaceholderImage,
		Concurrency:      cfg.Catalog.Concurrency,
	})
	pager := feed.NewPager(store, mapper, cfg.Catalog.PageSize)

	tokens, closeTokens, err := newTokenStore(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeTokens()

	h := handler.New(store, mapper, pager, tokens, handler.Config{
		LoginURL:       cfg.LoginURL,
		NoticeDuration: cfg.NoticeDuration,
		PushEndpoint:   cfg.Push.Endpoint,
		PushProjectID:  cfg.Push.ProjectID,
	}, logger)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	var verifier *session.Verifier
	if cfg.Store.JWTSecret != "" {
		verifier = session.NewVerifier(cfg.Store.JWTSecret, cfg.Store.JWTIssuer)
	} else {
		logger.Warn("no JWT secret configured, all requests are signed out")
	}

	// Apply middleware chain: recovery → request id → logging → client gate → auth → handler
	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
		clientinfo.Middleware(cfg.MinClientVersion, logger),
		middleware.Auth(verifier, logger),
	)(mux)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Channel for server errors
	serverErr := make(chan error, 1)

	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// newTokenStore returns the Redis-backed push token store when an address is
// configured, otherwise an in-memory one.
func newTokenStore(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (push.Store, func(), error) {
	if cfg.Addr == "" {
		logger.Info("push tokens kept in memory")
		return push.NewMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("push tokens kept in redis", slog.String("addr", cfg.Addr))
	return push.NewRedisStore(client, "storefront:"), func() { client.Close() }, nil
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	if cfg.Environment == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
