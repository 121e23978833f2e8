// Package app wires the marketplace application: the platform client,
// the session resolver, and the catalog.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"secondhand/pkg/platform"
	"secondhand/pkg/session"
	"secondhand/pkg/storage"
	"secondhand/services/market/internal/catalog"
)

// Config holds runtime configuration for the application core.
type Config struct {
	PlatformURL string
	PlatformKey string

	RedisAddr     string
	RedisPassword string
	FeedCacheTTL  time.Duration

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	Logger *slog.Logger

	// Overrides for tests.
	Client platform.Client
	Covers storage.ObjectStore
}

// App is the application core handed to the HTTP server.
type App struct {
	Platform platform.Client
	Sessions *session.Resolver
	Catalog  *catalog.Service
}

// New constructs the application. Missing platform credentials select
// offline mode; missing Redis or MinIO settings simply disable the
// feed cache and cover uploads.
func New(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := cfg.Client
	if client == nil {
		client = platform.New(platform.Config{
			URL:    cfg.PlatformURL,
			Key:    cfg.PlatformKey,
			Logger: logger,
		})
	}

	var cache *catalog.Cache
	if cfg.RedisAddr != "" {
		cache = catalog.NewCache(cfg.RedisAddr, cfg.RedisPassword, cfg.FeedCacheTTL)
	}

	covers := cfg.Covers
	if covers == nil && cfg.MinioEndpoint != "" {
		store, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("init cover storage: %w", err)
		}
		covers = store
	}

	return &App{
		Platform: client,
		Sessions: session.New(client, logger),
		Catalog: catalog.New(catalog.Config{
			Client: client,
			Cache:  cache,
			Covers: covers,
			Logger: logger,
		}),
	}, nil
}

// Start begins session resolution.
func (a *App) Start(ctx context.Context) {
	a.Sessions.Start(ctx)
}

// Close releases the session subscription.
func (a *App) Close() {
	a.Sessions.Dispose()
}
