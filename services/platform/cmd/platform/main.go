package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"secondhand/internal/util"
	"secondhand/services/platform/internal/config"
	"secondhand/services/platform/internal/server"
	"secondhand/services/platform/internal/store"
	"secondhand/services/platform/internal/token"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	tokenTTL, err := config.ParseTokenTTL(cfg.TokenTTL)
	if err != nil {
		log.Fatalf("failed to parse token TTL: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	var dataStore store.Store
	if cfg.DatabaseURL != "" {
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to init postgres store: %v", err)
		}
	} else {
		logger.Warn("no database URL configured, using in-memory store")
		dataStore = store.NewMemoryStore()
	}

	var refreshStore store.RefreshTokenStore
	if cfg.RedisAddr != "" {
		refreshStore = store.NewRedisRefreshTokenStore(cfg.RedisAddr, cfg.RedisPassword, 30*24*time.Hour)
	} else {
		logger.Warn("no redis configured, refresh tokens kept in-memory")
		refreshStore = store.NewMemoryRefreshTokenStore()
	}

	issuer, err := token.NewIssuer(cfg.JWTSecret, tokenTTL)
	if err != nil {
		log.Fatalf("failed to init token issuer: %v", err)
	}

	httpServer := server.New(server.Config{
		APIKey:        cfg.APIKey,
		Store:         dataStore,
		RefreshTokens: refreshStore,
		Tokens:        issuer,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("platform emulator listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
