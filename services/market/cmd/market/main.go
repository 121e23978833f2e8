package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"secondhand/internal/ratelimit"
	"secondhand/internal/util"
	"secondhand/services/market/internal/app"
	"secondhand/services/market/internal/config"
	"secondhand/services/market/internal/server"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	feedTTL, err := config.ParseFeedCacheTTL(cfg.FeedCacheTTL)
	if err != nil {
		log.Fatalf("failed to parse feed cache TTL: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	application, err := app.New(app.Config{
		PlatformURL:    cfg.PlatformURL,
		PlatformKey:    cfg.PlatformKey,
		RedisAddr:      cfg.RedisAddr,
		RedisPassword:  cfg.RedisPassword,
		FeedCacheTTL:   feedTTL,
		MinioEndpoint:  cfg.MinioEndpoint,
		MinioAccessKey: cfg.MinioAccessKey,
		MinioSecretKey: cfg.MinioSecretKey,
		MinioBucket:    cfg.MinioBucket,
		MinioUseSSL:    cfg.MinioUseSSL,
		Logger:         logger,
	})
	if err != nil {
		log.Fatalf("failed to init application: %v", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	var signInLimiter, signUpLimiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" {
		if cfg.SignInRateLimitPerMinute > 0 {
			signInLimiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "secondhand:market:signin", cfg.SignInRateLimitPerMinute, time.Minute)
			if err != nil {
				log.Fatalf("failed to init sign-in limiter: %v", err)
			}
		}
		if cfg.SignUpRateLimitPerMinute > 0 {
			signUpLimiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "secondhand:market:signup", cfg.SignUpRateLimitPerMinute, time.Minute)
			if err != nil {
				log.Fatalf("failed to init sign-up limiter: %v", err)
			}
		}
	} else if cfg.SignInRateLimitPerMinute > 0 || cfg.SignUpRateLimitPerMinute > 0 {
		logger.Warn("rate limits configured without redis, auth endpoints run unlimited")
	}

	httpServer := server.New(server.Config{
		App:            application,
		SignInLimiter:  signInLimiter,
		SignUpLimiter:  signUpLimiter,
		TrustedProxies: trusted,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application.Start(ctx)
	defer application.Close()

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("market listening", "addr", addr, "offline", application.Platform.Offline())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := group.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}
