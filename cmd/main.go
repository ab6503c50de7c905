/*
Package main is the entry point for chatgate.

It is responsible for loading configuration, initializing the global logging system,
connecting Postgres, Redis and object storage, setting up the HTTP server and the WebSocket
Gateway, and gracefully handling operating system interrupt signals (SIGINT, SIGTERM)
to ensure a smooth server shutdown.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"chatgate/internal/app/cache"
	"chatgate/internal/app/chat"
	"chatgate/internal/app/db"
	"chatgate/internal/app/storage"
	"chatgate/internal/configs"
	"chatgate/internal/handler"
	"chatgate/internal/pkg/auth/cookie"
	"chatgate/internal/pkg/auth/jwt"
	"chatgate/internal/pkg/auth/session"
	"chatgate/internal/pkg/logx"
	"chatgate/internal/pkg/metrics"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Bool("redis", cfg.RedisURL != "").
		Bool("storage", cfg.StorageEnabled()).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		logx.Fatal(err, "Failed to connect to database")
	}
	defer pool.Close()

	store, err := db.NewStore(pool)
	if err != nil {
		logx.Fatal(err, "Failed to create store")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	var (
		revoked     session.Revocations = session.NewMemoryRevocations()
		redisClient *redis.Client
	)
	if cfg.RedisURL != "" {
		redisClient, err = cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			logx.Fatal(err, "Failed to connect to Redis")
		}
		defer redisClient.Close()
		revoked = cache.NewRevocations(redisClient)
	} else {
		logx.Warn("REDIS_URL not set; refresh revocations are kept in memory")
	}

	sameSite, err := cfg.SameSite()
	if err != nil {
		logx.Fatal(err, "Invalid cookie configuration")
	}

	codec := jwt.NewCodec(jwt.Config{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.RefreshSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		Issuer:        cfg.TokenIssuer,
	})
	cookies := cookie.NewStore(codec, []byte(cfg.CookieSecret), cookie.Options{
		Secure:   cfg.IsProduction(),
		SameSite: sameSite,
		Domain:   cfg.CookieDomain,
	})
	sessions := session.NewManager(cookies, store, revoked, codec, session.Config{
		RefreshThreshold: cfg.TokenRefreshThreshold,
	}, m)

	gateway := chat.NewGateway(store, chat.DefaultConfig(), m)

	var files storage.StorageService
	if cfg.StorageEnabled() {
		files, err = storage.NewStorageService(ctx, storage.ServiceConfig{
			S3BucketName:      cfg.S3BucketName,
			S3Endpoint:        cfg.S3Endpoint,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			logx.Fatal(err, "Failed to initialize storage service")
		}
	} else {
		logx.Warn("S3 storage not configured; attachment endpoints are disabled")
	}

	deps := &handler.AppDeps{
		Config:   cfg,
		Sessions: sessions,
		Users:    store,
		Rooms:    store,
		Gateway:  gateway,
		Storage:  files,
		Metrics:  m,
		Health: func(ctx context.Context) error {
			if err := store.Ping(ctx); err != nil {
				return err
			}
			if redisClient != nil {
				return cache.Ping(ctx, redisClient)
			}
			return nil
		},
	}

	// Setup HTTP server and routes
	router := handler.Router(ctx, deps)

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("chatgate starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 10 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	// Hijacked sockets are not tracked by the server; close them through the gateway.
	if err := gateway.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Gateway did not drain in time")
	}

	logx.Info("Server gracefully stopped.")
}
