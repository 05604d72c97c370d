package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"docvault/internal/audit"
	"docvault/internal/category"
	"docvault/internal/config"
	"docvault/internal/document"
	"docvault/internal/identity"
	"docvault/internal/ratelimit"
	"docvault/internal/server"
	"docvault/internal/usertoken"
	"docvault/internal/util"
	"docvault/pkg/storage"
	"docvault/pkg/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	tokenTTL, err := config.ParseTokenTTL(cfg.TokenTTL)
	if err != nil {
		log.Fatalf("failed to parse token ttl: %v", err)
	}
	tokens, err := usertoken.New(usertoken.Options{
		Secret:   []byte(cfg.TokenSecret),
		Issuer:   cfg.TokenIssuer,
		Audience: cfg.TokenAudience,
		TTL:      tokenTTL,
	})
	if err != nil {
		log.Fatalf("failed to init token codec: %v", err)
	}

	st, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}

	var blobs storage.ObjectStore
	switch cfg.StorageBackend {
	case "minio":
		blobs, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	default:
		blobs, err = storage.NewFileStore(cfg.StoragePath)
	}
	if err != nil {
		log.Fatalf("failed to init blob storage: %v", err)
	}

	const rateWindow = 15 * time.Minute
	sensitive, err := ratelimit.NewSlidingWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "docvault:ratelimit", cfg.SensitiveRateLimit, rateWindow)
	if err != nil {
		log.Fatalf("failed to init sensitive rate limiter: %v", err)
	}
	general, err := ratelimit.NewSlidingWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "docvault:ratelimit", cfg.GeneralRateLimit, rateWindow)
	if err != nil {
		log.Fatalf("failed to init general rate limiter: %v", err)
	}

	auditOpts := audit.Options{}
	var publisher *audit.AMQPPublisher
	if cfg.AMQPURL != "" {
		publisher, err = audit.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("failed to init audit publisher: %v", err)
		}
		auditOpts.Sink = publisher
	}
	recorder := audit.NewRecorder(st, auditOpts)

	proxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trustedProxies: %v", err)
	}

	httpServer := server.New(server.Config{
		Store:          st,
		Identity:       identity.NewService(st),
		Categories:     category.NewService(st),
		Documents:      document.NewService(st, blobs),
		Audit:          recorder,
		Tokens:         tokens,
		Sensitive:      sensitive,
		General:        general,
		TrustedProxies: proxies,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("docvault server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}

	// Drain pending audit writes before exiting.
	recorder.Close()
	if publisher != nil {
		publisher.Close()
	}
}
