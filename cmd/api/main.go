package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/porteroai/portero/internal/api/router"
	appconfig "github.com/porteroai/portero/internal/config"
	"github.com/porteroai/portero/internal/audit"
	"github.com/porteroai/portero/internal/authorization"
	"github.com/porteroai/portero/internal/conversation"
	"github.com/porteroai/portero/internal/directory"
	"github.com/porteroai/portero/internal/gateops"
	"github.com/porteroai/portero/internal/messaging"
	"github.com/porteroai/portero/internal/observability/metrics"
	"github.com/porteroai/portero/internal/resolver"
	"github.com/porteroai/portero/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting portero API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	// Redis: pending authorizations and session state.
	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()

	pendingStore := authorization.NewRedisStore(rdb, cfg.PendingAuthTTL)
	sessionStore := conversation.NewRedisSessionStore(rdb, cfg.SessionTTL)

	// Postgres: resident directory and the audit trail.
	var residentRepo directory.Repository
	var auditRecorder audit.Recorder
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to create postgres pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		residentRepo = directory.NewCachedRepository(directory.NewPgRepository(pool), cfg.DirectoryRefresh)
		auditRecorder = audit.NewPgStore(pool)
	} else {
		logger.Warn("DATABASE_URL not set; using empty in-memory directory")
		residentRepo = directory.NewMemoryRepository()
		auditRecorder = audit.NewMemoryStore()
	}

	// Metrics.
	registry := prometheus.NewRegistry()
	doormanMetrics := metrics.NewDoormanMetrics(registry)

	// Tool gateway: WhatsApp for notifications, the bridge for hardware.
	sender := messaging.NewWhatsAppSender(cfg.WhatsAppGatewayURL, cfg.WhatsAppAPIKey, cfg.WhatsAppSenderID, cfg.CondominiumName, logger)
	bridge := gateops.NewBridgeClient(cfg.GateBridgeURL, cfg.GateBridgeToken, logger)
	gateway := gateops.NewGateway(sender, bridge, logger)

	resolverOpts := resolver.DefaultOptions()
	resolverOpts.Threshold = cfg.FuzzyThreshold
	resolverOpts.AmbiguityWindow = cfg.AmbiguityWindow

	machine := conversation.NewMachine(residentRepo, pendingStore, gateway, conversation.MachineConfig{
		EscalationThreshold: cfg.EscalationThreshold,
		OpenGateRetries:     cfg.OpenGateRetries,
		OpenGateBackoff:     cfg.OpenGateBackoff,
		OperatorRef:         cfg.OperatorRef,
		Resolver:            resolverOpts,
	}, logger).WithMetrics(doormanMetrics)

	conversationHandler := conversation.NewHandler(machine, sessionStore, auditRecorder, logger)
	webhookHandler := messaging.NewWebhookHandler(cfg.WebhookSecret, pendingStore, logger).WithMetrics(doormanMetrics)

	r := router.New(&router.Config{
		Logger:              logger,
		ConversationHandler: conversationHandler,
		WebhookHandler:      webhookHandler,
		MetricsHandler:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
