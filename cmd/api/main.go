package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/inving/dispatch/internal/api/router"
	"github.com/inving/dispatch/internal/auth"
	"github.com/inving/dispatch/internal/channels/email"
	"github.com/inving/dispatch/internal/channels/telegram"
	"github.com/inving/dispatch/internal/channels/whatsapp"
	appconfig "github.com/inving/dispatch/internal/config"
	"github.com/inving/dispatch/internal/customers"
	"github.com/inving/dispatch/internal/invoices"
	"github.com/inving/dispatch/internal/merchants"
	"github.com/inving/dispatch/internal/observability/metrics"
	"github.com/inving/dispatch/internal/postgres"
	"github.com/inving/dispatch/internal/scheduler"
	"github.com/inving/dispatch/internal/telegrambot"
	"github.com/inving/dispatch/internal/verification"
	"github.com/inving/dispatch/internal/xendit"
	"github.com/inving/dispatch/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting dispatch API server", "env", cfg.Env, "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.PoolMinSize, cfg.PoolMaxSize)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer func() { _ = redisClient.Close() }()

	// Stores
	authStore := auth.NewStore(pool)
	merchantStore := merchants.NewStore(pool)
	customerStore := customers.NewStore(pool)
	invoiceStore := invoices.NewStore(pool)
	scheduleStore := scheduler.NewScheduleStore(pool)
	queueStore := scheduler.NewQueueStore(pool)
	verificationStore := verification.NewStore(pool)

	// Outbound clients
	whatsappClient := whatsapp.NewClient(cfg.WhatsAppBaseURL, cfg.WhatsAppAPIKey)
	emailSender := email.NewSender(cfg.SendGridAPIKey)
	telegramClient := telegram.NewClient(cfg.TelegramBaseURL, cfg.TelegramBotToken)
	xenditClient := xendit.NewClient(cfg.XenditBaseURL, cfg.XenditSecretKey)

	verificationService := verification.NewService(
		verificationStore, emailSender, whatsappClient, telegramClient, cfg.AppHost, logger)

	// Metrics
	registry := prometheus.NewRegistry()
	pipelineMetrics := metrics.NewPipelineMetrics(registry)

	// Workers
	enqueuer := scheduler.NewEnqueuer(scheduleStore, queueStore, invoiceStore,
		xenditClient, cfg.EnqueueInterval, logger.Component("enqueuer")).
		WithMetrics(pipelineMetrics)

	gate, err := scheduler.NewCronGate(cfg.DispatchCronExpr)
	if err != nil {
		logger.Error("invalid dispatch cron expression", "error", err)
		os.Exit(1)
	}
	dispatcher := scheduler.NewDispatcher(scheduleStore, queueStore, customerStore,
		invoiceStore, scheduler.NewComposer(), cfg.DispatchInterval, logger.Component("dispatcher")).
		WithChannels(whatsappClient, emailSender, telegramClient).
		WithGate(gate).
		WithMetrics(pipelineMetrics)

	go enqueuer.Run(ctx)
	go dispatcher.Run(ctx)

	// Handlers
	hasher := auth.NewHasher(cfg.AppKey)
	authHandler := auth.NewHandler(authStore, hasher, cfg.AppKey, verificationService, logger)
	merchantHandler := merchants.NewHandler(merchantStore, logger)
	customerHandler := customers.NewHandler(customerStore, verificationService, logger)
	invoiceHandler := invoices.NewHandler(invoiceStore, customerStore, xenditClient, logger)
	scheduleHandler := scheduler.NewHandler(scheduleStore, queueStore, invoiceStore,
		customerStore, cfg.MinRecurringWindow, logger)
	verificationHandler := verification.NewHandler(verificationStore, authStore, customerStore, logger)
	telegramWebhook := telegrambot.NewWebhook(
		telegrambot.NewStateStore(redisClient), telegramClient, merchantStore,
		customerStore, verificationService, cfg.TelegramSecretToken, logger.Component("telegrambot"))

	r := router.New(&router.Config{
		Logger:              logger,
		AuthHandler:         authHandler,
		MerchantHandler:     merchantHandler,
		CustomerHandler:     customerHandler,
		InvoiceHandler:      invoiceHandler,
		ScheduleHandler:     scheduleHandler,
		VerificationHandler: verificationHandler,
		TelegramWebhook:     telegramWebhook,
		TokenStore:          authStore,
		MerchantStore:       merchantStore,
		MetricsHandler:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         cfg.Host + ":" + cfg.Port,
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
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}
