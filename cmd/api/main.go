package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/seatswap/seatswap-backend/api/routes"
	checkoutsvc "github.com/seatswap/seatswap-backend/internal/checkout"
	completionsvc "github.com/seatswap/seatswap-backend/internal/completion"
	"github.com/seatswap/seatswap-backend/internal/credits"
	ordersvc "github.com/seatswap/seatswap-backend/internal/orders"
	ticketsvc "github.com/seatswap/seatswap-backend/internal/tickets"
	paymentsvc "github.com/seatswap/seatswap-backend/internal/webhooks/payment"
	"github.com/seatswap/seatswap-backend/pkg/config"
	"github.com/seatswap/seatswap-backend/pkg/db"
	"github.com/seatswap/seatswap-backend/pkg/logger"
	"github.com/seatswap/seatswap-backend/pkg/metrics"
	"github.com/seatswap/seatswap-backend/pkg/migrate"
	"github.com/seatswap/seatswap-backend/pkg/outbox"
	"github.com/seatswap/seatswap-backend/pkg/redis"
	"github.com/seatswap/seatswap-backend/pkg/stripe"
)

const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	marketplaceMetrics := metrics.NewMarketplaceMetrics(registry)

	gormDB := dbClient.DB()
	ordersRepo := ordersvc.NewRepository(gormDB)
	ticketsRepo := ticketsvc.NewRepository(gormDB)
	creditsRepo := credits.NewRepository(gormDB)
	webhookRepo := paymentsvc.NewRepository(gormDB)
	outboxSvc := outbox.NewService(outbox.NewRepository(gormDB), logg)

	ticketsService, err := ticketsvc.NewService(ticketsRepo, dbClient, outboxSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create tickets service", err)
		os.Exit(1)
	}
	checkoutService, err := checkoutsvc.NewService(ordersRepo, ticketsRepo, creditsRepo, dbClient, outboxSvc, cfg.Checkout)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}
	ordersService, err := ordersvc.NewService(ordersRepo, dbClient, outboxSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}
	completionService, err := completionsvc.NewService(ordersRepo, ticketsRepo, creditsRepo, dbClient, outboxSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create completion service", err)
		os.Exit(1)
	}
	paymentService, err := paymentsvc.NewService(ordersRepo, webhookRepo, redisClient, dbClient, outboxSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	handler := routes.NewRouter(routes.Deps{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Redis:         redisClient,
		StripeClient:  stripeClient,
		Tickets:       ticketsService,
		Checkout:      checkoutService,
		Orders:        ordersService,
		Completion:    completionService,
		PaymentEvents: paymentService,
		Metrics:       marketplaceMetrics,
		Registry:      registry,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server shutting down gracefully")
}
