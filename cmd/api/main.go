package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/promptlens/promptlens-backend/api/routes"
	"github.com/promptlens/promptlens-backend/internal/admin"
	"github.com/promptlens/promptlens-backend/internal/analysis"
	"github.com/promptlens/promptlens-backend/internal/audit"
	"github.com/promptlens/promptlens-backend/internal/auth"
	"github.com/promptlens/promptlens-backend/internal/billing"
	"github.com/promptlens/promptlens-backend/internal/payments/razorpay"
	"github.com/promptlens/promptlens-backend/internal/prompts"
	"github.com/promptlens/promptlens-backend/internal/quota"
	"github.com/promptlens/promptlens-backend/internal/subscriptions"
	"github.com/promptlens/promptlens-backend/internal/users"
	stripewebhook "github.com/promptlens/promptlens-backend/internal/webhooks/stripe"
	"github.com/promptlens/promptlens-backend/pkg/config"
	"github.com/promptlens/promptlens-backend/pkg/db"
	"github.com/promptlens/promptlens-backend/pkg/enums"
	"github.com/promptlens/promptlens-backend/pkg/googleid"
	"github.com/promptlens/promptlens-backend/pkg/logger"
	"github.com/promptlens/promptlens-backend/pkg/metrics"
	"github.com/promptlens/promptlens-backend/pkg/migrate"
	"github.com/promptlens/promptlens-backend/pkg/openai"
	"github.com/promptlens/promptlens-backend/pkg/redis"
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
		if err := multierr.Combine(redisClient.Close(), dbClient.Close()); err != nil {
			logg.Error(context.Background(), "error closing clients", err)
		}
	}()

	registry := prometheus.NewRegistry()
	apiMetrics := metrics.NewAPIMetrics(registry)

	gdb := dbClient.DB()
	userRepo := users.NewRepository(gdb)
	promptRepo := prompts.NewRepository(gdb)
	auditRepo := audit.NewRepository(gdb)
	ordersRepo := billing.NewOrdersRepository(gdb)
	profilesRepo := billing.NewProfilesRepository(gdb)
	billingSubsRepo := billing.NewSubscriptionsRepository(gdb)
	webhookEventsRepo := billing.NewWebhookEventsRepository(gdb)

	ledger, err := quota.NewLedger(gdb)
	if err != nil {
		logg.Error(context.Background(), "failed to create usage ledger", err)
		os.Exit(1)
	}

	catalog := subscriptions.NewCatalog(cfg.Pricing)
	subsService, err := subscriptions.NewService(subscriptions.ServiceParams{
		DB:      dbClient,
		Repo:    subscriptions.NewRepository(gdb),
		Catalog: catalog,
		Logger:  logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create subscriptions service", err)
		os.Exit(1)
	}

	googleVerifier, err := googleid.NewVerifier(cfg.Google)
	if err != nil {
		logg.Error(context.Background(), "failed to create google verifier", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		Users:          userRepo,
		Subscriptions:  subsService,
		Google:         googleVerifier,
		Usage:          ledger,
		PasswordConfig: cfg.Password,
		JWTConfig:      cfg.JWT,
		Logger:         logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	openaiClient, err := openai.NewClient(cfg.OpenAI, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create openai client", err)
		os.Exit(1)
	}

	analysisService, err := analysis.NewService(analysis.ServiceParams{
		Ledger:   ledger,
		Provider: openaiClient,
		Prompts:  promptRepo,
		Catalog:  catalog,
		Guest:    cfg.Guest,
		Logger:   logg,
		Metrics:  apiMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create analysis service", err)
		os.Exit(1)
	}

	adminService, err := admin.NewService(admin.ServiceParams{
		DB:            dbClient,
		Users:         userRepo,
		Audit:         auditRepo,
		Subscriptions: subsService,
		Password:      cfg.Password,
		Logger:        logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create admin service", err)
		os.Exit(1)
	}

	razorpayClient, err := razorpay.NewClient(cfg.Razorpay, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create razorpay client", err)
		os.Exit(1)
	}
	paymentsService, err := razorpay.NewService(razorpay.ServiceParams{
		Provider:      razorpayClient,
		KeyID:         cfg.Razorpay.KeyID,
		KeySecret:     cfg.Razorpay.KeySecret,
		Orders:        ordersRepo,
		Subscriptions: subsService,
		Logger:        logg,
		Metrics:       apiMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	planByPriceID := map[string]enums.PlanCode{}
	if cfg.Stripe.ProPriceID != "" {
		planByPriceID[cfg.Stripe.ProPriceID] = enums.PlanPro
	}
	if cfg.Stripe.UnlimitedPriceID != "" {
		planByPriceID[cfg.Stripe.UnlimitedPriceID] = enums.PlanUnlimited
	}
	stripeClient, err := stripewebhook.NewClient(cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe client", err)
		os.Exit(1)
	}
	stripeWebhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Events:        webhookEventsRepo,
		Profiles:      profilesRepo,
		BillingSubs:   billingSubsRepo,
		Subscriptions: subsService,
		Users:         userRepo,
		Provider:      stripeClient,
		PlanByPriceID: planByPriceID,
		Logger:        logg,
		Metrics:       apiMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"stripe_env": cfg.Stripe.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(routes.Params{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisClient,
			Registry:      registry,
			Auth:          authService,
			Analysis:      analysisService,
			Subscriptions: subsService,
			Prompts:       promptRepo,
			Payments:      paymentsService,
			Admin:         adminService,
			StripeWebhook: stripeWebhookService,
		}),
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case sig := <-stop:
		logg.Info(logg.WithFields(ctx, map[string]any{"signal": sig.String()}), "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}
