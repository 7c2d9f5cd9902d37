package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/velmora/storefront-backend/api/routes"
	"github.com/velmora/storefront-backend/internal/giftcards"
	"github.com/velmora/storefront-backend/internal/invoices"
	"github.com/velmora/storefront-backend/internal/notifications"
	"github.com/velmora/storefront-backend/internal/orders"
	"github.com/velmora/storefront-backend/internal/products"
	"github.com/velmora/storefront-backend/internal/users"
	"github.com/velmora/storefront-backend/internal/wallet"
	stripewebhook "github.com/velmora/storefront-backend/internal/webhooks/stripe"
	"github.com/velmora/storefront-backend/pkg/config"
	"github.com/velmora/storefront-backend/pkg/db"
	"github.com/velmora/storefront-backend/pkg/logger"
	"github.com/velmora/storefront-backend/pkg/metrics"
	"github.com/velmora/storefront-backend/pkg/migrate"
	"github.com/velmora/storefront-backend/pkg/redis"
	pkgstripe "github.com/velmora/storefront-backend/pkg/stripe"
)

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

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	commerceMetrics := metrics.NewCommerceMetrics(registry)

	var stripeClient *pkgstripe.Client
	if cfg.Stripe.APIKey != "" && cfg.Stripe.Secret != "" {
		stripeClient, err = pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to initialize stripe client", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "stripe credentials missing, processor refunds and webhooks disabled")
	}

	conn := dbClient.DB()
	usersRepo := users.NewRepository(conn)
	ordersRepo := orders.NewRepository(conn)
	productsRepo := products.NewRepository(conn)
	invoicesRepo := invoices.NewRepository(conn)
	walletRepo := wallet.NewRepository(conn)
	notificationsRepo := notifications.NewRepository(conn)
	giftCardsRepo := giftcards.NewRepository(conn)

	notificationsSvc, err := notifications.NewService(notificationsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}
	dispatcher := notifications.NewDispatcher(notificationsSvc, logg)

	walletSvc, err := wallet.NewService(walletRepo, usersRepo, dbClient, commerceMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}

	ordersSvc, err := newOrdersService(ordersRepo, dbClient, walletSvc, stripeClient, dispatcher, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	giftCardsSvc, err := giftcards.NewService(giftCardsRepo, walletSvc, dbClient, cfg.GiftCards, cfg.Argon)
	if err != nil {
		logg.Error(context.Background(), "failed to create gift cards service", err)
		os.Exit(1)
	}

	webhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		OrdersRepo:        ordersRepo,
		ProductsRepo:      productsRepo,
		InvoicesRepo:      invoicesRepo,
		TransactionRunner: dbClient,
		Notifier:          dispatcher,
		Logger:            logg,
		Metrics:           commerceMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Webhooks.IdempotencyTTL, "webhooks:stripe")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:               cfg,
			Logger:               logg,
			DB:                   dbClient,
			Redis:                redisClient,
			Registry:             registry,
			OrdersService:        ordersSvc,
			WalletService:        walletSvc,
			GiftCardsService:     giftCardsSvc,
			NotificationsService: notificationsSvc,
			StripeClient:         stripeClient,
			StripeWebhookSvc:     webhookSvc,
			StripeWebhookGuard:   webhookGuard,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

// newOrdersService keeps a missing stripe client from masquerading as a
// non-nil refund dependency.
func newOrdersService(
	repo orders.Repository,
	dbClient *db.Client,
	walletSvc wallet.Service,
	stripeClient *pkgstripe.Client,
	dispatcher *notifications.Dispatcher,
	logg *logger.Logger,
) (orders.Service, error) {
	if stripeClient == nil {
		return orders.NewService(repo, dbClient, walletSvc, nil, dispatcher, logg)
	}
	return orders.NewService(repo, dbClient, walletSvc, stripeClient, dispatcher, logg)
}
