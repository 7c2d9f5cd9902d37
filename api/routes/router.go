package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/velmora/storefront-backend/api/controllers"
	webhookcontrollers "github.com/velmora/storefront-backend/api/controllers/webhooks"
	"github.com/velmora/storefront-backend/api/middleware"
	"github.com/velmora/storefront-backend/internal/giftcards"
	"github.com/velmora/storefront-backend/internal/notifications"
	"github.com/velmora/storefront-backend/internal/orders"
	"github.com/velmora/storefront-backend/internal/wallet"
	stripewebhook "github.com/velmora/storefront-backend/internal/webhooks/stripe"
	"github.com/velmora/storefront-backend/pkg/config"
	"github.com/velmora/storefront-backend/pkg/db"
	"github.com/velmora/storefront-backend/pkg/enums"
	"github.com/velmora/storefront-backend/pkg/logger"
	"github.com/velmora/storefront-backend/pkg/redis"
	pkgstripe "github.com/velmora/storefront-backend/pkg/stripe"
)

// RouterParams aggregates everything the HTTP surface depends on.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    *redis.Client
	Registry *prometheus.Registry

	OrdersService        orders.Service
	WalletService        wallet.Service
	GiftCardsService     giftcards.Service
	NotificationsService notifications.Service

	StripeClient       *pkgstripe.Client
	StripeWebhookSvc   *stripewebhook.Service
	StripeWebhookGuard *stripewebhook.IdempotencyGuard
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, p.Redis))
	})

	if p.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(p.StripeWebhookSvc, p.StripeClient, p.StripeWebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(p.OrdersService, logg))
			r.Get("/{orderId}", controllers.GetOrder(p.OrdersService, logg))
			r.Post("/{orderId}/cancellation-request", controllers.RequestOrderCancellation(p.OrdersService, logg))
			r.Post("/{orderId}/cancel", controllers.CancelOwnOrder(p.OrdersService, logg))
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", controllers.WalletBalance(p.WalletService, logg))
			r.Get("/transactions", controllers.WalletTransactions(p.WalletService, logg))
			r.Route("/withdrawals", func(r chi.Router) {
				r.Get("/", controllers.ListWithdrawals(p.WalletService, logg))
				r.Post("/", controllers.RequestWithdrawal(p.WalletService, logg))
				r.Post("/{withdrawalId}/cancel", controllers.CancelWithdrawal(p.WalletService, logg))
			})
		})

		r.Route("/gift-cards", func(r chi.Router) {
			r.Get("/", controllers.ListGiftCards(p.GiftCardsService, logg))
			r.Post("/", controllers.PurchaseGiftCard(p.GiftCardsService, logg))
			r.Post("/redeem", controllers.RedeemGiftCard(p.GiftCardsService, logg))
			r.Get("/{giftCardId}", controllers.GetGiftCard(p.GiftCardsService, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(p.NotificationsService, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(p.NotificationsService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(p.NotificationsService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(string(enums.UserRoleAdmin), logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/{orderId}", controllers.GetOrder(p.OrdersService, logg))
			r.Post("/{orderId}/status", controllers.AdminUpdateOrderStatus(p.OrdersService, logg))
			r.Post("/{orderId}/cancellation/approve", controllers.AdminApproveCancellation(p.OrdersService, logg))
			r.Post("/{orderId}/cancellation/reject", controllers.AdminRejectCancellation(p.OrdersService, logg))
			r.Post("/{orderId}/cancel", controllers.AdminCancelOrder(p.OrdersService, logg))
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Post("/credit", controllers.AdminCreditWallet(p.WalletService, logg))
		})

		r.Route("/withdrawals", func(r chi.Router) {
			r.Get("/", controllers.AdminListWithdrawals(p.WalletService, logg))
			r.Post("/{withdrawalId}/approve", controllers.AdminResolveWithdrawal(p.WalletService, "approve", logg))
			r.Post("/{withdrawalId}/reject", controllers.AdminResolveWithdrawal(p.WalletService, "reject", logg))
			r.Post("/{withdrawalId}/processing", controllers.AdminResolveWithdrawal(p.WalletService, "processing", logg))
			r.Post("/{withdrawalId}/complete", controllers.AdminResolveWithdrawal(p.WalletService, "complete", logg))
		})

		r.Route("/gift-cards", func(r chi.Router) {
			r.Post("/{giftCardId}/void", controllers.AdminVoidGiftCard(p.GiftCardsService, logg))
		})
	})

	return r
}
