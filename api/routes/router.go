package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/orderflow-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/orderflow-backend/api/controllers/webhooks"
	"github.com/angelmondragon/orderflow-backend/api/middleware"
	"github.com/angelmondragon/orderflow-backend/internal/balance"
	checkoutsvc "github.com/angelmondragon/orderflow-backend/internal/checkout"
	"github.com/angelmondragon/orderflow-backend/internal/documents"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/refunds"
	"github.com/angelmondragon/orderflow-backend/internal/stock"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/enums"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/redis"
)

// Deps is everything the HTTP surface calls into. Nil services answer with
// an internal error rather than panicking; nil Redis dependencies disable
// the middleware that needs them.
type Deps struct {
	Checkout  checkoutsvc.Service
	Orders    orders.Service
	Poller    controllers.IntentPoller
	Balance   balance.Service
	Refunds   refunds.Service
	Documents documents.Service
	Stock     stock.Ledger

	Webhooks     webhookcontrollers.StripeWebhookService
	StripeClient webhookcontrollers.StripeClient
	WebhookGuard webhookcontrollers.StripeWebhookGuard

	Idempotency redis.IdempotencyStore
	RateLimiter redis.RateLimiter
	Ready       map[string]controllers.Pinger
	HTTPMetrics *metrics.HTTPMetrics
	Gatherer    prometheus.Gatherer
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(deps.HTTPMetrics),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	tokenPolicy := middleware.NewTokenRateLimitPolicy("balance", cfg.RateLimit.TokenWindow, cfg.RateLimit.TokenLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.Ready, logg))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Post("/api/webhooks/stripe", webhookcontrollers.StripeWebhook(deps.Webhooks, deps.StripeClient, deps.WebhookGuard, logg))
	r.Get("/api/products/{productId}/stock-availability", controllers.StockAvailability(deps.Stock, logg))

	// Balance links authorize with ?token= or the buyer's own bearer token.
	r.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))
		r.Use(middleware.TokenRateLimit(tokenPolicy, deps.RateLimiter, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))
		r.Get("/api/orders/{orderId}/balance-session", controllers.BalanceSession(deps.Balance, logg))
		r.Patch("/api/orders/{orderId}/balance-session/address", controllers.ChangeBalanceAddress(deps.Balance, logg))
		r.Post("/api/orders/{orderId}/pay-balance", controllers.PayBalance(deps.Balance, logg))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Idempotency, logg))

		r.With(middleware.RequireRole(logg, enums.RoleBuyer)).Post("/api/checkout", controllers.Checkout(deps.Checkout, logg))

		const order = "/api/orders/{orderId}"
		r.Get(order, controllers.GetOrder(deps.Orders, logg))
		r.Post(order+"/cancel", controllers.CancelOrder(deps.Orders, logg))
		r.Post(order+"/payment-intent", controllers.RetryPaymentIntent(deps.Checkout, logg))
		r.Post(order+"/payments/{intentId}/confirm", controllers.ConfirmPaymentIntent(deps.Poller, logg))
		r.With(middleware.RequireRole(logg, enums.RoleSeller)).Patch(order+"/items/{itemId}/tracking", controllers.UpdateItemTracking(deps.Orders, logg))
		r.With(middleware.RequireRole(logg, enums.RoleSeller)).Post(order+"/balance-requests", controllers.RequestBalance(deps.Balance, logg))
		r.Post(order+"/refunds", controllers.CreateRefund(deps.Refunds, "", logg))
		r.Get(order+"/refunds", controllers.ListRefunds(deps.Refunds, "", logg))
		r.Get(order+"/documents", controllers.ListDocuments(deps.Documents, logg))

		r.Route("/api/documents", func(r chi.Router) {
			r.Post("/invoices/generate", controllers.GenerateInvoice(deps.Documents, enums.ChannelRetail, logg))
			r.With(middleware.RequireRole(logg, enums.RoleSeller)).Post("/packing-slips/generate", controllers.GeneratePackingSlip(deps.Documents, logg))
		})

		r.Route("/api/wholesale", func(r chi.Router) {
			r.Post("/orders/{orderId}/refunds", controllers.CreateRefund(deps.Refunds, enums.ChannelWholesale, logg))
			r.Get("/orders/{orderId}/refunds", controllers.ListRefunds(deps.Refunds, enums.ChannelWholesale, logg))
			r.Post("/documents/invoices/generate", controllers.GenerateInvoice(deps.Documents, enums.ChannelWholesale, logg))
		})
	})

	return r
}
