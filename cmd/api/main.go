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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/orderflow-backend/api/controllers"
	"github.com/angelmondragon/orderflow-backend/api/routes"
	"github.com/angelmondragon/orderflow-backend/internal/balance"
	"github.com/angelmondragon/orderflow-backend/internal/checkout"
	"github.com/angelmondragon/orderflow-backend/internal/documents"
	"github.com/angelmondragon/orderflow-backend/internal/ledger"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/internal/pricing"
	"github.com/angelmondragon/orderflow-backend/internal/refunds"
	"github.com/angelmondragon/orderflow-backend/internal/stock"
	stripewebhook "github.com/angelmondragon/orderflow-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/migrate"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/redis"
	"github.com/angelmondragon/orderflow-backend/pkg/storage/gcs"
	pkgstripe "github.com/angelmondragon/orderflow-backend/pkg/stripe"
)

const (
	shutdownTimeout = 15 * time.Second
	webhookGuardTTL = 72 * time.Hour
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	// A missing Stripe key or webhook secret fails here.
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}

	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	storageClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap document storage", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps, err := buildDeps(cfg, logg, dbClient, redisClient, stripeClient, storageClient, registry)
	if err != nil {
		logg.Error(ctx, "failed to wire services", err)
		os.Exit(1)
	}

	addr := ":" + cfg.App.Port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"stripe_env": stripeClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	closeErr := multierr.Combine(
		server.Shutdown(shutdownCtx),
		storageClient.Close(),
		redisClient.Close(),
		dbClient.Close(),
	)
	if closeErr != nil {
		logg.Error(shutdownCtx, "error during shutdown", closeErr)
		exitCode = 1
	}
	logg.Info(shutdownCtx, "api server stopped")
	os.Exit(exitCode)
}

// buildDeps wires the services bottom-up: ledgers and the gateway first,
// then the state machine and the processors that drive it.
func buildDeps(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	redisClient *redis.Client,
	stripeClient *pkgstripe.Client,
	storageClient *gcs.Client,
	registry *prometheus.Registry,
) (routes.Deps, error) {
	conn := dbClient.DB()
	publisher := outbox.NewService(outbox.NewRepository(conn), logg)

	gateway, err := payments.NewStripeGateway(stripeClient, metrics.NewGatewayMetrics(registry), logg)
	if err != nil {
		return routes.Deps{}, err
	}
	intentRepo := payments.NewRepository(conn)
	intents, err := payments.NewIntents(gateway, intentRepo, logg)
	if err != nil {
		return routes.Deps{}, err
	}
	stockLedger, err := stock.NewService(stock.NewRepository(conn), logg)
	if err != nil {
		return routes.Deps{}, err
	}
	moneyLedger, err := ledger.NewService(ledger.NewRepository(conn))
	if err != nil {
		return routes.Deps{}, err
	}
	ordersRepo := orders.NewRepository(conn)

	balanceSvc, err := balance.NewService(balance.Deps{
		Repo:      balance.NewRepository(conn),
		Orders:    ordersRepo,
		Tx:        dbClient,
		Outbox:    publisher,
		Intents:   intents,
		Ledger:    moneyLedger,
		Quoter:    pricing.NewFlatRateQuoter(cfg.Shipping),
		Config:    cfg.Balance,
		PublicURL: cfg.App.PublicURL,
		Logger:    logg,
	})
	if err != nil {
		return routes.Deps{}, err
	}

	orderSvc, err := orders.NewService(orders.Deps{
		Repo:               ordersRepo,
		Tx:                 dbClient,
		Outbox:             publisher,
		Stock:              stockLedger,
		Intents:            intentRepo,
		Canceller:          intents,
		Ledger:             moneyLedger,
		Balance:            balanceSvc,
		Logger:             logg,
		AutoRequestBalance: cfg.Balance.AutoRequestOnFirstShip,
	})
	if err != nil {
		return routes.Deps{}, err
	}

	checkoutSvc, err := checkout.NewService(dbClient, checkout.NewRepository(conn), ordersRepo, stockLedger, intents, publisher, logg)
	if err != nil {
		return routes.Deps{}, err
	}

	refundRepo := refunds.NewRepository(conn)
	documentSvc, err := documents.NewService(documents.Deps{
		Repo:     documents.NewRepository(conn),
		Orders:   ordersRepo,
		Refunds:  refundRepo,
		Storage:  storageClient,
		Tx:       dbClient,
		Outbox:   publisher,
		RootPath: cfg.GCS.DocumentsPath,
		Logger:   logg,
	})
	if err != nil {
		return routes.Deps{}, err
	}

	refundSvc, err := refunds.NewService(refunds.Deps{
		Repo:        refundRepo,
		Orders:      ordersRepo,
		Transitions: orderSvc,
		Intents:     intentRepo,
		Gateway:     gateway,
		Ledger:      moneyLedger,
		Tx:          dbClient,
		Outbox:      publisher,
		CreditNotes: documentSvc,
		Logger:      logg,
	})
	if err != nil {
		return routes.Deps{}, err
	}

	webhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Orders:  orderSvc,
		OrderDB: ordersRepo,
		Intents: intentRepo,
		Gateway: gateway,
		Refunds: refundSvc,
		Events:  stripewebhook.NewEventLog(conn),
		Logger:  logg,
	})
	if err != nil {
		return routes.Deps{}, err
	}
	guard, err := stripewebhook.NewIdempotencyGuard(redisClient, webhookGuardTTL, "stripe")
	if err != nil {
		return routes.Deps{}, err
	}

	return routes.Deps{
		Checkout:     checkoutSvc,
		Orders:       orderSvc,
		Poller:       webhookSvc,
		Balance:      balanceSvc,
		Refunds:      refundSvc,
		Documents:    documentSvc,
		Stock:        stockLedger,
		Webhooks:     webhookSvc,
		StripeClient: stripeClient,
		WebhookGuard: guard,
		Idempotency:  redisClient,
		RateLimiter:  redisClient,
		Ready: map[string]controllers.Pinger{
			"db":    dbClient,
			"redis": redisClient,
		},
		HTTPMetrics: metrics.NewHTTPMetrics(registry),
		Gatherer:    registry,
	}, nil
}
