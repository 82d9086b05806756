package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderflow-backend/internal/cron"
	"github.com/angelmondragon/orderflow-backend/internal/ledger"
	"github.com/angelmondragon/orderflow-backend/internal/orders"
	"github.com/angelmondragon/orderflow-backend/internal/payments"
	"github.com/angelmondragon/orderflow-backend/internal/stock"
	"github.com/angelmondragon/orderflow-backend/pkg/config"
	"github.com/angelmondragon/orderflow-backend/pkg/db"
	"github.com/angelmondragon/orderflow-backend/pkg/instance"
	"github.com/angelmondragon/orderflow-backend/pkg/logger"
	"github.com/angelmondragon/orderflow-backend/pkg/metrics"
	"github.com/angelmondragon/orderflow-backend/pkg/migrate"
	"github.com/angelmondragon/orderflow-backend/pkg/outbox"
	"github.com/angelmondragon/orderflow-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/orderflow-backend/pkg/stripe"
)

const serviceName = "cron-worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
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

	// Expiring an order cancels its open intents at the gateway.
	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	jobs, err := buildJobs(cfg, logg, dbClient, stripeClient, registry)
	if err != nil {
		logg.Error(ctx, "failed to build maintenance jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceName, cfg.App.Env), 0)
	if err != nil {
		logg.Error(ctx, "failed to create worker lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: jobs,
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(registry),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	mux := chi.NewRouter()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: ":" + cfg.App.Port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()

	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"interval": cfg.Cron.Interval.String(),
		"instance": instance.ID(),
	})
	logg.Info(ctx, "starting cron worker")

	exitCode := 0
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		exitCode = 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := multierr.Combine(metricsServer.Shutdown(shutdownCtx), redisClient.Close(), dbClient.Close()); err != nil {
		logg.Error(shutdownCtx, "error during shutdown", err)
		exitCode = 1
	}
	logg.Info(shutdownCtx, "cron worker shutting down gracefully")
	os.Exit(exitCode)
}

// buildJobs wires the order state machine without a balance service: no job
// ships items, so no balance request is ever opened from here.
func buildJobs(
	cfg *config.Config,
	logg *logger.Logger,
	dbClient *db.Client,
	stripeClient *pkgstripe.Client,
	registry *prometheus.Registry,
) (*cron.Registry, error) {
	conn := dbClient.DB()

	gateway, err := payments.NewStripeGateway(stripeClient, metrics.NewGatewayMetrics(registry), logg)
	if err != nil {
		return nil, err
	}
	intentRepo := payments.NewRepository(conn)
	intents, err := payments.NewIntents(gateway, intentRepo, logg)
	if err != nil {
		return nil, err
	}
	stockLedger, err := stock.NewService(stock.NewRepository(conn), logg)
	if err != nil {
		return nil, err
	}
	moneyLedger, err := ledger.NewService(ledger.NewRepository(conn))
	if err != nil {
		return nil, err
	}
	orderSvc, err := orders.NewService(orders.Deps{
		Repo:      orders.NewRepository(conn),
		Tx:        dbClient,
		Outbox:    outbox.NewService(outbox.NewRepository(conn), logg),
		Stock:     stockLedger,
		Intents:   intentRepo,
		Canceller: intents,
		Ledger:    moneyLedger,
		Logger:    logg,
	})
	if err != nil {
		return nil, err
	}

	expiry, err := cron.NewUnpaidOrderExpiryJob(cron.UnpaidOrderExpiryParams{
		Logger: logg,
		Reader: cron.NewUnpaidOrderReader(conn),
		Orders: orderSvc,
		TTL:    cfg.Cron.UnpaidOrderTTL,
		Batch:  cfg.Cron.UnpaidOrderBatch,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionParams{
		Logger: logg,
		DB:     dbClient,
		Pruner: func(tx *gorm.DB) cron.OutboxPruner {
			return outbox.NewRepository(tx)
		},
		RetentionDays: cfg.Cron.OutboxRetentionDays,
	})
	if err != nil {
		return nil, err
	}

	jobs := cron.NewRegistry()
	for _, job := range []cron.Job{expiry, retention} {
		if err := jobs.Register(job); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}
