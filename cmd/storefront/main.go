package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/joao-fontenele/streetwear-storefront/internal/catalog"
	"github.com/joao-fontenele/streetwear-storefront/internal/config"
	"github.com/joao-fontenele/streetwear-storefront/internal/coupons"
	"github.com/joao-fontenele/streetwear-storefront/internal/inventory"
	"github.com/joao-fontenele/streetwear-storefront/internal/messaging"
	"github.com/joao-fontenele/streetwear-storefront/internal/orders"
	"github.com/joao-fontenele/streetwear-storefront/internal/payment"
	"github.com/joao-fontenele/streetwear-storefront/internal/telemetry"
)

const serviceName = "storefront"

func main() {
	logger := telemetry.NewLogger(os.Stdout, serviceName)

	if err := run(logger); err != nil {
		logger.Error("storefront stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.PostgresURL == "" {
		return errors.New("POSTGRES_URL environment variable is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	db, err := telemetry.OpenDB(ctx, cfg.PostgresURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	guard, closeGuard, err := newGuard(cfg, db)
	if err != nil {
		return err
	}
	defer closeGuard()

	inventorySvc := inventory.NewService(
		inventory.NewPostgresStockStore(db),
		newLedger(cfg, db),
		logger,
		inventory.WithGuard(guard),
	)

	paymentClient := payment.NewClient(cfg.Payment.BaseURL, cfg.Payment.SecretKey, &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	})

	opts := []orders.OrchestratorOption{orders.WithPayments(paymentClient)}
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, messaging.TopicOrderPlaced)
		defer func() { _ = producer.Close() }()
		opts = append(opts, orders.WithPublisher(producer))
	}

	orderRepo := orders.NewOrderRepository(db)
	couponRepo := coupons.NewRepository(db)
	orchestrator := orders.NewOrchestrator(
		inventorySvc,
		catalog.NewProductRepository(db),
		couponRepo,
		orderRepo,
		orders.Pricing{
			ShippingFee:           cfg.Checkout.ShippingFee,
			FreeShippingThreshold: cfg.Checkout.FreeShippingThreshold,
			Tolerance:             cfg.Checkout.PriceTolerance,
		},
		logger,
		opts...,
	)

	orderHandler := orders.NewHandler(orchestrator, orderRepo, logger)
	couponHandler := coupons.NewHandler(couponRepo, logger)
	inventoryHandler := inventory.NewHandler(inventorySvc, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /checkout", telemetry.WithHTTPRoute(orderHandler.HandleCheckout))
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(orderHandler.HandleList))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(orderHandler.HandleGet))
	mux.HandleFunc("PATCH /orders/{id}/status", telemetry.WithHTTPRoute(orderHandler.HandleUpdateStatus))
	mux.HandleFunc("POST /coupons/validate", telemetry.WithHTTPRoute(couponHandler.HandleValidate))
	mux.HandleFunc("GET /inventory/low-stock", telemetry.WithHTTPRoute(inventoryHandler.HandleLowStock))
	mux.HandleFunc("POST /inventory/reservations/sweep", telemetry.WithHTTPRoute(inventoryHandler.HandleSweep))
	mux.HandleFunc("GET /inventory/{productId}/variants/{variantKey}", telemetry.WithHTTPRoute(inventoryHandler.HandleGetStock))
	mux.HandleFunc("PUT /inventory/{productId}/variants/{variantKey}", telemetry.WithHTTPRoute(inventoryHandler.HandleUpdateStock))
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(mux, serviceName,
			otelhttp.WithSpanNameFormatter(telemetry.SpanName),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting storefront service",
			"port", cfg.Port,
			"ledger", cfg.Inventory.Ledger,
			"guard", cfg.Inventory.Guard,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return inventory.NewSweeper(inventorySvc, cfg.Inventory.SweepInterval, logger).Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newLedger keeps reservations in process memory when configured to. Stock
// totals, orders and the catalog stay in postgres either way.
func newLedger(cfg *config.Config, db *sql.DB) inventory.Ledger {
	ttl := inventory.LedgerTTL(cfg.Inventory.ReservationTTL)
	if cfg.Inventory.Ledger == config.LedgerMemory {
		return inventory.NewMemoryLedger(ttl)
	}
	return inventory.NewPostgresLedger(db, ttl)
}

func newGuard(cfg *config.Config, db *sql.DB) (inventory.Guard, func(), error) {
	switch cfg.Inventory.Guard {
	case config.GuardLocal:
		return inventory.NewLocalGuard(), func() {}, nil
	case config.GuardAdvisory:
		return inventory.NewAdvisoryGuard(db), func() {}, nil
	case config.GuardRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return inventory.NewRedisGuard(client, cfg.Inventory.LockLease), func() { _ = client.Close() }, nil
	case config.GuardNone:
		return inventory.Unguarded{}, func() {}, nil
	}
	return nil, nil, errors.New("unknown reservation guard " + cfg.Inventory.Guard)
}
