package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/streetwear-storefront/internal/config"
	"github.com/joao-fontenele/streetwear-storefront/internal/messaging"
	"github.com/joao-fontenele/streetwear-storefront/internal/notify"
	"github.com/joao-fontenele/streetwear-storefront/internal/telemetry"
)

const serviceName = "order-notifier"

func main() {
	logger := telemetry.NewLogger(os.Stdout, serviceName)

	if err := run(logger); err != nil {
		logger.Error("notifier stopped", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if len(cfg.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS environment variable is required")
	}
	if cfg.Mail.APIURL == "" {
		return errors.New("MAIL_API_URL environment variable is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	consumer := messaging.NewConsumer(cfg.KafkaBrokers, messaging.TopicOrderPlaced, messaging.GroupOrderNotifier, logger)
	defer func() { _ = consumer.Close() }()

	handler := notify.NewOrderPlacedHandler(cfg.Mail.APIURL, &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}, logger)

	logger.Info("starting order notifier", "brokers", cfg.KafkaBrokers, "topic", messaging.TopicOrderPlaced)

	if err := consumer.Consume(ctx, handler.Handle); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("consumer stopped")
			return nil
		}
		return err
	}
	return nil
}
