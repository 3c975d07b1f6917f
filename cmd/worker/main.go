package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/commercecore/fulfillment/internal/config"
	"github.com/commercecore/fulfillment/internal/messaging"
	"github.com/commercecore/fulfillment/internal/notify"
	"github.com/commercecore/fulfillment/internal/telemetry"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg := config.Load()

	if len(cfg.Kafka.Brokers) == 0 {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "fulfillment-worker", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	consumer := messaging.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.OrderEventsTopic, cfg.Kafka.ConsumerGroup)
	defer func() { _ = consumer.Close() }()

	httpClient := &http.Client{
		Timeout:   cfg.Notify.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	handler := notify.NewHandler(cfg.Notify.WebhookURL, httpClient, logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting notification worker",
		"brokers", cfg.Kafka.Brokers,
		"topic", cfg.Kafka.OrderEventsTopic,
		"group", cfg.Kafka.ConsumerGroup,
	)

	if err := consumer.Consume(runCtx, handler.Handle); err != nil {
		if runCtx.Err() == context.Canceled {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}
