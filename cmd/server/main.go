package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"

	"github.com/commercecore/fulfillment/internal/config"
	"github.com/commercecore/fulfillment/internal/inventory"
	"github.com/commercecore/fulfillment/internal/messaging"
	"github.com/commercecore/fulfillment/internal/orders"
	"github.com/commercecore/fulfillment/internal/shipments"
	"github.com/commercecore/fulfillment/internal/telemetry"
	"github.com/commercecore/fulfillment/internal/tenant"
)

const serviceName = "fulfillment-api"
const serviceVersion = "0.1.0"

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg := config.Load()

	if cfg.Postgres.URL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, serviceName, serviceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, serviceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := runtime.Start(); err != nil {
		logger.Error("failed to start runtime metrics", "error", err)
		os.Exit(1)
	}

	metrics, err := telemetry.NewMetrics(otel.Meter(serviceName))
	if err != nil {
		logger.Error("failed to create metrics", "error", err)
		os.Exit(1)
	}

	db, err := telemetry.OpenDB(cfg.Postgres)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	inventoryRepo := inventory.NewRepository(db)
	orderRepo := orders.NewRepository(db)
	shipmentRepo := shipments.NewRepository(db)

	inventoryManager := inventory.NewManager(inventoryRepo, metrics, logger)

	var orderManager *orders.Manager
	var shipmentManager *shipments.Manager
	if len(cfg.Kafka.Brokers) > 0 {
		producer := messaging.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.OrderEventsTopic)
		defer func() { _ = producer.Close() }()
		orderManager = orders.NewManager(orderRepo, shipmentRepo, producer, metrics, logger)
		shipmentManager = shipments.NewManager(shipmentRepo, orderRepo, producer, metrics, logger)
		logger.Info("kafka producer enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.OrderEventsTopic)
	} else {
		orderManager = orders.NewManager(orderRepo, shipmentRepo, nil, metrics, logger)
		shipmentManager = shipments.NewManager(shipmentRepo, orderRepo, nil, metrics, logger)
		logger.Info("kafka brokers not configured, status events stay in the database")
	}

	inventoryHandler := inventory.NewHandler(inventoryManager, logger)
	orderHandler := orders.NewHandler(orderManager, logger)
	shipmentHandler := shipments.NewHandler(shipmentManager, logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /inventory", telemetry.WithHTTPRoute(inventoryHandler.HandleList))
	mux.HandleFunc("POST /inventory", telemetry.WithHTTPRoute(inventoryHandler.HandleUpsert))
	mux.HandleFunc("GET /inventory/low-stock", telemetry.WithHTTPRoute(inventoryHandler.HandleLowStock))
	mux.HandleFunc("GET /inventory/{productId}", telemetry.WithHTTPRoute(inventoryHandler.HandleGet))
	mux.HandleFunc("GET /inventory/{productId}/transactions", telemetry.WithHTTPRoute(inventoryHandler.HandleTransactions))
	mux.HandleFunc("POST /inventory/{productId}/reserve", telemetry.WithHTTPRoute(inventoryHandler.HandleReserve))
	mux.HandleFunc("POST /inventory/{productId}/release", telemetry.WithHTTPRoute(inventoryHandler.HandleRelease))
	mux.HandleFunc("POST /inventory/{productId}/complete-sale", telemetry.WithHTTPRoute(inventoryHandler.HandleCompleteSale))
	mux.HandleFunc("POST /inventory/{productId}/return", telemetry.WithHTTPRoute(inventoryHandler.HandleReturn))

	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(orderHandler.HandleCreate))
	mux.HandleFunc("GET /orders", telemetry.WithHTTPRoute(orderHandler.HandleList))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(orderHandler.HandleGet))
	mux.HandleFunc("PATCH /orders/{id}", telemetry.WithHTTPRoute(orderHandler.HandleUpdate))
	mux.HandleFunc("POST /orders/{id}/items", telemetry.WithHTTPRoute(orderHandler.HandleAddItem))
	mux.HandleFunc("POST /orders/{id}/events", telemetry.WithHTTPRoute(orderHandler.HandleApplyEvent))
	mux.HandleFunc("GET /orders/{id}/shipments", telemetry.WithHTTPRoute(shipmentHandler.HandleListByOrder))

	mux.HandleFunc("POST /shipments", telemetry.WithHTTPRoute(shipmentHandler.HandleCreate))
	mux.HandleFunc("GET /shipments/{id}", telemetry.WithHTTPRoute(shipmentHandler.HandleGet))
	mux.HandleFunc("PATCH /shipments/{id}/status", telemetry.WithHTTPRoute(shipmentHandler.HandleUpdateStatus))
	mux.HandleFunc("POST /shipments/{id}/items", telemetry.WithHTTPRoute(shipmentHandler.HandleAddItem))

	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr: ":" + cfg.HTTP.Port,
		Handler: otelhttp.NewHandler(tenant.Middleware(logger, mux), serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		logger.Info("starting fulfillment api", "port", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
