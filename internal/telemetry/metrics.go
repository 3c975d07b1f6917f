package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// InitMeterProvider wires the OpenTelemetry meter provider to a Prometheus
// exporter. It returns the handler to mount at /metrics and a shutdown
// function.
func InitMeterProvider(serviceName, serviceVersion string) (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	return promhttp.Handler(), mp.Shutdown, nil
}

// Metrics holds the business instruments the managers record. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	reservations     metric.Int64Counter
	orderTransitions metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	reservations, err := meter.Int64Counter("inventory.reservations",
		metric.WithDescription("Stock reservation attempts by result"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter("orders.status_transitions",
		metric.WithDescription("Order status transition attempts by event and result"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		reservations:     reservations,
		orderTransitions: transitions,
	}, nil
}

func (m *Metrics) RecordReservation(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.reservations.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) RecordOrderTransition(ctx context.Context, event, result string) {
	if m == nil {
		return
	}
	m.orderTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("result", result),
	))
}
