package metrics

import (
	"context"
	"fmt"
	"time"

	"rentalshop/internal/config"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "rentalshop"

// チェックアウト結果のラベル
const (
	ResultSuccess    = "success"
	ResultValidation = "validation"
	ResultNotFound   = "not_found"
	ResultConflict   = "conflict"
	ResultError      = "error"
)

// AppMetrics は業務メトリクス。nilのままでも呼べる。
type AppMetrics struct {
	CheckoutsTotal     metric.Int64Counter
	OrdersCreated      metric.Int64Counter
	OrderItemsSold     metric.Int64Counter
	RevenueTotal       metric.Float64Counter
	CheckoutDuration   metric.Float64Histogram
	BookingsCreated    metric.Int64Counter
	BookingConflicts   metric.Int64Counter
	AvailabilityChecks metric.Int64Counter
}

// InitMeterProvider はエンドポイントがあればOTLP/HTTPで定期送信する。
func InitMeterProvider(ctx context.Context, cfg config.Config) (*sdkmetric.MeterProvider, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.OTELServiceName),
		attribute.String("deployment.environment", cfg.GoEnv),
	))
	if err != nil {
		return nil, fmt.Errorf("metrics resource: %w", err)
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.OTELEndpoint != "" {
		exOpts := []otlpmetrichttp.Option{
			otlpmetrichttp.WithEndpoint(cfg.OTELEndpoint),
			otlpmetrichttp.WithURLPath("/v1/metrics"),
		}
		if cfg.OTELInsecure {
			exOpts = append(exOpts, otlpmetrichttp.WithInsecure())
		}
		exporter, err := otlpmetrichttp.New(ctx, exOpts...)
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second)),
		))
	}

	return sdkmetric.NewMeterProvider(opts...), nil
}

func NewAppMetrics(mp metric.MeterProvider) (*AppMetrics, error) {
	meter := mp.Meter(meterName)
	m := &AppMetrics{}
	var err error

	if m.CheckoutsTotal, err = meter.Int64Counter("checkouts_total",
		metric.WithDescription("Checkout attempts by result"),
		metric.WithUnit("{checkout}")); err != nil {
		return nil, err
	}
	if m.OrdersCreated, err = meter.Int64Counter("orders_created_total",
		metric.WithDescription("Orders created by checkout"),
		metric.WithUnit("{order}")); err != nil {
		return nil, err
	}
	if m.OrderItemsSold, err = meter.Int64Counter("order_items_sold_total",
		metric.WithDescription("Units sold through checkout"),
		metric.WithUnit("{item}")); err != nil {
		return nil, err
	}
	if m.RevenueTotal, err = meter.Float64Counter("order_revenue_total",
		metric.WithDescription("Sum of order total amounts")); err != nil {
		return nil, err
	}
	if m.CheckoutDuration, err = meter.Float64Histogram("checkout_duration_seconds",
		metric.WithDescription("Checkout transaction latency"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.BookingsCreated, err = meter.Int64Counter("bookings_created_total",
		metric.WithDescription("Bookings created"),
		metric.WithUnit("{booking}")); err != nil {
		return nil, err
	}
	if m.BookingConflicts, err = meter.Int64Counter("booking_conflicts_total",
		metric.WithDescription("Booking writes rejected by an overlapping booking"),
		metric.WithUnit("{booking}")); err != nil {
		return nil, err
	}
	if m.AvailabilityChecks, err = meter.Int64Counter("availability_checks_total",
		metric.WithDescription("Availability checks by outcome"),
		metric.WithUnit("{check}")); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *AppMetrics) RecordCheckout(ctx context.Context, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("result", result))
	m.CheckoutsTotal.Add(ctx, 1, attrs)
	m.CheckoutDuration.Record(ctx, elapsed.Seconds(), attrs)
}

func (m *AppMetrics) RecordOrder(ctx context.Context, total decimal.Decimal, units int64, payment string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("payment_method", payment))
	m.OrdersCreated.Add(ctx, 1, attrs)
	m.OrderItemsSold.Add(ctx, units, attrs)
	m.RevenueTotal.Add(ctx, total.InexactFloat64(), attrs)
}

func (m *AppMetrics) RecordBookingCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.BookingsCreated.Add(ctx, 1)
}

func (m *AppMetrics) RecordBookingConflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.BookingConflicts.Add(ctx, 1)
}

func (m *AppMetrics) RecordAvailabilityCheck(ctx context.Context, available bool) {
	if m == nil {
		return
	}
	m.AvailabilityChecks.Add(ctx, 1, metric.WithAttributes(attribute.Bool("available", available)))
}
