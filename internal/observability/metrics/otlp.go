package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const meterName = "github.com/smallbiznis/subtrack"

// PushConfig configures the OTLP meter provider. Prometheus scraping is
// always on; pushing is opt-in.
type PushConfig struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	Interval         time.Duration
}

// NewMeterProvider returns an OTLP-backed provider, or a no-op one when
// pushing is disabled.
func NewMeterProvider(lc fx.Lifecycle, cfg PushConfig, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return provider.Shutdown(ctx)
			},
		})
	}
	if log != nil {
		log.Info("metrics push enabled",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
			zap.Duration("interval", interval),
		)
	}
	return provider, nil
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "", "grpc":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported otlp metrics protocol %q", protocol)
	}
}

type pushed struct {
	renewals      metric.Int64Counter
	renewedAmount metric.Int64Counter
	deliveries    metric.Int64Counter
	importRows    metric.Int64Counter
}

// Attach mirrors renewals, deliveries and import rows onto provider. It
// must be called before the collectors are used concurrently.
func (m *Metrics) Attach(provider metric.MeterProvider) error {
	if m == nil || provider == nil {
		return nil
	}
	meter := provider.Meter(meterName)

	var p pushed
	var err error
	if p.renewals, err = meter.Int64Counter("subtrack.subscriber.renewals",
		metric.WithDescription("Completed subscription renewals.")); err != nil {
		return err
	}
	if p.renewedAmount, err = meter.Int64Counter("subtrack.subscriber.renewed_amount",
		metric.WithDescription("Sum of amounts recorded on renewal.")); err != nil {
		return err
	}
	if p.deliveries, err = meter.Int64Counter("subtrack.notification.deliveries",
		metric.WithDescription("Outbound notification attempts.")); err != nil {
		return err
	}
	if p.importRows, err = meter.Int64Counter("subtrack.import.rows",
		metric.WithDescription("Imported rows by outcome.")); err != nil {
		return err
	}
	m.push = &p
	return nil
}

func (p *pushed) renewal(amount int64) {
	if p == nil {
		return
	}
	ctx := context.Background()
	p.renewals.Add(ctx, 1)
	if amount > 0 {
		p.renewedAmount.Add(ctx, amount)
	}
}

func (p *pushed) delivery(kind, result string) {
	if p == nil {
		return
	}
	p.deliveries.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("result", result),
	))
}

func (p *pushed) imported(outcome string, n int) {
	if p == nil {
		return
	}
	p.importRows.Add(context.Background(), int64(n), metric.WithAttributes(attribute.String("outcome", outcome)))
}
