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

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes business-level instruments exported over OTLP.
type Metrics struct {
	ordersCreated     metric.Int64Counter
	paymentEvents     metric.Int64Counter
	ticketsGenerated  metric.Int64Counter
	emailsDelivered   metric.Int64Counter
	checkIns          metric.Int64Counter
	idempotentReplays metric.Int64Counter
	refundsRequired   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "ticketing"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	var err error
	if m.ordersCreated, err = meter.Int64Counter("ticketing_orders_created_total"); err != nil {
		return nil, err
	}
	if m.paymentEvents, err = meter.Int64Counter("ticketing_payment_events_total"); err != nil {
		return nil, err
	}
	if m.ticketsGenerated, err = meter.Int64Counter("ticketing_tickets_generated_total"); err != nil {
		return nil, err
	}
	if m.emailsDelivered, err = meter.Int64Counter("ticketing_emails_total"); err != nil {
		return nil, err
	}
	if m.checkIns, err = meter.Int64Counter("ticketing_checkins_total"); err != nil {
		return nil, err
	}
	if m.idempotentReplays, err = meter.Int64Counter("ticketing_idempotent_replays_total"); err != nil {
		return nil, err
	}
	if m.refundsRequired, err = meter.Int64Counter("ticketing_payments_refund_required_total"); err != nil {
		return nil, err
	}
	return m, nil
}

// NewNoop returns instruments backed by a no-op provider, for tests and tools.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

func (m *Metrics) RecordOrderCreated(ctx context.Context, billingType, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("billing_type", strings.TrimSpace(billingType)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.ordersCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentEvent counts authenticated webhook deliveries.
func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
	)
	m.paymentEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordTicketsGenerated(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.ticketsGenerated.Add(ctx, int64(count))
}

func (m *Metrics) RecordEmail(ctx context.Context, emailType string, success bool) {
	if m == nil {
		return
	}
	result := "sent"
	if !success {
		result = "failed"
	}
	attrs := FilterAttributes(
		attribute.String("email_type", strings.TrimSpace(emailType)),
		attribute.String("result", result),
	)
	m.emailsDelivered.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCheckIn counts check-in attempts by outcome.
func (m *Metrics) RecordCheckIn(ctx context.Context, result string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("result", strings.TrimSpace(result)))
	m.checkIns.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordIdempotentReplay(ctx context.Context, scope string) {
	if m == nil {
		return
	}
	// order scopes embed the user id
	if idx := strings.Index(scope, ":"); idx > 0 {
		scope = scope[:idx]
	}
	attrs := FilterAttributes(attribute.String("scope", scope))
	m.idempotentReplays.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRefundRequired counts money settled for orders that will never be
// fulfilled. Every increment needs an operator refund.
func (m *Metrics) RecordRefundRequired(ctx context.Context, provider, state string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("state", strings.TrimSpace(state)),
	)
	m.refundsRequired.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"billing_type": {},
	"status":       {},
	"provider":     {},
	"event_type":   {},
	"email_type":   {},
	"result":       {},
	"scope":        {},
	"state":        {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
