package tracing

import (
	"context"
	"errors"

	"github.com/smallbiznis/ticketing/internal/apperror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

// ExtractContext restores an upstream span context from carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// InjectContext writes the active span context into carrier.
func InjectContext(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

var allowedSpanKeys = map[attribute.Key]struct{}{
	"request_id":              {},
	"correlation_id":          {},
	"http.method":             {},
	"http.route":              {},
	"http.status_code":        {},
	"http.server_duration_ms": {},
	"messaging.destination":   {},
	"messaging.message_id":    {},
	"messaging.handler":       {},
	"order_id":                {},
	"ticket_id":               {},
	"error.kind":              {},
	"enduser.id":              {},
	"enduser.role":            {},
	"idempotency.replayed":    {},
}

// SafeAttributes drops keys that could carry personal data such as holder
// emails or tax identifiers.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedSpanKeys[attr.Key]; ok {
			out = append(out, attr)
		}
	}
	return out
}

// SafeError reduces err to its classified code so causes with payloads
// never reach the exporter.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := apperror.As(err); ok {
		return errors.New(string(appErr.Kind) + ": " + appErr.Code)
	}
	return errors.New("internal_error")
}
