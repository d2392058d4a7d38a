package tracing

import (
	"errors"
	"testing"

	"github.com/smallbiznis/ticketing/internal/apperror"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsPersonalData(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("order_id", "42"),
		attribute.String("holder_email", "a@example.com"),
		attribute.String("tax_id", "12345678901"),
		attribute.String("enduser.id", "1001"),
	)
	assert.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("order_id"), attrs[0].Key)
}

func TestSafeErrorHidesCause(t *testing.T) {
	err := apperror.PaymentGateway(errors.New("customer a@example.com rejected"))
	assert.Equal(t, "payment_gateway_error: payment_gateway_error", SafeError(err).Error())
	assert.Equal(t, "internal_error", SafeError(errors.New("dsn=postgres://secret")).Error())
	assert.Nil(t, SafeError(nil))
}
