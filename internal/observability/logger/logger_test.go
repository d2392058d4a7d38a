package logger

import (
	"context"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	obscontext "github.com/smallbiznis/ticketing/internal/observability/context"
	"github.com/smallbiznis/ticketing/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = correlation.ContextWithCorrelationID(ctx, "corr-1")
	ctx = obscontext.WithActor(ctx, "42", "staff")

	WithContext(ctx, base).Info("hello")

	entry := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "corr-1", entry["correlation_id"])
	assert.Equal(t, "42", entry["actor_id"])
	assert.Equal(t, "staff", entry["actor_role"])
	assert.NotContains(t, entry, "trace_id")
}

func TestWatermillAdapterCarriesFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	adapter := NewWatermillAdapter(zap.New(core)).With(watermill.LogFields{"topic": "order.paid"})

	adapter.Trace("received", watermill.LogFields{"message_uuid": "abc"})

	entry := logs.All()[0]
	assert.Equal(t, zap.DebugLevel, entry.Level)
	assert.Equal(t, "order.paid", entry.ContextMap()["topic"])
	assert.Equal(t, "abc", entry.ContextMap()["message_uuid"])
}

func TestStatementKind(t *testing.T) {
	assert.Equal(t, "UPDATE", statementKind("update tickets set is_redeemed = true"))
	assert.Equal(t, "SELECT", statementKind("WITH x AS (SELECT 1) SELECT * FROM x"))
	assert.Equal(t, "UNKNOWN", statementKind(""))
}

func TestBuildOptionsSkipsSamplingInDebug(t *testing.T) {
	assert.Len(t, buildOptions(Config{Debug: true}), 0)
	assert.Len(t, buildOptions(Config{IncludeCaller: true}), 2)
	assert.Equal(t, "json", normalizeFormat("logfmt"))
	assert.Equal(t, "console", normalizeFormat(" Console "))
}

func TestSafePathHidesTokens(t *testing.T) {
	assert.Equal(t, "/api/checkin/:token", safePath("/api/checkin/QR-secret", "/api/checkin/:token"))
	assert.Equal(t, "/api/tickets/:ref/redeem", safePath("/api/tickets/QR-secret/redeem", "/api/tickets/:ref/redeem"))
	assert.Equal(t, "/api/orders/12", safePath("/api/orders/12", "/api/orders/:id"))
}
