package queue

import (
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/smallbiznis/ticketing/internal/apperror"
	"github.com/smallbiznis/ticketing/internal/config"
	"github.com/smallbiznis/ticketing/internal/observability/logger"
	"github.com/smallbiznis/ticketing/internal/observability/metrics"
	"github.com/smallbiznis/ticketing/internal/observability/tracing"
	"github.com/smallbiznis/ticketing/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// taskContext restores correlation and trace context from message metadata.
func taskContext(next message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		ctx := tracing.ExtractContext(msg.Context(), propagation.MapCarrier(msg.Metadata))

		cid := msg.Metadata.Get(correlation.MetadataKey)
		if cid == "" {
			cid = correlation.NewID()
		}
		ctx = correlation.ContextWithCorrelationID(ctx, cid)

		topic := message.SubscribeTopicFromCtx(msg.Context())
		handler := message.HandlerNameFromCtx(msg.Context())
		ctx, span := otel.Tracer("ticketing/queue").Start(ctx, "task "+topic,
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(tracing.SafeAttributes(
				attribute.String("messaging.destination", topic),
				attribute.String("messaging.handler", handler),
				attribute.String("messaging.message_id", msg.UUID),
				attribute.String("correlation_id", cid),
			)...),
		)
		defer span.End()

		msg.SetContext(ctx)
		msgs, err := next(msg)
		if err != nil {
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, "task failed")
		}
		return msgs, err
	}
}

// giveUp acks messages whose retry budget is spent so one poisoned task
// cannot stall the topic.
func giveUp(log *zap.Logger, m *metrics.TaskMetrics) message.HandlerMiddleware {
	return func(next message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			msgs, err := next(msg)
			if err == nil {
				return msgs, nil
			}
			topic := message.SubscribeTopicFromCtx(msg.Context())
			m.IncExhausted(topic)
			logger.WithContext(msg.Context(), log).Error("task exhausted retries",
				zap.String("topic", topic),
				zap.String("message_id", msg.UUID),
				zap.Error(err),
			)
			return nil, nil
		}
	}
}

// retry applies the current retry tuning on every delivery so reloaded
// policies take effect without a restart.
func retry(tuning *config.TuningHolder, wlog watermill.LoggerAdapter) message.HandlerMiddleware {
	return func(next message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			policy := tuning.Get().Retry
			return middleware.Retry{
				MaxRetries:          policy.MaxAttempts - 1,
				InitialInterval:     policy.InitialInterval,
				MaxInterval:         policy.MaxInterval,
				Multiplier:          policy.Multiplier,
				RandomizationFactor: policy.RandomizationFactor,
				Logger:              wlog,
			}.Middleware(next)(msg)
		}
	}
}

// dropPermanent stops retries for errors that cannot succeed on replay.
func dropPermanent(log *zap.Logger, m *metrics.TaskMetrics) message.HandlerMiddleware {
	return func(next message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			msgs, err := next(msg)
			if err == nil || !apperror.IsPermanent(err) {
				return msgs, err
			}
			topic := message.SubscribeTopicFromCtx(msg.Context())
			m.IncExhausted(topic)
			logger.WithContext(msg.Context(), log).Error("task failed permanently",
				zap.String("topic", topic),
				zap.String("message_id", msg.UUID),
				zap.Error(err),
			)
			return nil, nil
		}
	}
}

func observe(m *metrics.TaskMetrics) message.HandlerMiddleware {
	return func(next message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			start := time.Now()
			msgs, err := next(msg)
			m.ObserveAttempt(message.SubscribeTopicFromCtx(msg.Context()), time.Since(start), err)
			return msgs, err
		}
	}
}
