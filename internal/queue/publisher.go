package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/smallbiznis/ticketing/internal/apperror"
	"github.com/smallbiznis/ticketing/internal/observability/tracing"
	"github.com/smallbiznis/ticketing/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/propagation"
)

// Enqueuer schedules background tasks. Callers enqueue only after the
// transaction that produced the task has committed.
type Enqueuer interface {
	Enqueue(ctx context.Context, topic string, payload any) error
}

type Publisher struct {
	pub message.Publisher
}

func NewPublisher(pub message.Publisher) *Publisher {
	return &Publisher{pub: pub}
}

func (p *Publisher) Enqueue(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}

	ctx, cid := correlation.EnsureCorrelationID(ctx)
	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.Metadata.Set(correlation.MetadataKey, cid)
	tracing.InjectContext(ctx, propagation.MapCarrier(msg.Metadata))
	msg.SetContext(ctx)

	if err := p.pub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Decode unmarshals a task payload. Undecodable payloads can never succeed,
// so the error is permanent.
func Decode[T any](msg *message.Message) (T, error) {
	var out T
	if err := json.Unmarshal(msg.Payload, &out); err != nil {
		return out, apperror.Permanent(fmt.Errorf("decode task payload: %w", err))
	}
	return out, nil
}
