package queue

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/smallbiznis/ticketing/internal/config"
	"github.com/smallbiznis/ticketing/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Handler consumes one topic. Domain modules contribute handlers with
// AsHandler.
type Handler struct {
	Name   string
	Topic  string
	Handle func(ctx context.Context, msg *message.Message) error
}

// AsHandler annotates a constructor returning Handler for the router group.
func AsHandler(constructor any) any {
	return fx.Annotate(constructor, fx.ResultTags(`group:"queue.handlers"`))
}

type RouterParams struct {
	fx.In

	Transport Transport
	Logger    watermill.LoggerAdapter
	Log       *zap.Logger
	Tuning    *config.TuningHolder
	Metrics   *metrics.TaskMetrics `optional:"true"`
	Handlers  []Handler            `group:"queue.handlers"`
}

func NewRouter(p RouterParams) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, p.Logger)
	if err != nil {
		return nil, err
	}

	log := p.Log.Named("queue.router")
	router.AddMiddleware(
		middleware.Recoverer,
		taskContext,
		giveUp(log, p.Metrics),
		retry(p.Tuning, p.Logger),
		dropPermanent(log, p.Metrics),
		observe(p.Metrics),
	)

	for _, h := range p.Handlers {
		handle := h.Handle
		router.AddNoPublisherHandler(h.Name, h.Topic, p.Transport.Subscriber, func(msg *message.Message) error {
			return handle(msg.Context(), msg)
		})
	}
	return router, nil
}
