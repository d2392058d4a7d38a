package queue

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/smallbiznis/ticketing/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("queue",
	fx.Provide(
		NewTransport,
		providePublisher,
		NewRouter,
	),
	fx.Invoke(runRouter),
)

func providePublisher(t Transport) Enqueuer {
	return NewPublisher(t.Publisher)
}

func runRouter(lc fx.Lifecycle, cfg config.Config, router *message.Router, log *zap.Logger) {
	if !cfg.RunsWorker() {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := router.Run(context.Background()); err != nil {
					log.Error("queue router stopped", zap.Error(err))
				}
			}()
			select {
			case <-router.Running():
				log.Info("queue router running", zap.String("driver", cfg.Queue.Driver))
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		OnStop: func(context.Context) error {
			return router.Close()
		},
	})
}
