package cache

import "go.uber.org/fx"

var Module = fx.Module("cache",
	fx.Provide(NewRedisClient),
	fx.Provide(
		fx.Annotate(NewRedisLocker, fx.As(new(Locker))),
		fx.Annotate(NewRedisStore, fx.As(new(Store))),
	),
)

