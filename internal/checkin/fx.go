package checkin

import (
	"github.com/smallbiznis/ticketing/internal/checkin/service"
	"github.com/smallbiznis/ticketing/internal/queue"
	"go.uber.org/fx"
)

var Module = fx.Module("checkin.service",
	fx.Provide(service.New),
	fx.Provide(queue.AsHandler(service.NewPresenceHandler)),
)
