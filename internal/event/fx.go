package event

import (
	"github.com/smallbiznis/ticketing/internal/event/repository"
	"github.com/smallbiznis/ticketing/internal/event/service"
	"go.uber.org/fx"
)

var Module = fx.Module("event.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
