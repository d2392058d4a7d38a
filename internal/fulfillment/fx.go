package fulfillment

import (
	"github.com/smallbiznis/ticketing/internal/fulfillment/service"
	"github.com/smallbiznis/ticketing/internal/queue"
	"go.uber.org/fx"
)

var Module = fx.Module("fulfillment",
	fx.Provide(
		service.NewRenderer,
		service.NewMailer,
		service.New,
		service.NewSweeper,
	),
	fx.Provide(
		queue.AsHandler(service.NewOrderPaidHandler),
		queue.AsHandler(service.NewTicketsGeneratedHandler),
		queue.AsHandler(service.NewTicketAssignedHandler),
		queue.AsHandler(service.NewUserRegisteredHandler),
	),
	fx.Invoke(service.StartSweeper),
)
