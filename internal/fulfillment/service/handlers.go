package service

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/smallbiznis/ticketing/internal/fulfillment/domain"
	"github.com/smallbiznis/ticketing/internal/queue"
)

func NewOrderPaidHandler(svc domain.Service) queue.Handler {
	return queue.Handler{
		Name:  "fulfillment.generate_tickets",
		Topic: queue.TopicOrderPaid,
		Handle: func(ctx context.Context, msg *message.Message) error {
			task, err := queue.Decode[queue.OrderPaid](msg)
			if err != nil {
				return err
			}
			return svc.HandleOrderPaid(ctx, task.OrderID)
		},
	}
}

func NewTicketsGeneratedHandler(svc domain.Service) queue.Handler {
	return queue.Handler{
		Name:  "fulfillment.deliver_order_tickets",
		Topic: queue.TopicOrderTicketsGenerated,
		Handle: func(ctx context.Context, msg *message.Message) error {
			task, err := queue.Decode[queue.OrderTicketsGenerated](msg)
			if err != nil {
				return err
			}
			_, err = svc.DeliverOrderTickets(ctx, task.OrderID)
			return err
		},
	}
}

func NewTicketAssignedHandler(svc domain.Service) queue.Handler {
	return queue.Handler{
		Name:  "fulfillment.deliver_ticket",
		Topic: queue.TopicTicketAssigned,
		Handle: func(ctx context.Context, msg *message.Message) error {
			task, err := queue.Decode[queue.TicketAssigned](msg)
			if err != nil {
				return err
			}
			return svc.DeliverTicket(ctx, task.TicketID)
		},
	}
}

func NewUserRegisteredHandler(svc domain.Service) queue.Handler {
	return queue.Handler{
		Name:  "fulfillment.welcome_email",
		Topic: queue.TopicUserRegistered,
		Handle: func(ctx context.Context, msg *message.Message) error {
			task, err := queue.Decode[queue.UserRegistered](msg)
			if err != nil {
				return err
			}
			return svc.SendWelcome(ctx, task.UserID)
		},
	}
}
