package service

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/smallbiznis/ticketing/internal/checkin/domain"
	"github.com/smallbiznis/ticketing/internal/queue"
)

func NewPresenceHandler(svc domain.Service) queue.Handler {
	return queue.Handler{
		Name:  "checkin.presence",
		Topic: queue.TopicCheckInPresence,
		Handle: func(ctx context.Context, msg *message.Message) error {
			task, err := queue.Decode[queue.CheckInPresence](msg)
			if err != nil {
				return err
			}
			return svc.MarkPresent(ctx, task.TicketID, task.CheckedInAt)
		},
	}
}
