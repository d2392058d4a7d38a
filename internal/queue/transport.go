package queue

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/ticketing/internal/config"
	"go.uber.org/fx"
)

type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	shared bool
}

func NewTransport(lc fx.Lifecycle, cfg config.Config, client *redis.Client, logger watermill.LoggerAdapter) (Transport, error) {
	var t Transport
	switch cfg.Queue.Driver {
	case config.QueueDriverGoChannel:
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
		t = Transport{Publisher: ch, Subscriber: ch, shared: true}
	default:
		pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{
			Client: client,
		}, logger)
		if err != nil {
			return Transport{}, fmt.Errorf("redisstream publisher: %w", err)
		}
		sub, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
			Client:        client,
			ConsumerGroup: cfg.Queue.ConsumerGroup,
		}, logger)
		if err != nil {
			return Transport{}, fmt.Errorf("redisstream subscriber: %w", err)
		}
		t = Transport{Publisher: pub, Subscriber: sub}
	}

	lc.Append(fx.StopHook(func() error {
		if err := t.Publisher.Close(); err != nil {
			return err
		}
		if t.shared {
			return nil
		}
		return t.Subscriber.Close()
	}))
	return t, nil
}
