package events

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "prize-wheel.events"

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes JSON envelopes on a redis channel.
type RedisSink struct {
	client  publisher
	channel string
}

func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	return newRedisSink(client, channel)
}

func newRedisSink(client publisher, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Publish(ctx context.Context, e Event) {
	data, err := json.Marshal(Wrap(e))
	if err != nil {
		zap.L().Error("events: marshal envelope", zap.String("type", string(e.EventType())), zap.Error(err))
		return
	}
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		zap.L().Warn("events: redis publish failed",
			zap.String("channel", s.channel),
			zap.String("type", string(e.EventType())),
			zap.String("pool_id", e.EventPool()),
			zap.Error(err),
		)
	}
}
