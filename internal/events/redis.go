package events

import (
	"context"

	"github.com/go-redis/redis/v8"

	commonredis "agrismart-monitor/common/redis"
	"agrismart-monitor/internal/models"
)

// RedisStreamPublisher appends events to a capped Redis stream.
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisStreamPublisher(client *redis.Client, stream string, maxLen int64) *RedisStreamPublisher {
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, ev models.Event) error {
	_, err := commonredis.PublishJSONToStream(ctx, p.client, p.stream, p.maxLen, string(ev.Type), ev.OccurredAt, ev)
	return err
}
