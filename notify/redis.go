package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/minelist/status-sync/config"
)

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// Redis publishes events as JSON on a pub/sub channel.
type Redis struct {
	client  publisher
	channel string
}

func NewRedis(cfg *config.Notify) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}),
		channel: cfg.RedisChannel,
	}
}

func (n *Redis) Broadcast(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis channel '%s': %w",
			n.channel, err,
		)
	}
	return nil
}

func (n *Redis) Close() error {
	return n.client.Close()
}
