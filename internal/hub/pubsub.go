package hub

import (
	"context"
	"encoding/json"

	"civictrack/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the Redis channel notifications are broadcast on.
const DefaultChannel = "civictrack:notifications"

// RedisBroker fans notifications out to every instance through Redis Pub/Sub.
type RedisBroker struct {
	rdb     *redis.Client
	channel string
	log     *zap.Logger
}

func NewRedisBroker(rdb *redis.Client, channel string, log *zap.Logger) *RedisBroker {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBroker{rdb: rdb, channel: channel, log: log}
}

// Publish публікує сповіщення в Redis Pub/Sub
func (b *RedisBroker) Publish(ctx context.Context, n models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, payload).Err()
}

// Subscribe returns a channel of decoded notifications. It closes when ctx
// is cancelled. Undecodable payloads are logged and skipped.
func (b *RedisBroker) Subscribe(ctx context.Context) (<-chan models.Notification, error) {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	// Wait for the subscription confirmation so errors surface here.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	out := make(chan models.Notification)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var n models.Notification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					b.log.Warn("hub: bad notification payload", zap.Error(err))
					continue
				}
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
