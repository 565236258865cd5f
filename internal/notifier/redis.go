// internal/notifier/redis.go
package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"recharge-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes notices on a pub/sub channel for the bot layer.
type RedisSink struct {
	client  publisher
	channel string
}

func NewRedisSink(client publisher, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Notify(ctx context.Context, n *domain.SettlementNotice) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notice: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish notice: %w", err)
	}
	return nil
}
