package redis

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"nocaps-server/internal/domain"
)

type MatchEventPublisher struct {
	client  *redis.Client
	channel string
}

func NewMatchEventPublisher(client *redis.Client, channel string) *MatchEventPublisher {
	return &MatchEventPublisher{client: client, channel: channel}
}

func (r *MatchEventPublisher) PublishMatchEvent(ctx context.Context, event *domain.MatchEvent) error {
	payload, err := encodeMatchEvent(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}

func encodeMatchEvent(event *domain.MatchEvent) (string, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
