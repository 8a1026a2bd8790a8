// Package realtime forwards domain events to push channels that the
// websocket gateway relays to connected clients.
package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publisher sends a serialized event to a named channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

type redisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher publishes through Redis pub/sub.
func NewRedisPublisher(client *redis.Client) Publisher {
	return &redisPublisher{client: client}
}

func (p *redisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

// Noop drops every message. It is used when realtime delivery is disabled.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, string, []byte) error { return nil }

// ChatChannel names the channel observed by the members of a chat.
func ChatChannel(prefix, chatID string) string {
	return prefix + ":chat:" + chatID
}

// UserChannel names a user's personal channel.
func UserChannel(prefix, userID string) string {
	return prefix + ":user:" + userID
}
