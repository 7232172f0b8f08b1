// Package events publishes lifecycle events to interested subscribers.
// Publishing is a post-commit side effect: a failed publish is logged by
// the caller and never affects committed state.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Topics for marketplace lifecycle events.
const (
	TopicMatchFormed       = "auction:match"
	TopicRegistryConfirmed = "auction:registry_confirmed"
	TopicSettled           = "auction:settled"
)

// Publisher delivers an event payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// RedisPublisher publishes JSON-encoded events over Redis pub/sub.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisClient builds a Redis client for the given address and verifies
// the connection.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		MaxRetries:   3,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// NewRedisPublisher creates a RedisPublisher over an existing client.
// The caller owns the client's lifetime.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish JSON-encodes the payload and publishes it to the topic channel.
func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, topic, body).Err()
}

// NopPublisher discards all events. Used when no broker is configured.
type NopPublisher struct{}

// Publish discards the event.
func (NopPublisher) Publish(context.Context, string, any) error {
	return nil
}
