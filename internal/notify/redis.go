package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var errMissingRedisClient = errors.New("notify: redis client is required")

// RedisOptions tunes the queue connection.
type RedisOptions struct {
	URL          string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// OpenRedis parses the URL, applies overrides and verifies the connection.
func OpenRedis(ctx context.Context, options RedisOptions) (*redis.Client, error) {
	if strings.TrimSpace(options.URL) == "" {
		return nil, errors.New("notify: redis url is required")
	}

	redisOptions, err := redis.ParseURL(options.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if options.PoolSize > 0 {
		redisOptions.PoolSize = options.PoolSize
	}
	if options.DialTimeout > 0 {
		redisOptions.DialTimeout = options.DialTimeout
	}
	if options.ReadTimeout != 0 {
		redisOptions.ReadTimeout = options.ReadTimeout
	}
	if options.WriteTimeout > 0 {
		redisOptions.WriteTimeout = options.WriteTimeout
	}

	client := redis.NewClient(redisOptions)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

type listPusher interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// RedisQueue publishes messages onto a Redis list used as a FIFO queue.
// Consumers pop from the opposite end with BRPOP.
type RedisQueue struct {
	client listPusher
}

// NewRedisQueue constructs a queue publisher over the provided client.
func NewRedisQueue(client listPusher) (*RedisQueue, error) {
	if client == nil {
		return nil, errMissingRedisClient
	}
	return &RedisQueue{client: client}, nil
}

// Publish serializes the message and appends it to the channel's list.
func (queue *RedisQueue) Publish(ctx context.Context, message Message, channel string) error {
	if strings.TrimSpace(channel) == "" {
		return ErrMissingChannel
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("notify: encode message: %w", err)
	}
	if err := queue.client.LPush(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("notify: push to %s: %w", channel, err)
	}
	return nil
}

// DecodeMessage parses a queue payload produced by Publish.
func DecodeMessage(payload []byte) (Message, error) {
	var message Message
	if err := json.Unmarshal(payload, &message); err != nil {
		return Message{}, fmt.Errorf("notify: decode message: %w", err)
	}
	return message, nil
}
