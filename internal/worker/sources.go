package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/character-library/backend/internal/notify"
	"github.com/redis/go-redis/v9"
)

type listPopper interface {
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// RedisSource pops messages from a Redis list filled by notify.RedisQueue.
type RedisSource struct {
	client      listPopper
	channel     string
	pollTimeout time.Duration
}

// NewRedisSource constructs a Source reading the channel's list.
func NewRedisSource(client listPopper, channel string, pollTimeout time.Duration) (*RedisSource, error) {
	if client == nil {
		return nil, errors.New("worker: redis client is required")
	}
	if channel == "" {
		return nil, notify.ErrMissingChannel
	}
	return &RedisSource{client: client, channel: channel, pollTimeout: pollTimeout}, nil
}

// Receive blocks for up to the poll timeout waiting for the next message.
func (source *RedisSource) Receive(ctx context.Context) (notify.Message, error) {
	values, err := source.client.BRPop(ctx, source.pollTimeout, source.channel).Result()
	if errors.Is(err, redis.Nil) {
		return notify.Message{}, ErrNoMessage
	}
	if err != nil {
		return notify.Message{}, fmt.Errorf("worker: pop from %s: %w", source.channel, err)
	}
	if len(values) != 2 {
		return notify.Message{}, fmt.Errorf("worker: unexpected reply of %d values from %s", len(values), source.channel)
	}
	return notify.DecodeMessage([]byte(values[1]))
}

// ChannelSource adapts an in-process message stream such as a notify.Dispatcher subscription.
type ChannelSource struct {
	stream <-chan notify.Message
}

// NewChannelSource constructs a Source over the stream.
func NewChannelSource(stream <-chan notify.Message) *ChannelSource {
	return &ChannelSource{stream: stream}
}

// Receive waits for the next message on the stream.
func (source *ChannelSource) Receive(ctx context.Context) (notify.Message, error) {
	select {
	case <-ctx.Done():
		return notify.Message{}, ctx.Err()
	case message, ok := <-source.stream:
		if !ok {
			return notify.Message{}, ErrSourceClosed
		}
		return message, nil
	}
}
