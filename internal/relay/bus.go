package relay

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/pixelwall/gateway-server-go/internal/errors"
	redisclient "github.com/pixelwall/gateway-server-go/internal/redis"
)

// Handler consumes one delivered message. Handlers run on the subscription
// goroutine, in delivery order for their channel.
type Handler func(payload []byte)

// Bus is the cross-instance relay: fire-and-forget pub/sub plus an
// expiring key/value side-channel for presence leases. All errors wrap
// ErrRelayUnavailable; callers fall back to local-only degraded mode.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, h Handler)
	SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error
	GetAllMatching(ctx context.Context, pattern string) (map[string][]byte, error)
}

// RedisBus backs the Bus with Redis pub/sub and SET EX / SCAN.
type RedisBus struct {
	redis *redisclient.Client
}

func NewRedisBus(redisClient *redisclient.Client) *RedisBus {
	return &RedisBus{redis: redisClient}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.redis.Publish(ctx, channel, payload).Err(); err != nil {
		return apperrors.RelayUnavailable(err)
	}
	return nil
}

// Subscribe pumps the channel into h on a dedicated goroutine until ctx is
// done. Messages published by this instance come back through the same
// subscription; that loopback is how the local fan-out happens.
func (b *RedisBus) Subscribe(ctx context.Context, channel string, h Handler) {
	go func() {
		pubsub := b.redis.Subscribe(ctx, channel)
		defer pubsub.Close()

		log.Debug().Str("channel", channel).Msg("redis pubsub subscribed")

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				h([]byte(msg.Payload))
			}
		}
	}()
}

func (b *RedisBus) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := b.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		return apperrors.RelayUnavailable(err)
	}
	return nil
}

// GetAllMatching scans keys matching pattern and fetches their values.
// Entries past their TTL are simply absent; keys that expire between the
// scan and the fetch are skipped.
func (b *RedisBus) GetAllMatching(ctx context.Context, pattern string) (map[string][]byte, error) {
	var keys []string
	iter := b.redis.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, apperrors.RelayUnavailable(err)
	}

	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	values, err := b.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, apperrors.RelayUnavailable(err)
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		result[keys[i]] = []byte(s)
	}
	return result, nil
}
