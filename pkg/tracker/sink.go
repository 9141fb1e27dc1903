package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zen-systems/routegate/pkg/engine"
)

// Sink mirrors outcomes to an external store.
type Sink interface {
	Observe(ctx context.Context, o engine.Outcome) error
}

// RedisSink keeps per-(provider, task) counters in Redis hashes so several
// routegate instances can be watched from one place. Routing never reads them.
type RedisSink struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisSink creates a sink writing under prefix. A zero ttl keeps keys forever.
func NewRedisSink(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisSink {
	if prefix == "" {
		prefix = "routegate:stats"
	}
	return &RedisSink{client: client, prefix: prefix, ttl: ttl}
}

// Key returns the hash key for a provider and task type.
func (s *RedisSink) Key(providerID, taskType string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, providerID, taskType)
}

// Observe increments the outcome counters in a single round trip.
func (s *RedisSink) Observe(ctx context.Context, o engine.Outcome) error {
	key := s.Key(o.ProviderID, string(o.TaskType))
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, "total", 1)
		if o.Success {
			pipe.HIncrBy(ctx, key, "success", 1)
		} else {
			pipe.HIncrBy(ctx, key, "error:"+string(o.ErrorKind), 1)
		}
		pipe.HIncrBy(ctx, key, "latency_ms", o.Latency.Milliseconds())
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("mirror outcome to redis: %w", err)
	}
	return nil
}

// NewRedisClient connects to address and verifies the connection.
func NewRedisClient(ctx context.Context, address, password string, db int) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", address, err)
	}
	return client, nil
}
