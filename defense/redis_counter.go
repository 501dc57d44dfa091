package defense

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter keeps rate-limit buckets in Redis so every instance behind a
// load balancer counts against the same budget. It implements
// httprate.LimitCounter.
type RedisCounter struct {
	client  redis.UniversalClient
	prefix  string
	window  time.Duration
	timeout time.Duration
}

func NewRedisCounter(client redis.UniversalClient, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "tourguard:ratelimit:"
	}
	return &RedisCounter{client: client, prefix: prefix, window: time.Hour, timeout: time.Second}
}

func (c *RedisCounter) Config(requestLimit int, windowLength time.Duration) {
	c.window = windowLength
}

func (c *RedisCounter) Increment(key string, currentWindow time.Time) error {
	return c.IncrementBy(key, currentWindow, 1)
}

func (c *RedisCounter) IncrementBy(key string, currentWindow time.Time, amount int) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	k := c.windowKey(key, currentWindow)
	pipe := c.client.TxPipeline()
	pipe.IncrBy(ctx, k, int64(amount))
	// The previous window is still read while the current one fills up.
	pipe.Expire(ctx, k, 3*c.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("increment %s: %w", k, err)
	}
	return nil
}

func (c *RedisCounter) Get(key string, currentWindow, previousWindow time.Time) (int, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	vals, err := c.client.MGet(ctx, c.windowKey(key, currentWindow), c.windowKey(key, previousWindow)).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("get counters: %w", err)
	}

	counts := [2]int{}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, fmt.Errorf("parse counter: %w", err)
		}
		counts[i] = n
	}
	return counts[0], counts[1], nil
}

func (c *RedisCounter) windowKey(key string, window time.Time) string {
	return c.prefix + key + ":" + strconv.FormatInt(window.Unix(), 10)
}
