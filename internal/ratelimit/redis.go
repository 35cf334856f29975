package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "ratelimit:window:"

// allowScript performs trim, count, and conditional insert as one atomic unit
// on the server. Scores and the window are in milliseconds.
//
// KEYS[1] window zset
// ARGV[1] now (ms)  ARGV[2] window (ms)  ARGV[3] limit  ARGV[4] member
// Returns {allowed(0|1), count after the call, oldest score or now}.
var allowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local score = now
  if oldest[2] then score = tonumber(oldest[2]) end
  return {0, count, score}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local score = now
if oldest[2] then score = tonumber(oldest[2]) end
return {1, count + 1, score}
`)

// RedisStore implements Store on a shared Redis ZSET per client key, so the
// ceiling holds across gateway instances.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore creates a Redis-backed sliding window store.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Allow runs the trim/count/insert script for key. Member uniqueness comes
// from a uuid suffix so two admissions in the same millisecond both count.
func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	now := time.Now()
	member := fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString())

	raw, err := allowScript.Run(ctx, s.client,
		[]string{redisKeyPrefix + key},
		now.UnixMilli(), window.Milliseconds(), limit, member,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}

	vals, ok := raw.([]any)
	if !ok || len(vals) != 3 {
		return nil, fmt.Errorf("rate limit script: unexpected reply %v", raw)
	}
	allowed := toInt64(vals[0]) == 1
	count := int(toInt64(vals[1]))
	oldest := time.UnixMilli(toInt64(vals[2]))

	result := &Result{
		Allowed: allowed,
		Limit:   limit,
		ResetAt: oldest.Add(window),
	}
	if allowed {
		result.Remaining = max(limit-count, 0)
	} else {
		result.RetryAfter = int(window.Seconds())
	}
	return result, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}
