package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisDayKeyPrefix = "audit:events:"

// RedisStore appends events to a per-day Redis list. Each day bucket carries
// a TTL so retention enforcement needs no sweeper.
type RedisStore struct {
	client    redis.Cmdable
	retention time.Duration
}

// NewRedisStore creates a day-bucketed Redis event store retaining buckets
// for retentionDays.
func NewRedisStore(client redis.Cmdable, retentionDays int) *RedisStore {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &RedisStore{
		client:    client,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
	}
}

func (s *RedisStore) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	key := redisDayKeyPrefix + event.Timestamp.UTC().Format(time.DateOnly)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, s.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// Day returns the events stored in a YYYY-MM-DD bucket.
func (s *RedisStore) Day(ctx context.Context, day string) ([]Event, error) {
	raw, err := s.client.LRange(ctx, redisDayKeyPrefix+day, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read audit bucket: %w", err)
	}
	events := make([]Event, 0, len(raw))
	for _, item := range raw {
		var event Event
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			return nil, fmt.Errorf("decode audit event: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}
