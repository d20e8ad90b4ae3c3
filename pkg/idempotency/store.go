// Package idempotency claims keys in Redis so a request or message is acted
// on once per TTL window.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// doneValue marks work that finished, as opposed to a bare claim.
const doneValue = "done"

type Store struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewStore(rdb redis.Cmdable, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl, prefix: "idem:"}
}

// MessageKey identifies a Kafka record by its position.
func (s *Store) MessageKey(topic string, partition int, offset int64) string {
	return fmt.Sprintf("msg:%s:%d:%d", topic, partition, offset)
}

// Seen claims key and reports whether it had already been claimed.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.prefix+key, "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return !ok, nil
}

// Forget releases a claim so the work can be retried.
func (s *Store) Forget(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

// MarkDone records that the work behind key completed.
func (s *Store) MarkDone(ctx context.Context, key string) error {
	if err := s.rdb.Set(ctx, s.prefix+key, doneValue, s.ttl).Err(); err != nil {
		return fmt.Errorf("mark %s done: %w", key, err)
	}
	return nil
}

// IsDone reports whether key was marked done. A claim left by Seen that never
// completed does not count.
func (s *Store) IsDone(ctx context.Context, key string) (bool, error) {
	v, err := s.rdb.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", key, err)
	}
	return v == doneValue, nil
}
